// internal/handoff/region.go
package handoff

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// The application communicates an update intent to the bootloader
// across a reset through two raw memory regions. Both are treated as
// checked structured reads followed by an explicit zeroing write, and
// neither leaks outside startup.

// RAMRecordMagic validates region A.
const RAMRecordMagic uint32 = 0xC08573F7

// ramRecordLen is magic + server id + node id + path (200 bytes + NUL).
const ramRecordLen = 4 + 1 + 1 + 201

// Region is a raw byte region the host can load and clear.
type Region interface {
	Load() ([]byte, error)
	Zero() error
}

// Update is an adopted handoff: identity plus, for region A, a started
// update.
type Update struct {
	NodeID       uint8
	ServerNodeID uint8
	Path         string
	BusSpeed     uint32 // region B only; 0 means keep the default
}

// ReadRegionA validates the application → bootloader RAM record. On a
// match the region is zeroed before returning so a reboot loop cannot
// replay it.
func ReadRegionA(r Region) (*Update, bool) {
	raw, err := r.Load()
	if err != nil || len(raw) < ramRecordLen {
		return nil, false
	}

	if binary.LittleEndian.Uint32(raw[0:4]) != RAMRecordMagic {
		return nil, false
	}
	server := raw[4]
	node := raw[5]
	if node == 0 {
		return nil, false
	}

	path := raw[6:ramRecordLen]
	n := 0
	for n < len(path) && path[n] != 0 {
		n++
	}

	u := &Update{
		NodeID:       node,
		ServerNodeID: server,
		Path:         string(path[:n]),
	}

	if err := r.Zero(); err != nil {
		log.Warnf("handoff: clearing ram record: %v", err)
	}
	return u, true
}

// WriteRegionA composes a record for the application side; it exists so
// the application half of the pair lives next to the reader it must
// match.
func WriteRegionA(nodeID, serverNodeID uint8, path string) ([]byte, error) {
	if len(path) > 200 {
		return nil, errors.New("handoff: path too long")
	}
	raw := make([]byte, ramRecordLen)
	binary.LittleEndian.PutUint32(raw[0:4], RAMRecordMagic)
	raw[4] = serverNodeID
	raw[5] = nodeID
	copy(raw[6:], path)
	return raw, nil
}

// RegionBSignature validates the legacy filter-register handoff.
const RegionBSignature uint32 = 0xB0A04150

// RegisterFile is the first CAN peripheral's filter-register bank.
// Hosts without the peripheral return a short or zero slice.
type RegisterFile interface {
	Filters() []uint32
	SetFilter(i int, v uint32) error
}

// ReadRegionB interprets filter registers 4.. as
// {crc64, signature, bus_speed, node_id}. Only consulted when region A
// produced nothing and the previous reset was a software reset. The
// signature is cleared after adoption to prevent reboot loops.
func ReadRegionB(rf RegisterFile) (*Update, bool) {
	regs := rf.Filters()
	if len(regs) < 9 {
		return nil, false
	}

	crcLo := regs[4]
	crcHi := regs[5]
	sig := regs[6]
	speed := regs[7]
	node := regs[8]

	if sig != RegionBSignature {
		return nil, false
	}
	if node == 0 || node >= 128 {
		return nil, false
	}

	// The CRC halves are stored in reversed word order.
	crc := crc64Words([]uint32{sig, speed, node})
	if uint32(crc) != crcHi || uint32(crc>>32) != crcLo {
		return nil, false
	}

	if err := rf.SetFilter(6, 0); err != nil {
		log.Warnf("handoff: clearing filter signature: %v", err)
	}

	return &Update{NodeID: uint8(node), BusSpeed: speed}, true
}

// SealRegionB computes the register words the application stores before
// a software reset.
func SealRegionB(busSpeed, nodeID uint32) [5]uint32 {
	crc := crc64Words([]uint32{RegionBSignature, busSpeed, nodeID})
	return [5]uint32{
		uint32(crc >> 32),
		uint32(crc),
		RegionBSignature,
		busSpeed,
		nodeID,
	}
}

// FileRegion is a file-backed Region for hosts where the reserved RAM
// block is a file surviving the process restart.
type FileRegion struct {
	Path string
}

func (f FileRegion) Load() ([]byte, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "handoff: read %s", f.Path)
	}
	return raw, nil
}

func (f FileRegion) Zero() error {
	return os.WriteFile(f.Path, make([]byte, ramRecordLen), 0o600)
}
