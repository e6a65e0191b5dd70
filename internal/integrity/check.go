// internal/integrity/check.go
package integrity

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	log "github.com/sirupsen/logrus"
)

// Result is the image check outcome surfaced through the NodeStatus
// vendor byte.
type Result uint8

const (
	ResultOK         Result = 0
	FailNoAppSig     Result = 10
	FailBadCRC       Result = 11
	FailInUpdate     Result = 12
	FailWatchdog     Result = 13
	FailBadLengthApp Result = 14
	FailBadBoardID   Result = 15
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case FailNoAppSig:
		return "no app signature"
	case FailBadCRC:
		return "bad crc"
	case FailInUpdate:
		return "update in progress"
	case FailWatchdog:
		return "watchdog reset"
	case FailBadLengthApp:
		return "bad app length"
	case FailBadBoardID:
		return "bad board id"
	}
	return "unknown"
}

// Checker validates a freshly-written application image.
type Checker interface {
	Check() Result
}

// descriptorSignature marks the application descriptor embedded in the
// image by the build system.
var descriptorSignature = []byte{0x40, 0xA2, 0xE4, 0xF1, 0x64, 0x68, 0x91, 0x06}

// Descriptor layout, little-endian, following the signature:
//
//	crc1   uint32  // over [0, desc+8)
//	crc2   uint32  // over [desc+24, image_size)
//	size   uint32  // total image size in bytes
//	board  uint16
//	_      uint16  // reserved
const descriptorLen = 8 + 4 + 4 + 4 + 2 + 2

// ImageSource yields the current image contents.
type ImageSource interface {
	Bytes() []byte
}

// DescriptorChecker scans the image for the application descriptor and
// verifies the CRC pair bracketing it.
type DescriptorChecker struct {
	Image   ImageSource
	BoardID uint16
}

func (c *DescriptorChecker) Check() Result {
	img := c.Image.Bytes()

	ofs := bytes.Index(img, descriptorSignature)
	if ofs < 0 {
		return FailNoAppSig
	}
	if ofs+descriptorLen > len(img) {
		return FailNoAppSig
	}

	d := img[ofs+8:]
	crc1 := binary.LittleEndian.Uint32(d[0:4])
	crc2 := binary.LittleEndian.Uint32(d[4:8])
	size := binary.LittleEndian.Uint32(d[8:12])
	board := binary.LittleEndian.Uint16(d[12:14])

	if size < uint32(ofs+descriptorLen) || size > uint32(len(img)) {
		return FailBadLengthApp
	}
	if board != 0 && board != c.BoardID {
		log.Warnf("integrity: image built for board %d, this is board %d", board, c.BoardID)
		return FailBadBoardID
	}
	if crc32.ChecksumIEEE(img[:ofs+8]) != crc1 {
		return FailBadCRC
	}
	if crc32.ChecksumIEEE(img[ofs+descriptorLen:size]) != crc2 {
		return FailBadCRC
	}
	return ResultOK
}

// Stamp writes a valid descriptor into img at ofs for the given total
// size. Exists for the build tooling and the tests; the bootloader
// itself only ever verifies.
func Stamp(img []byte, ofs int, size uint32, board uint16) {
	copy(img[ofs:], descriptorSignature)
	d := img[ofs+8:]
	binary.LittleEndian.PutUint32(d[8:12], size)
	binary.LittleEndian.PutUint16(d[12:14], board)
	binary.LittleEndian.PutUint16(d[14:16], 0)
	binary.LittleEndian.PutUint32(d[0:4], crc32.ChecksumIEEE(img[:ofs+8]))
	binary.LittleEndian.PutUint32(d[4:8], crc32.ChecksumIEEE(img[ofs+descriptorLen:size]))
}
