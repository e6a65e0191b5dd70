// internal/flash/filedev.go
package flash

import (
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// FileDevice is a file-backed Device for hosts where the application
// image lives in a file rather than on-chip flash. Erase writes the
// erased pattern; writes land in memory and reach the file on Flush.
type FileDevice struct {
	path    string
	sectors []uint32
	data    []byte
	dirty   bool
	unlock  bool
}

// OpenFileDevice maps path onto the given sector geometry. A missing or
// short file is extended with the erased pattern.
func OpenFileDevice(path string, sectors []uint32) (*FileDevice, error) {
	if len(sectors) == 0 {
		return nil, errors.New("flash: sector map required")
	}
	var total uint32
	for i, s := range sectors {
		if s == 0 {
			return nil, errors.Errorf("flash: sector %d has zero size", i)
		}
		total += s
	}

	data := make([]byte, total)
	for i := range data {
		data[i] = 0xFF
	}

	raw, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "flash: read %s", path)
	}
	copy(data, raw)

	return &FileDevice{path: path, sectors: sectors, data: data}, nil
}

func (d *FileDevice) SectorSize(i uint16) uint32 {
	if int(i) >= len(d.sectors) {
		return 0
	}
	return d.sectors[i]
}

func (d *FileDevice) sectorBase(i uint16) uint32 {
	var base uint32
	for s := uint16(0); s < i; s++ {
		base += d.sectors[s]
	}
	return base
}

func (d *FileDevice) IsErased(i uint16) bool {
	if int(i) >= len(d.sectors) {
		return false
	}
	base := d.sectorBase(i)
	for _, b := range d.data[base : base+d.sectors[i]] {
		if b != 0xFF {
			return false
		}
	}
	return true
}

func (d *FileDevice) EraseSector(i uint16) error {
	if int(i) >= len(d.sectors) {
		return errors.Errorf("flash: erase past end of flash: sector %d", i)
	}
	base := d.sectorBase(i)
	for j := base; j < base+d.sectors[i]; j++ {
		d.data[j] = 0xFF
	}
	d.dirty = true
	log.Debugf("flash: erased sector %d (%d bytes)", i, d.sectors[i])
	return nil
}

func (d *FileDevice) WriteWords(offset uint32, words []uint32) bool {
	end := offset + uint32(len(words))*4
	if int(end) > len(d.data) {
		return false
	}
	for i, w := range words {
		base := offset + uint32(i)*4
		for b := uint32(0); b < 4; b++ {
			d.data[base+b] = byte(w >> (8 * b))
		}
	}
	d.dirty = true
	return true
}

func (d *FileDevice) Flush() {
	if !d.dirty {
		return
	}
	if err := os.WriteFile(d.path, d.data, 0o644); err != nil {
		log.Errorf("flash: flush %s: %v", d.path, err)
		return
	}
	d.dirty = false
}

func (d *FileDevice) SetKeepUnlocked(unlocked bool) {
	d.unlock = unlocked
}

// Bytes exposes the current image contents to the integrity checker.
func (d *FileDevice) Bytes() []byte {
	return d.data
}
