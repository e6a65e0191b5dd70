// internal/flash/memdev.go
package flash

import "errors"

// MemDevice is an in-memory Device for tests. It records the order of
// erase and write operations so tests can assert erase-before-write.
type MemDevice struct {
	Sectors []uint32 // sector sizes, non-uniform allowed
	Data    []byte

	Unlocked   bool
	Flushes    int
	EraseLog   []uint16
	WriteLog   []uint32 // byte offsets, in call order
	Ops        []Op     // erases and writes interleaved, in call order
	FailWrites int      // next N writes fail (transient)
}

// Op is one recorded device operation.
type Op struct {
	Erase  bool
	Sector uint16 // for erases
	Offset uint32 // for writes
	Bytes  uint32 // for writes
}

// NewMemDevice creates a device with the given sector sizes, filled
// with the erased pattern.
func NewMemDevice(sectors ...uint32) *MemDevice {
	var total uint32
	for _, s := range sectors {
		total += s
	}
	d := &MemDevice{
		Sectors: sectors,
		Data:    make([]byte, total),
	}
	for i := range d.Data {
		d.Data[i] = 0xFF
	}
	return d
}

func (d *MemDevice) SectorSize(i uint16) uint32 {
	if int(i) >= len(d.Sectors) {
		return 0
	}
	return d.Sectors[i]
}

func (d *MemDevice) sectorBase(i uint16) uint32 {
	var base uint32
	for s := uint16(0); s < i; s++ {
		base += d.Sectors[s]
	}
	return base
}

func (d *MemDevice) IsErased(i uint16) bool {
	if int(i) >= len(d.Sectors) {
		return false
	}
	base := d.sectorBase(i)
	for _, b := range d.Data[base : base+d.Sectors[i]] {
		if b != 0xFF {
			return false
		}
	}
	return true
}

func (d *MemDevice) EraseSector(i uint16) error {
	if int(i) >= len(d.Sectors) {
		return errors.New("flash: erase past end of flash")
	}
	base := d.sectorBase(i)
	for j := base; j < base+d.Sectors[i]; j++ {
		d.Data[j] = 0xFF
	}
	d.EraseLog = append(d.EraseLog, i)
	d.Ops = append(d.Ops, Op{Erase: true, Sector: i})
	return nil
}

func (d *MemDevice) WriteWords(offset uint32, words []uint32) bool {
	if d.FailWrites > 0 {
		d.FailWrites--
		return false
	}
	for i, w := range words {
		base := offset + uint32(i)*4
		for b := uint32(0); b < 4; b++ {
			if int(base+b) >= len(d.Data) {
				return false
			}
			d.Data[base+b] = byte(w >> (8 * b))
		}
	}
	d.WriteLog = append(d.WriteLog, offset)
	d.Ops = append(d.Ops, Op{Offset: offset, Bytes: uint32(len(words)) * 4})
	return true
}

func (d *MemDevice) Flush() {
	d.Flushes++
}

func (d *MemDevice) SetKeepUnlocked(unlocked bool) {
	d.Unlocked = unlocked
}
