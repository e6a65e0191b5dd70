// internal/handoff/handoff_test.go
package handoff

import (
	"encoding/binary"
	"testing"
)

type memRegion struct {
	data   []byte
	zeroed bool
}

func (m *memRegion) Load() ([]byte, error) { return m.data, nil }

func (m *memRegion) Zero() error {
	for i := range m.data {
		m.data[i] = 0
	}
	m.zeroed = true
	return nil
}

type memRegisters struct {
	regs []uint32
}

func (m *memRegisters) Filters() []uint32 { return m.regs }

func (m *memRegisters) SetFilter(i int, v uint32) error {
	m.regs[i] = v
	return nil
}

func TestRegionARoundTrip(t *testing.T) {
	raw, err := WriteRegionA(17, 125, "fw.bin")
	if err != nil {
		t.Fatal(err)
	}
	r := &memRegion{data: raw}

	u, ok := ReadRegionA(r)
	if !ok {
		t.Fatalf("valid record rejected")
	}
	if u.NodeID != 17 || u.ServerNodeID != 125 || u.Path != "fw.bin" {
		t.Fatalf("decoded %+v", u)
	}
	if !r.zeroed {
		t.Fatalf("record not zeroed after adoption")
	}

	// A second boot sees nothing.
	if _, ok := ReadRegionA(r); ok {
		t.Fatalf("zeroed record adopted again")
	}
}

func TestRegionARejectsBadMagic(t *testing.T) {
	raw, err := WriteRegionA(17, 125, "fw.bin")
	if err != nil {
		t.Fatal(err)
	}
	binary.LittleEndian.PutUint32(raw[0:4], 0xDEADBEEF)
	r := &memRegion{data: raw}
	if _, ok := ReadRegionA(r); ok {
		t.Fatalf("bad magic adopted")
	}
	if r.zeroed {
		t.Fatalf("foreign memory zeroed")
	}
}

func TestRegionARejectsZeroNodeID(t *testing.T) {
	raw, err := WriteRegionA(0, 125, "fw.bin")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ReadRegionA(&memRegion{data: raw}); ok {
		t.Fatalf("record with node id 0 adopted")
	}
}

func TestRegionAPathBounded(t *testing.T) {
	long := make([]byte, 201)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := WriteRegionA(1, 2, string(long)); err == nil {
		t.Fatalf("oversized path accepted")
	}
}

func TestRegionBRoundTrip(t *testing.T) {
	rf := &memRegisters{regs: make([]uint32, 12)}
	sealed := SealRegionB(500_000, 42)
	copy(rf.regs[4:], sealed[:])

	u, ok := ReadRegionB(rf)
	if !ok {
		t.Fatalf("valid registers rejected")
	}
	if u.NodeID != 42 || u.BusSpeed != 500_000 {
		t.Fatalf("decoded %+v", u)
	}
	if rf.regs[6] != 0 {
		t.Fatalf("signature not cleared after adoption")
	}

	if _, ok := ReadRegionB(rf); ok {
		t.Fatalf("cleared registers adopted again")
	}
}

func TestRegionBRejectsBadCRC(t *testing.T) {
	rf := &memRegisters{regs: make([]uint32, 12)}
	sealed := SealRegionB(1_000_000, 7)
	copy(rf.regs[4:], sealed[:])
	rf.regs[7] = 250_000 // speed no longer matches the checksum

	if _, ok := ReadRegionB(rf); ok {
		t.Fatalf("corrupted registers adopted")
	}
}

func TestRegionBRejectsBadNodeID(t *testing.T) {
	rf := &memRegisters{regs: make([]uint32, 12)}
	sealed := SealRegionB(1_000_000, 128)
	copy(rf.regs[4:], sealed[:])
	if _, ok := ReadRegionB(rf); ok {
		t.Fatalf("node id 128 adopted")
	}
}

func TestRegionBShortRegisterFile(t *testing.T) {
	if _, ok := ReadRegionB(&memRegisters{regs: make([]uint32, 4)}); ok {
		t.Fatalf("short register file adopted")
	}
}

func TestCRC64KnownProperties(t *testing.T) {
	a := crc64Words([]uint32{1, 2, 3})
	b := crc64Words([]uint32{1, 2, 3})
	if a != b {
		t.Fatalf("crc not deterministic")
	}
	if a == crc64Words([]uint32{3, 2, 1}) {
		t.Fatalf("crc ignores word order")
	}
	if a == 0 {
		t.Fatalf("degenerate crc")
	}
}
