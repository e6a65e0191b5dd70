// internal/dronecan/messages_test.go
package dronecan

import (
	"bytes"
	"testing"
)

func TestNodeStatusPacking(t *testing.T) {
	s := NodeStatus{
		UptimeSec:    0x01020304,
		Health:       HealthOK,
		Mode:         ModeSoftwareUpdate,
		VendorStatus: 0x1234,
	}
	b := s.Marshal()
	if len(b) != 7 {
		t.Fatalf("len = %d, want 7", len(b))
	}
	if b[4] != ModeSoftwareUpdate<<3 {
		t.Fatalf("mode byte = %#x", b[4])
	}

	var got NodeStatus
	if err := got.Unmarshal(b); err != nil {
		t.Fatal(err)
	}
	if got != s {
		t.Fatalf("round trip: got %+v, want %+v", got, s)
	}
}

func TestFileReadRequestOffset40Bits(t *testing.T) {
	r := FileReadRequest{Offset: 0xAB_1234_5678, Path: "fw.bin"}
	b := r.Marshal()
	want := []byte{0x78, 0x56, 0x34, 0x12, 0xAB}
	if !bytes.Equal(b[:5], want) {
		t.Fatalf("offset bytes = %x, want %x", b[:5], want)
	}

	var got FileReadRequest
	if err := got.Unmarshal(b); err != nil {
		t.Fatal(err)
	}
	if got.Offset != r.Offset || got.Path != r.Path {
		t.Fatalf("round trip: got %+v", got)
	}
}

func TestFileReadResponseBounds(t *testing.T) {
	var r FileReadResponse
	if err := r.Unmarshal([]byte{0}); err != ErrShortPayload {
		t.Fatalf("short payload: err = %v", err)
	}

	big := make([]byte, 2+ReadChunk+1)
	if err := r.Unmarshal(big); err == nil {
		t.Fatalf("oversized data accepted")
	}

	ok := append([]byte{0xFE, 0xFF}, bytes.Repeat([]byte{7}, 10)...)
	if err := r.Unmarshal(ok); err != nil {
		t.Fatal(err)
	}
	if r.Error != -2 || len(r.Data) != 10 {
		t.Fatalf("decoded %+v", r)
	}
}

func TestAllocationRoundTrip(t *testing.T) {
	a := Allocation{NodeID: 42, FirstPart: true, UniqueID: []byte{1, 2, 3, 4, 5, 6}}
	b := a.Marshal()
	if b[0] != 42<<1|1 {
		t.Fatalf("header byte = %#x", b[0])
	}

	var got Allocation
	if err := got.Unmarshal(b); err != nil {
		t.Fatal(err)
	}
	if got.NodeID != 42 || !got.FirstPart || !bytes.Equal(got.UniqueID, a.UniqueID) {
		t.Fatalf("round trip: got %+v", got)
	}
}

func TestRestartNodeMagic(t *testing.T) {
	b := []byte{0x1E, 0x1B, 0x55, 0xCE, 0xAC}
	var r RestartNodeRequest
	if err := r.Unmarshal(b); err != nil {
		t.Fatal(err)
	}
	if r.Magic != RestartNodeMagic {
		t.Fatalf("magic = %#x, want %#x", r.Magic, RestartNodeMagic)
	}
}

func TestBeginFirmwareUpdateRequest(t *testing.T) {
	var r BeginFirmwareUpdateRequest
	if err := r.Unmarshal(append([]byte{125}, "fw.bin"...)); err != nil {
		t.Fatal(err)
	}
	if r.SourceNodeID != 125 || r.Path != "fw.bin" {
		t.Fatalf("decoded %+v", r)
	}

	long := append([]byte{1}, bytes.Repeat([]byte{'a'}, PathMax+1)...)
	if err := r.Unmarshal(long); err == nil {
		t.Fatalf("oversized path accepted")
	}
}

func TestGetNodeInfoResponseLayout(t *testing.T) {
	r := GetNodeInfoResponse{
		Status:   NodeStatus{UptimeSec: 3, Mode: ModeMaintenance},
		Software: SoftwareVersion{Major: 2, Minor: 0},
		Hardware: HardwareVersion{Major: 4, Minor: 39},
		Name:     "org.skybus.canboot",
	}
	b := r.Marshal()
	if len(b) != 7+15+19+len(r.Name) {
		t.Fatalf("len = %d", len(b))
	}
	if b[7] != 2 || b[8] != 0 {
		t.Fatalf("software version bytes = %x", b[7:9])
	}
	if b[22] != 4 || b[23] != 39 {
		t.Fatalf("hardware version bytes = %x", b[22:24])
	}
	if string(b[41:]) != r.Name {
		t.Fatalf("name tail = %q", b[41:])
	}
}

func TestLogMessageHeader(t *testing.T) {
	m := LogMessage{Level: LogLevelError, Source: "boot", Text: "hello"}
	b := m.Marshal()
	if b[0] != LogLevelError<<5|4 {
		t.Fatalf("header = %#x", b[0])
	}
	if string(b[1:5]) != "boot" || string(b[5:]) != "hello" {
		t.Fatalf("body = %q", b[1:])
	}
}
