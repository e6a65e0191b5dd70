// internal/status/status_test.go
package status

import (
	"testing"

	"github.com/skybus/canboot/internal/dronecan"
)

type fakeClock struct {
	ms uint32
}

func (c *fakeClock) NowMs() uint32 { return c.ms }
func (c *fakeClock) NowUs() uint64 { return uint64(c.ms) * 1000 }

type fakeTx struct {
	payloads [][]byte
}

func (f *fakeTx) Broadcast(sig uint64, dtid uint16, tid *uint8, prio uint8, payload []byte) error {
	f.payloads = append(f.payloads, payload)
	*tid++
	return nil
}

func TestEmitModesAndUptime(t *testing.T) {
	node := NewNode(0)
	clk := &fakeClock{ms: 5_500}
	tx := &fakeTx{}
	e := NewEmitter(node, clk, tx)

	if err := e.Emit(false); err != nil {
		t.Fatal(err)
	}
	if err := e.Emit(true); err != nil {
		t.Fatal(err)
	}

	var first, second dronecan.NodeStatus
	if err := first.Unmarshal(tx.payloads[0]); err != nil {
		t.Fatal(err)
	}
	if err := second.Unmarshal(tx.payloads[1]); err != nil {
		t.Fatal(err)
	}

	if first.Mode != dronecan.ModeMaintenance {
		t.Fatalf("idle mode = %d", first.Mode)
	}
	if second.Mode != dronecan.ModeSoftwareUpdate {
		t.Fatalf("updating mode = %d", second.Mode)
	}
	if first.UptimeSec != 5 {
		t.Fatalf("uptime = %d, want 5", first.UptimeSec)
	}
}

func TestProgressIndicator(t *testing.T) {
	cases := []struct {
		ofs  uint32
		want uint16
	}{
		{0, 1},
		{1023, 1},
		{1024, 2},
		{10 * 1024, 11},
	}
	for _, c := range cases {
		if got := Progress(c.ofs); got != c.want {
			t.Fatalf("Progress(%d) = %d, want %d", c.ofs, got, c.want)
		}
	}
}

func TestVendorStatusPassThrough(t *testing.T) {
	node := NewNode(13)
	if node.Vendor() != 13 {
		t.Fatalf("vendor = %d, want 13", node.Vendor())
	}
	node.SetVendor(Progress(2048))
	if node.Vendor() != 3 {
		t.Fatalf("vendor = %d, want 3", node.Vendor())
	}
}
