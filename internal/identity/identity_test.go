// internal/identity/identity_test.go
package identity

import (
	"bytes"
	"testing"

	"github.com/skybus/canboot/internal/clock"
	"github.com/skybus/canboot/internal/dronecan"
	"github.com/skybus/canboot/internal/transport"
)

type fakeClock struct {
	ms uint32
}

func (c *fakeClock) NowMs() uint32 { return c.ms }
func (c *fakeClock) NowUs() uint64 { return uint64(c.ms) * 1000 }

type fakeBus struct {
	localID  uint8
	requests [][]byte
}

func (b *fakeBus) Broadcast(sig uint64, dtid uint16, tid *uint8, prio uint8, payload []byte) error {
	b.requests = append(b.requests, append([]byte(nil), payload...))
	*tid = (*tid + 1) & transport.TransferIDMax
	return nil
}

func (b *fakeBus) LocalNodeID() uint8 { return b.localID }

func (b *fakeBus) SetLocalNodeID(id uint8) error {
	if id == 0 || id > transport.MaxNodeID {
		return transport.ErrBadNodeID
	}
	b.localID = id
	return nil
}

func testUID() [16]byte {
	var uid [16]byte
	for i := range uid {
		uid[i] = byte(0xA0 + i)
	}
	return uid
}

func newManager(clk *fakeClock, bus *fakeBus) *Manager {
	return New(clk, clock.NewRand(), bus, testUID())
}

// advance runs Tick over simulated time until a request goes out.
func advance(t *testing.T, m *Manager, clk *fakeClock, bus *fakeBus) []byte {
	t.Helper()
	before := len(bus.requests)
	for i := 0; i < 2000; i++ {
		clk.ms += 10
		m.Tick()
		if len(bus.requests) > before {
			return bus.requests[len(bus.requests)-1]
		}
	}
	t.Fatalf("no allocation request sent")
	return nil
}

func allocation(t *testing.T, source uint8, nodeID uint8, uidPrefix []byte) transport.Transfer {
	t.Helper()
	msg := dronecan.Allocation{NodeID: nodeID, UniqueID: uidPrefix}
	return transport.Transfer{
		Kind:         transport.KindBroadcast,
		DataTypeID:   dronecan.DynamicNodeIDAllocationID,
		SourceNodeID: source,
		Payload:      msg.Marshal(),
	}
}

func TestFirstRequestCarriesFirstPart(t *testing.T) {
	clk := &fakeClock{}
	bus := &fakeBus{}
	m := newManager(clk, bus)

	req := advance(t, m, clk, bus)
	if req[0] != 1 {
		t.Fatalf("header byte = %#x, want first-part flag", req[0])
	}
	uid := testUID()
	if !bytes.Equal(req[1:], uid[:6]) {
		t.Fatalf("request carries %x, want first 6 uid bytes", req[1:])
	}
}

func TestProgressiveMatch(t *testing.T) {
	clk := &fakeClock{}
	bus := &fakeBus{}
	m := newManager(clk, bus)
	uid := testUID()

	advance(t, m, clk, bus)

	// Allocator confirms 6 bytes.
	m.HandleAllocation(allocation(t, 100, 0, uid[:6]))
	if m.UniqueIDOffset() != 6 {
		t.Fatalf("offset = %d, want 6", m.UniqueIDOffset())
	}

	req := advance(t, m, clk, bus)
	if req[0]&1 != 0 {
		t.Fatalf("follow-up request still flags first part")
	}
	if !bytes.Equal(req[1:], uid[6:12]) {
		t.Fatalf("request carries %x, want uid[6:12]", req[1:])
	}

	// 12 bytes confirmed.
	m.HandleAllocation(allocation(t, 100, 0, uid[:12]))
	if m.UniqueIDOffset() != 12 {
		t.Fatalf("offset = %d, want 12", m.UniqueIDOffset())
	}

	req = advance(t, m, clk, bus)
	if !bytes.Equal(req[1:], uid[12:16]) {
		t.Fatalf("request carries %x, want uid[12:16]", req[1:])
	}

	// Full match with an assigned id: terminal.
	m.HandleAllocation(allocation(t, 100, 42, uid[:]))
	if bus.localID != 42 {
		t.Fatalf("node id = %d, want 42", bus.localID)
	}
	if m.State() != stateAllocated {
		t.Fatalf("state = %s", m.State())
	}

	// No further requests once identified.
	before := len(bus.requests)
	for i := 0; i < 500; i++ {
		clk.ms += 10
		m.Tick()
	}
	if len(bus.requests) != before {
		t.Fatalf("requests sent after allocation")
	}
}

func TestPrefixMismatchResets(t *testing.T) {
	clk := &fakeClock{}
	bus := &fakeBus{}
	m := newManager(clk, bus)
	uid := testUID()

	advance(t, m, clk, bus)
	m.HandleAllocation(allocation(t, 100, 0, uid[:6]))

	other := []byte{9, 9, 9, 9}
	m.HandleAllocation(allocation(t, 100, 0, other))
	if m.UniqueIDOffset() != 0 {
		t.Fatalf("offset = %d after mismatch, want 0", m.UniqueIDOffset())
	}
}

func TestAnonymousResponseResets(t *testing.T) {
	clk := &fakeClock{}
	bus := &fakeBus{}
	m := newManager(clk, bus)
	uid := testUID()

	advance(t, m, clk, bus)
	m.HandleAllocation(allocation(t, 100, 0, uid[:6]))
	m.HandleAllocation(allocation(t, 0, 0, nil))
	if m.UniqueIDOffset() != 0 {
		t.Fatalf("offset = %d after anonymous frame, want 0", m.UniqueIDOffset())
	}
}

func TestPartialMatchShortensTimer(t *testing.T) {
	clk := &fakeClock{ms: 10_000}
	bus := &fakeBus{}
	m := newManager(clk, bus)
	uid := testUID()

	advance(t, m, clk, bus)

	m.HandleAllocation(allocation(t, 100, 0, uid[:6]))
	// The shortened deadline is at most the follow-up jitter away.
	deadline := m.nextRequestMs
	if deadline > clk.ms+dronecan.AllocationMaxFollowupDelayMs {
		t.Fatalf("follow-up deadline %d too far from now %d", deadline, clk.ms)
	}
}

func TestFullMatchWithoutIDTimesOutAndRetries(t *testing.T) {
	clk := &fakeClock{}
	bus := &fakeBus{}
	m := newManager(clk, bus)
	uid := testUID()

	advance(t, m, clk, bus)
	// Full match but no id assigned: not terminal, a later round retries.
	m.HandleAllocation(allocation(t, 100, 0, uid[:]))
	if bus.localID != 0 {
		t.Fatalf("node id assigned from empty allocation")
	}
	advance(t, m, clk, bus)
}
