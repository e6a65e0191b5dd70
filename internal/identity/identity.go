// internal/identity/identity.go
package identity

import (
	"bytes"
	"context"
	"errors"

	"github.com/looplab/fsm"
	log "github.com/sirupsen/logrus"

	"github.com/skybus/canboot/internal/clock"
	"github.com/skybus/canboot/internal/dronecan"
	"github.com/skybus/canboot/internal/transport"
)

// Bus is the slice of the transport the manager needs: anonymous
// broadcasts out, local id in and out.
type Bus interface {
	Broadcast(signature uint64, dataTypeID uint16, transferID *uint8, priority uint8, payload []byte) error
	LocalNodeID() uint8
	SetLocalNodeID(id uint8) error
}

// Allocation lifecycle states.
const (
	stateAnonymous = "anonymous"
	stateMatching  = "matching"
	stateAllocated = "allocated"
)

// Manager acquires a node id from an allocator that assigns ids by
// progressive matching on the requester's 16-byte unique id.
type Manager struct {
	clk clock.Clock
	rng *clock.Rand
	bus Bus
	uid [dronecan.UniqueIDSize]byte

	uniqueIDOffset uint8
	nextRequestMs  uint32
	transferID     uint8

	life *fsm.FSM
}

// New creates a manager; the first request is scheduled with the usual
// randomized delay from now.
func New(clk clock.Clock, rng *clock.Rand, bus Bus, uid [dronecan.UniqueIDSize]byte) *Manager {
	m := &Manager{clk: clk, rng: rng, bus: bus, uid: uid}
	m.life = fsm.NewFSM(
		stateAnonymous,
		fsm.Events{
			{Name: "partial", Src: []string{stateAnonymous, stateMatching}, Dst: stateMatching},
			{Name: "mismatch", Src: []string{stateAnonymous, stateMatching}, Dst: stateAnonymous},
			{Name: "allocated", Src: []string{stateAnonymous, stateMatching}, Dst: stateAllocated},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debugf("identity: %s -> %s", e.Src, e.Dst)
			},
		},
	)
	m.scheduleNext()
	return m
}

// UniqueIDOffset returns how many bytes of the unique id the allocator
// has confirmed so far.
func (m *Manager) UniqueIDOffset() uint8 {
	return m.uniqueIDOffset
}

// State returns the lifecycle state for observability.
func (m *Manager) State() string {
	return m.life.Current()
}

func (m *Manager) scheduleNext() {
	m.nextRequestMs = m.clk.NowMs() +
		dronecan.AllocationMinRequestPeriodMs +
		uint32(m.rng.Range(dronecan.AllocationMaxFollowupDelayMs))
}

func (m *Manager) event(name string, args ...interface{}) {
	if err := m.life.Event(context.Background(), name, args...); err != nil {
		var canceled fsm.CanceledError
		if !errors.As(err, &canceled) {
			log.Debugf("identity: fsm event %s: %v", name, err)
		}
	}
}

// Tick sends the next allocation request if one is due. Once a node id
// is assigned the manager goes quiet forever.
func (m *Manager) Tick() {
	if m.bus.LocalNodeID() != transport.BroadcastNodeID {
		return
	}
	now := m.clk.NowMs()
	if now < m.nextRequestMs {
		return
	}
	m.scheduleNext()

	// First payload byte: the requested id (none) and the first-part
	// flag; then as much of the unique id as fits one frame.
	req := make([]byte, 1, 1+dronecan.AllocationMaxUniqueIDPerFrame)
	req[0] = transport.BroadcastNodeID << 1
	if m.uniqueIDOffset == 0 {
		req[0] |= 1
	}

	n := dronecan.UniqueIDSize - int(m.uniqueIDOffset)
	if n > dronecan.AllocationMaxUniqueIDPerFrame {
		n = dronecan.AllocationMaxUniqueIDPerFrame
	}
	req = append(req, m.uid[m.uniqueIDOffset:int(m.uniqueIDOffset)+n]...)

	if err := m.bus.Broadcast(dronecan.DynamicNodeIDAllocationSignature,
		dronecan.DynamicNodeIDAllocationID,
		&m.transferID,
		transport.PriorityLow,
		req); err != nil {
		log.Debugf("identity: allocation request not sent: %v", err)
	}

	// If a response confirms our prefix the handler advances this again;
	// otherwise the next round starts over from the first part.
	m.uniqueIDOffset = 0
}

// HandleAllocation processes one allocation broadcast addressed to the
// bus at large.
func (m *Manager) HandleAllocation(t transport.Transfer) {
	if m.bus.LocalNodeID() != transport.BroadcastNodeID {
		return
	}

	// Any allocator activity re-randomizes our next request slot.
	m.scheduleNext()

	if t.SourceNodeID == transport.BroadcastNodeID {
		// Another requester's anonymous frame; back off and restart the
		// exchange from the first part.
		m.uniqueIDOffset = 0
		return
	}

	var msg dronecan.Allocation
	if err := msg.Unmarshal(t.Payload); err != nil {
		return
	}

	if !bytes.HasPrefix(m.uid[:], msg.UniqueID) {
		m.uniqueIDOffset = 0
		m.event("mismatch")
		return
	}

	if len(msg.UniqueID) < dronecan.UniqueIDSize {
		// The allocator confirmed part of the unique id; accelerate the
		// following round.
		m.uniqueIDOffset = uint8(len(msg.UniqueID))
		m.nextRequestMs -= dronecan.AllocationMinRequestPeriodMs
		m.event("partial")
		return
	}

	if msg.NodeID != transport.BroadcastNodeID {
		if err := m.bus.SetLocalNodeID(msg.NodeID); err != nil {
			log.Warnf("identity: allocator assigned invalid id %d", msg.NodeID)
			return
		}
		m.event("allocated")
		log.Infof("identity: allocated node id %d", msg.NodeID)
	}
}
