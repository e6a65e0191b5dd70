// internal/transport/transport.go
package transport

import (
	"errors"

	"github.com/skybus/canboot/internal/can"
)

// Sizing. All buffers are allocated once in New; nothing grows afterwards.
// rxStateCount * rxBufferCap is the reassembly arena (4 KiB).
const (
	rxStateCount = 8
	rxBufferCap  = 512
	txQueueCap   = 128
)

var (
	ErrTxQueueFull    = errors.New("transport: tx queue full")
	ErrPayloadTooLong = errors.New("transport: payload too long")
	ErrAnonymousMulti = errors.New("transport: anonymous transfers are single-frame only")
	ErrBadNodeID      = errors.New("transport: node id out of range")
)

// rxState is one in-progress multi-frame reassembly.
type rxState struct {
	active       bool
	kind         Kind
	dataTypeID   uint16
	sourceNodeID uint8
	transferID   uint8
	priority     uint8
	toggle       bool
	crc          uint16
	signature    uint64
	tsUs         uint64
	buf          []byte // backed by arena, len grows up to rxBufferCap
}

// Instance is one transport endpoint: a local node id, the rx reassembly
// arena, and the outbound frame queue. Not safe for concurrent use; the
// cooperative main loop is the single caller.
type Instance struct {
	handler Handler
	localID uint8

	states [rxStateCount]rxState
	arena  [rxStateCount][rxBufferCap]byte

	txq     [txQueueCap]can.Frame
	txHead  int
	txCount int
}

// New creates an instance with all buffers preallocated.
func New(handler Handler) *Instance {
	inst := &Instance{handler: handler, localID: BroadcastNodeID}
	for i := range inst.states {
		inst.states[i].buf = inst.arena[i][:0]
	}
	return inst
}

// LocalNodeID returns the current node id; BroadcastNodeID means
// unassigned.
func (in *Instance) LocalNodeID() uint8 {
	return in.localID
}

// SetLocalNodeID commits an allocated id. Out-of-range values are
// rejected so a corrupt allocation can never half-identify the node.
func (in *Instance) SetLocalNodeID(id uint8) error {
	if id == BroadcastNodeID || id > MaxNodeID {
		return ErrBadNodeID
	}
	in.localID = id
	return nil
}

// CleanupStaleTransfers reclaims reassembly slots whose transfers have
// gone quiet. Called at 1 Hz from the main loop.
func (in *Instance) CleanupStaleTransfers(nowUs uint64) {
	for i := range in.states {
		s := &in.states[i]
		if s.active && nowUs-s.tsUs > transferTimeoutUs {
			s.active = false
			s.buf = s.buf[:0]
		}
	}
}
