// internal/status/emitter.go
package status

import (
	"github.com/skybus/canboot/internal/clock"
	"github.com/skybus/canboot/internal/dronecan"
	"github.com/skybus/canboot/internal/transport"
)

// Broadcaster is the slice of the transport the emitter needs.
type Broadcaster interface {
	Broadcast(signature uint64, dataTypeID uint16, transferID *uint8, priority uint8, payload []byte) error
}

// Emitter broadcasts the periodic liveness message.
type Emitter struct {
	node       *Node
	clk        clock.Clock
	tx         Broadcaster
	transferID uint8
}

// NewEmitter creates an emitter over the shared node state.
func NewEmitter(node *Node, clk clock.Clock, tx Broadcaster) *Emitter {
	return &Emitter{node: node, clk: clk, tx: tx}
}

// Emit broadcasts one NodeStatus with refreshed uptime and the mode for
// the given update-in-progress state.
func (e *Emitter) Emit(updating bool) error {
	if updating {
		e.node.SetMode(dronecan.ModeSoftwareUpdate)
	} else {
		e.node.SetMode(dronecan.ModeMaintenance)
	}
	snap := e.node.Snapshot(e.clk.NowMs() / 1000)
	return e.tx.Broadcast(dronecan.NodeStatusSignature,
		dronecan.NodeStatusID,
		&e.transferID,
		transport.PriorityLow,
		snap.Marshal())
}
