// internal/node/node.go
package node

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/skybus/canboot/internal/board"
	"github.com/skybus/canboot/internal/bus"
	"github.com/skybus/canboot/internal/can"
	"github.com/skybus/canboot/internal/clock"
	"github.com/skybus/canboot/internal/dronecan"
	"github.com/skybus/canboot/internal/flash"
	"github.com/skybus/canboot/internal/identity"
	"github.com/skybus/canboot/internal/integrity"
	"github.com/skybus/canboot/internal/status"
	"github.com/skybus/canboot/internal/transport"
	"github.com/skybus/canboot/internal/update"
)

// Config assembles one bootloader node.
type Config struct {
	Info        board.Info
	PipelineLen int

	// CANLog mirrors info, warning and error log entries onto the bus as
	// LogMessage broadcasts for non-essential diagnostics.
	CANLog bool
}

// Node ties the transport, the identity manager, the update engine and
// the periodic tasks into the cooperative main loop.
type Node struct {
	cfg  Config
	clk  clock.Clock
	uid  [dronecan.UniqueIDSize]byte
	st   *status.Node
	boot board.Control

	tp      *transport.Instance
	adapter *bus.Adapter
	ident   *identity.Manager
	eng     *update.Engine
	emitter *status.Emitter
	canLog  *logHook

	last1HzMs uint32
}

// New wires a node over the given interfaces. The initial vendor status
// is the pre-update health of the resident image, or the watchdog code
// when the previous run died by watchdog.
func New(cfg Config, clk clock.Clock, rng *clock.Rand, fw *flash.Writer, checker integrity.Checker,
	boot board.Control, cause board.ResetCause, ifaces ...can.Interface) (*Node, error) {

	n := &Node{
		cfg:  cfg,
		clk:  clk,
		uid:  board.UniqueID(),
		boot: boot,
	}

	vendor := uint16(checker.Check())
	if cause.WasWatchdogReset() {
		vendor = uint16(integrity.FailWatchdog)
	}
	n.st = status.NewNode(uint8(vendor))

	n.tp = transport.New(n)

	adapter, err := bus.NewAdapter(n.tp, clk, ifaces...)
	if err != nil {
		return nil, err
	}
	n.adapter = adapter

	n.ident = identity.New(clk, rng, n.tp, n.uid)
	n.emitter = status.NewEmitter(n.st, clk, n.tp)

	eng, err := update.New(update.Config{PipelineLen: cfg.PipelineLen},
		clk, n.tp, fw, checker, boot, adapter, n.st)
	if err != nil {
		return nil, err
	}
	n.eng = eng

	if cfg.CANLog {
		n.canLog = newLogHook(cfg.Info.Name)
		log.AddHook(n.canLog)
	}
	return n, nil
}

// SetNodeID adopts a pre-assigned id, skipping dynamic allocation.
func (n *Node) SetNodeID(id uint8) error {
	return n.tp.SetLocalNodeID(id)
}

// StartUpdate begins pulling an image immediately; the pre-boot handoff
// path.
func (n *Node) StartUpdate(serverNodeID uint8, path string) {
	n.eng.Start(serverNodeID, path)
}

// Updating reports whether an update is in flight.
func (n *Node) Updating() bool {
	return n.eng.InProgress()
}

// Run is the cooperative main loop: drain tx, poll rx, drive the
// identity exchange, the 1 Hz tasks and the read pipeline, then yield
// briefly. Returns when ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n.adapter.DrainTx()
		n.adapter.PollRx()
		n.ident.Tick()

		now := n.clk.NowMs()
		if now-n.last1HzMs >= 1000 {
			n.last1HzMs = now
			n.tick1Hz()
		}

		if n.eng.InProgress() {
			n.eng.SendReads()
		}

		// Yield to the interface goroutines.
		time.Sleep(200 * time.Microsecond)
	}
}

// tick1Hz ages out stale transfers and broadcasts liveness.
func (n *Node) tick1Hz() {
	n.tp.CleanupStaleTransfers(n.clk.NowUs())

	if n.tp.LocalNodeID() == transport.BroadcastNodeID {
		return
	}
	if err := n.emitter.Emit(n.eng.InProgress()); err != nil {
		log.Debugf("node: status broadcast: %v", err)
	}
	if n.canLog != nil {
		n.canLog.flush(n.tp)
	}
}
