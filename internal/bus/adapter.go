// internal/bus/adapter.go
package bus

import (
	"errors"

	"github.com/skybus/canboot/internal/can"
	"github.com/skybus/canboot/internal/clock"
	"github.com/skybus/canboot/internal/transport"
)

// maxConsecutiveFailures bounds how long a persistently failing link
// can hold the head of the tx queue before the frame is discarded to
// keep the pool from filling up.
const maxConsecutiveFailures = 8

// Adapter bridges the CAN interfaces and the transport's frame queues.
// With one interface this is the direct-driver build; with several,
// outbound frames go to every interface and inbound frames from any
// interface are merged.
type Adapter struct {
	tp     *transport.Instance
	clk    clock.Clock
	ifaces []can.Interface

	failCount uint8
}

// NewAdapter wires the transport to one or more interfaces.
func NewAdapter(tp *transport.Instance, clk clock.Clock, ifaces ...can.Interface) (*Adapter, error) {
	if len(ifaces) == 0 {
		return nil, errors.New("bus: at least one interface required")
	}
	return &Adapter{tp: tp, clk: clk, ifaces: ifaces}, nil
}

// DrainTx attempts to send queued frames. On success the frame is
// popped and the failure count reset. On failure the count grows; once
// it reaches the bound the frame is popped anyway and the drain stops
// for this tick.
func (a *Adapter) DrainTx() {
	for {
		f, ok := a.tp.PeekTx()
		if !ok {
			return
		}

		sent := false
		for _, iface := range a.ifaces {
			if iface.Send(f) {
				sent = true
			}
		}

		if sent {
			a.tp.PopTx()
			a.failCount = 0
			continue
		}

		if a.failCount < maxConsecutiveFailures {
			a.failCount++
		} else {
			a.tp.PopTx()
		}
		return
	}
}

// PollRx drains all available inbound frames, timestamping each with
// the microsecond clock, and hands them to the transport.
func (a *Adapter) PollRx() {
	for {
		got := false
		for _, iface := range a.ifaces {
			f, ok := iface.Receive()
			if !ok {
				continue
			}
			a.tp.HandleRxFrame(f, a.clk.NowUs())
			got = true
		}
		if !got {
			return
		}
	}
}
