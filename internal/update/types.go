// internal/update/types.go
package update

import (
	"github.com/skybus/canboot/internal/dronecan"
)

// Requester is the slice of the transport the engine sends through.
type Requester interface {
	Request(dest uint8, signature uint64, dataTypeID uint16, transferID *uint8, priority uint8, payload []byte) error
}

// Pump drains the outbound frame queue; called right after a read is
// re-issued from the commit loop so the request leaves this tick.
type Pump interface {
	DrainTx()
}

// Control owns the terminal side effect: transferring control to the
// verified application. Does not return on success.
type Control interface {
	JumpToApp() error
}

// StatusSink receives vendor status updates: pre-update health codes,
// progress while flashing, and terminal failure codes.
type StatusSink interface {
	SetVendor(code uint16)
}

// readSlot is one outstanding pipelined read.
type readSlot struct {
	txID      uint8
	sentMs    uint32
	offset    uint32
	haveReply bool
	pkt       dronecan.FileReadResponse
}

// RTT estimator bounds.
const (
	rttFloorMs   = 25
	rttCeilMs    = 3000
	rttMissStep  = 250
	readRespBase = 10
)

// Pipeline depth limits. Transfer ids are matched in the transport's
// 5-bit space, so the window of outstanding reads must stay well inside
// it.
const (
	MinPipelineLen = 1
	MaxPipelineLen = 16
)
