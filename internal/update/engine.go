// internal/update/engine.go
package update

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/skybus/canboot/internal/clock"
	"github.com/skybus/canboot/internal/dronecan"
	"github.com/skybus/canboot/internal/flash"
	"github.com/skybus/canboot/internal/integrity"
	"github.com/skybus/canboot/internal/status"
	"github.com/skybus/canboot/internal/transport"
)

// Config is the compile-time shape of the engine. PipelineLen is a
// capability of the build: the HAL-backed build pipelines 4 reads, the
// direct-driver build 1.
type Config struct {
	PipelineLen int
}

// Engine drives one firmware update: pipelined file reads from the
// server node, in-order commits to flash, verification, and handoff.
// Single writer: the cooperative main loop.
type Engine struct {
	cfg     Config
	clk     clock.Clock
	tx      Requester
	fw      *flash.Writer
	checker integrity.Checker
	boot    Control
	pump    Pump
	sink    StatusSink

	// Update context. serverNodeID is the gate: zero means dormant.
	serverNodeID uint8
	path         string
	ofs          uint32
	sector       uint16
	sectorOfs    uint32
	transferID   uint8
	idx          int
	rttMs        uint32
	reads        []readSlot
}

// New creates a dormant engine.
func New(cfg Config, clk clock.Clock, tx Requester, fw *flash.Writer, checker integrity.Checker, boot Control, pump Pump, sink StatusSink) (*Engine, error) {
	if cfg.PipelineLen < MinPipelineLen || cfg.PipelineLen > MaxPipelineLen {
		return nil, errors.New("update: pipeline length out of range")
	}
	return &Engine{
		cfg:     cfg,
		clk:     clk,
		tx:      tx,
		fw:      fw,
		checker: checker,
		boot:    boot,
		pump:    pump,
		sink:    sink,
		reads:   make([]readSlot, cfg.PipelineLen),
	}, nil
}

// InProgress reports whether an update is being pulled in.
func (e *Engine) InProgress() bool {
	return e.serverNodeID != 0
}

// ServerNodeID returns the file server for the running update, or 0.
func (e *Engine) ServerNodeID() uint8 {
	return e.serverNodeID
}

// Begin handles a BeginFirmwareUpdate request. While an update is
// already in progress the request is accepted without restarting it, so
// a retrying server sees the same success it missed.
func (e *Engine) Begin(req dronecan.BeginFirmwareUpdateRequest, transferSource uint8) uint8 {
	if e.serverNodeID == 0 {
		server := req.SourceNodeID
		if server == 0 {
			server = transferSource
		}
		e.Start(server, req.Path)
	}
	return dronecan.BeginFirmwareUpdateErrorOK
}

// Start resets the context and seeds the pipeline. Also the entry point
// for the pre-boot handoff path, which supplies server and path
// directly.
func (e *Engine) Start(serverNodeID uint8, path string) {
	e.serverNodeID = serverNodeID
	e.path = path
	e.ofs = 0
	e.sector = 0
	e.sectorOfs = 0
	e.transferID = 0
	e.idx = 0
	e.rttMs = 0
	for i := range e.reads {
		e.reads[i] = readSlot{offset: uint32(i) * dronecan.ReadChunk}
	}
	e.fw.Reset()
	log.Infof("update: started, server %d path %q pipeline %d", serverNodeID, path, e.cfg.PipelineLen)
}

// readTimeoutMs is the per-slot re-issue timeout: a floor for fast
// servers plus twice the smoothed round trip for slow ones.
func (e *Engine) readTimeoutMs() uint32 {
	rtt := e.rttMs
	if rtt < 250 {
		rtt = 250
	}
	return readRespBase + 2*rtt
}

// SendReads issues or re-issues file reads for every slot that needs
// one, in cyclic order starting at the commit index. A transmit
// failure stops the loop for this tick; timing recovers naturally.
func (e *Engine) SendReads() {
	now := e.clk.NowMs()
	for i := 0; i < e.cfg.PipelineLen; i++ {
		idx := (e.idx + i) % e.cfg.PipelineLen
		r := &e.reads[idx]
		if r.haveReply {
			continue
		}
		if r.sentMs != 0 && now-r.sentMs < e.readTimeoutMs() {
			// Waiting on a response.
			continue
		}
		if !e.sendRead(idx) {
			break
		}
	}
}

func (e *Engine) sendRead(idx int) bool {
	r := &e.reads[idx]
	r.txID = e.transferID
	r.haveReply = false

	req := dronecan.FileReadRequest{Offset: uint64(r.offset), Path: e.path}
	if err := e.tx.Request(e.serverNodeID,
		dronecan.FileReadSignature,
		dronecan.FileReadID,
		&e.transferID,
		transport.PriorityHigh,
		req.Marshal()); err != nil {
		return false
	}
	r.sentMs = e.clk.NowMs()
	return true
}

// HandleReadResponse matches a FileRead response to its slot, updates
// the round-trip estimate, and commits as many in-order slots as
// possible.
func (e *Engine) HandleReadResponse(t transport.Transfer) {
	if t.SourceNodeID != e.serverNodeID {
		return
	}

	found := -1
	for i := range e.reads {
		if e.reads[i].txID == t.TransferID {
			found = i
			break
		}
	}
	if found < 0 {
		// Response to a request we already re-issued: the path is
		// slower than the estimate, so grow it.
		if e.rttMs+rttMissStep < rttCeilMs {
			e.rttMs += rttMissStep
		} else {
			e.rttMs = rttCeilMs
		}
		return
	}

	r := &e.reads[found]
	if err := r.pkt.Unmarshal(t.Payload); err != nil {
		return
	}
	r.haveReply = true

	sample := e.clk.NowMs() - r.sentMs
	if sample < rttFloorMs {
		sample = rttFloorMs
	}
	if sample > rttCeilMs {
		sample = rttCeilMs
	}
	if e.rttMs == 0 {
		e.rttMs = sample
	} else {
		e.rttMs = uint32(0.9*float64(e.rttMs) + 0.1*float64(sample))
	}

	e.commit()

	if e.serverNodeID != 0 {
		// One plus the offset in whole KiB as a crude progress indicator.
		e.sink.SetVendor(status.Progress(e.ofs))
	}
}

// commit walks the pipeline from the commit index, writing every
// buffered in-order reply to flash.
func (e *Engine) commit() {
	for e.reads[e.idx].haveReply {
		r := &e.reads[e.idx]
		if r.offset != e.ofs {
			// Bad sequence: the server replied for the wrong offset or
			// a slot was lost. Re-issue this slot and wait.
			r.haveReply = false
			r.sentMs = 0
			return
		}

		data := r.pkt.Data
		n := uint32(len(data))

		if e.ofs == 0 {
			e.fw.SetKeepUnlocked(true)
		}

		sectorSize := e.fw.SectorSize(e.sector)
		if sectorSize == 0 {
			// Image overruns flash.
			e.fail(integrity.FailBadLengthApp)
			return
		}
		if e.sectorOfs == 0 {
			e.fw.EraseTo(e.sector)
		}
		if e.sectorOfs+n > sectorSize {
			e.fw.EraseTo(e.sector + 1)
		}

		if !e.fw.Write(e.ofs, data) {
			// Transient write failure: the slot keeps its reply and the
			// next response retries the commit without advancing.
			return
		}

		e.ofs += n
		e.sectorOfs += n
		if e.sectorOfs >= sectorSize {
			e.sector++
			e.sectorOfs -= sectorSize
		}

		if n < dronecan.ReadChunk {
			e.finish()
			return
		}

		r.haveReply = false
		r.sentMs = 0
		r.offset += uint32(e.cfg.PipelineLen) * dronecan.ReadChunk
		e.sendRead(e.idx)
		e.pump.DrainTx()

		e.idx = (e.idx + 1) % e.cfg.PipelineLen
	}
}

// fail terminates the update, leaving the node reachable so an operator
// can observe the failure code.
func (e *Engine) fail(reason integrity.Result) {
	e.serverNodeID = 0
	e.fw.Flush()
	e.fw.SetKeepUnlocked(false)
	e.sink.SetVendor(uint16(reason))
	log.Errorf("update: failed: %s", reason)
}

// finish runs after the short final chunk: verify the image and hand
// control to the application.
func (e *Engine) finish() {
	e.serverNodeID = 0
	e.fw.Flush()
	e.fw.SetKeepUnlocked(false)

	res := e.checker.Check()
	e.sink.SetVendor(uint16(res))
	if res != integrity.ResultOK {
		log.Errorf("update: image rejected: %s", res)
		return
	}

	log.Infof("update: image verified, %d bytes, jumping to application", e.ofs)
	if err := e.boot.JumpToApp(); err != nil {
		log.Errorf("update: jump failed: %v", err)
	}
}
