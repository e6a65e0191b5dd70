// internal/node/loghook.go
package node

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/skybus/canboot/internal/dronecan"
	"github.com/skybus/canboot/internal/transport"
)

// logHook mirrors notable log entries onto the bus as LogMessage
// broadcasts. Entries are buffered under a mutex because logrus may
// fire from the interface goroutines; the main loop flushes them in
// transport context at 1 Hz.
type logHook struct {
	mu      sync.Mutex
	source  string
	pending []dronecan.LogMessage
	tid     uint8
}

const logHookBacklog = 8

func newLogHook(source string) *logHook {
	if len(source) > 31 {
		source = source[len(source)-31:]
	}
	return &logHook{source: source}
}

func (h *logHook) Levels() []log.Level {
	return []log.Level{log.ErrorLevel, log.WarnLevel, log.InfoLevel}
}

func (h *logHook) Fire(e *log.Entry) error {
	var level uint8
	switch e.Level {
	case log.ErrorLevel:
		level = dronecan.LogLevelError
	case log.WarnLevel:
		level = dronecan.LogLevelWarning
	default:
		level = dronecan.LogLevelInfo
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.pending) >= logHookBacklog {
		// Diagnostics only; drop rather than grow.
		return nil
	}
	h.pending = append(h.pending, dronecan.LogMessage{
		Level:  level,
		Source: h.source,
		Text:   e.Message,
	})
	return nil
}

// flush broadcasts buffered entries. Called from the main loop only.
func (h *logHook) flush(tp *transport.Instance) {
	h.mu.Lock()
	pending := h.pending
	h.pending = nil
	h.mu.Unlock()

	for _, m := range pending {
		if err := tp.Broadcast(dronecan.LogMessageSignature,
			dronecan.LogMessageID,
			&h.tid,
			transport.PriorityLowest,
			m.Marshal()); err != nil {
			return
		}
	}
}
