// internal/flash/writer.go
package flash

import (
	log "github.com/sirupsen/logrus"
)

// Writer coordinates sector-aligned erase-before-write over a Device.
// Single writer; the cooperative main loop is the only caller.
type Writer struct {
	dev      Device
	erasedTo uint16
}

// NewWriter creates a writer over dev.
func NewWriter(dev Device) *Writer {
	return &Writer{dev: dev}
}

// Reset forgets erase progress. Called when a new update begins.
func (w *Writer) Reset() {
	w.erasedTo = 0
}

// ErasedTo returns one past the highest sector guaranteed erased.
func (w *Writer) ErasedTo() uint16 {
	return w.erasedTo
}

// EraseTo erases up to at least the given sector. Idempotent: sectors
// below the erased watermark are never touched again.
//
// After the requested sector, erasing continues speculatively into
// following sectors until the end of flash or the first already-erased
// sector. Batching erases at the start of an update is much faster than
// inter-chunk erases on parts with large sectors, and stopping at the
// first erased sector avoids sweeping a device much larger than the
// image.
func (w *Writer) EraseTo(sector uint16) {
	if sector < w.erasedTo {
		return
	}
	if w.dev.SectorSize(sector) == 0 {
		// Past the end of flash; the overrun is reported at commit time.
		return
	}
	if err := w.dev.EraseSector(sector); err != nil {
		log.Warnf("flash: erase sector %d: %v", sector, err)
	}
	w.erasedTo = sector + 1

	for w.dev.SectorSize(w.erasedTo) != 0 && !w.dev.IsErased(w.erasedTo) {
		if err := w.dev.EraseSector(w.erasedTo); err != nil {
			log.Warnf("flash: erase sector %d: %v", w.erasedTo, err)
			return
		}
		w.erasedTo++
	}
}

// Write programs len(data) bytes at offset, padded out to whole words.
// A false return is transient; the caller must retry the same range
// without advancing.
func (w *Writer) Write(offset uint32, data []byte) bool {
	words := make([]uint32, (len(data)+3)/4)
	for i, b := range data {
		words[i/4] |= uint32(b) << (8 * uint(i%4))
	}
	return w.dev.WriteWords(offset, words)
}

// SectorSize exposes the device geometry to the update engine.
func (w *Writer) SectorSize(i uint16) uint32 {
	return w.dev.SectorSize(i)
}

// Flush commits buffered writes.
func (w *Writer) Flush() {
	w.dev.Flush()
}

// SetKeepUnlocked forwards the unlock latch to the device.
func (w *Writer) SetKeepUnlocked(unlocked bool) {
	w.dev.SetKeepUnlocked(unlocked)
}
