// internal/flash/device.go
package flash

// Device abstracts the on-chip flash programming primitives. The writer
// depends on geometry and these operations only.
type Device interface {
	// SectorSize returns the size in bytes of sector i; 0 means past
	// the end of flash.
	SectorSize(i uint16) uint32

	// IsErased reports whether sector i currently holds erased cells.
	IsErased(i uint16) bool

	// EraseSector erases sector i.
	EraseSector(i uint16) error

	// WriteWords programs words at the given byte offset. A false
	// return is a transient failure; the caller retries the same data.
	WriteWords(offset uint32, words []uint32) bool

	// Flush commits any buffered writes to the device.
	Flush()

	// SetKeepUnlocked holds the device unlocked across consecutive
	// writes during an update.
	SetKeepUnlocked(unlocked bool)
}
