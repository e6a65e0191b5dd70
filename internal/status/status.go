// internal/status/status.go
package status

import "github.com/skybus/canboot/internal/dronecan"

// Node holds the node's broadcast state. It contains no logic and no
// memory of the past beyond current state; the emitter and the update
// engine mutate it, the info handler reads it.
type Node struct {
	snap dronecan.NodeStatus
}

// NewNode starts in maintenance mode with the given vendor status (the
// pre-update health code from the image checker).
func NewNode(vendor uint8) *Node {
	return &Node{snap: dronecan.NodeStatus{
		Health:       dronecan.HealthOK,
		Mode:         dronecan.ModeMaintenance,
		VendorStatus: uint16(vendor),
	}}
}

// Snapshot returns the current state with uptime refreshed.
func (n *Node) Snapshot(uptimeSec uint32) dronecan.NodeStatus {
	n.snap.UptimeSec = uptimeSec
	return n.snap
}

// SetMode switches between maintenance and software update.
func (n *Node) SetMode(mode uint8) {
	n.snap.Mode = mode
}

// SetVendor records a health code or progress indicator.
func (n *Node) SetVendor(code uint16) {
	n.snap.VendorStatus = code
}

// Vendor returns the current vendor status byte.
func (n *Node) Vendor() uint16 {
	return n.snap.VendorStatus
}

// Progress derives the coarse progress indicator broadcast while an
// update is in flight: 1 + the offset in whole KiB.
func Progress(ofs uint32) uint16 {
	return uint16(1 + ofs/1024)
}
