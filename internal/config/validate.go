// internal/config/validate.go
package config

import (
	"fmt"
)

// supportedBitrates are the rates the bit-timing table covers. A
// handoff-supplied rate outside this set falls back to the configured
// default rather than leaving the bus dead.
var supportedBitrates = map[uint32]bool{
	125_000:   true,
	250_000:   true,
	500_000:   true,
	1_000_000: true,
}

// SupportedBitrate reports whether the bit-timing table covers rate.
func SupportedBitrate(rate uint32) bool {
	return supportedBitrates[rate]
}

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	// ------------------------------------------------------------
	// NODE IDENTITY
	// ------------------------------------------------------------

	if cfg.Node.Name == "" {
		return fmt.Errorf("node name required")
	}
	for i := 0; i < len(cfg.Node.Name); i++ {
		if cfg.Node.Name[i] > 0x7F {
			return fmt.Errorf("node name must contain ASCII characters only")
		}
	}
	if len(cfg.Node.Name) > 80 {
		return fmt.Errorf("node name %q exceeds 80 characters", cfg.Node.Name)
	}
	if cfg.Node.NodeID > 127 {
		return fmt.Errorf("node_id %d out of range 0-127", cfg.Node.NodeID)
	}

	// ------------------------------------------------------------
	// CAN
	// ------------------------------------------------------------

	if len(cfg.CAN.Interfaces) == 0 {
		return fmt.Errorf("at least one CAN interface required")
	}
	seen := make(map[string]bool)
	for _, iface := range cfg.CAN.Interfaces {
		if iface == "" {
			return fmt.Errorf("empty CAN interface name")
		}
		if seen[iface] {
			return fmt.Errorf("duplicate CAN interface %q", iface)
		}
		seen[iface] = true
	}
	if cfg.CAN.Bitrate != 0 && !SupportedBitrate(cfg.CAN.Bitrate) {
		return fmt.Errorf("unsupported bitrate %d", cfg.CAN.Bitrate)
	}
	if cfg.CAN.Pipeline < 0 || cfg.CAN.Pipeline > 16 {
		return fmt.Errorf("pipeline depth %d out of range 0-16", cfg.CAN.Pipeline)
	}

	// ------------------------------------------------------------
	// FLASH GEOMETRY
	// ------------------------------------------------------------

	if cfg.Flash.Image == "" {
		return fmt.Errorf("flash image path required")
	}
	if len(cfg.Flash.Sectors) == 0 {
		return fmt.Errorf("flash sector map required")
	}
	for i, s := range cfg.Flash.Sectors {
		if s == 0 {
			return fmt.Errorf("flash sector %d has zero size", i)
		}
		if s%4 != 0 {
			return fmt.Errorf("flash sector %d size %d not word-aligned", i, s)
		}
	}

	return nil
}
