// internal/config/normalize.go
package config

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.CAN.Bitrate == 0 {
		cfg.CAN.Bitrate = 1_000_000
	}

	// Pipeline depth is a capability of the build: the direct
	// single-driver path is not pipelined.
	if cfg.CAN.Pipeline == 0 {
		if len(cfg.CAN.Interfaces) > 1 {
			cfg.CAN.Pipeline = 4
		} else {
			cfg.CAN.Pipeline = 1
		}
	}

	if cfg.Debug.LogLevel == "" {
		cfg.Debug.LogLevel = "info"
	}
}
