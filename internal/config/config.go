// internal/config/config.go
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Node    NodeConfig    `yaml:"node"`
	CAN     CANConfig     `yaml:"can"`
	Flash   FlashConfig   `yaml:"flash"`
	Handoff HandoffConfig `yaml:"handoff"`
	Debug   DebugConfig   `yaml:"debug"`
}

// ---- NODE ----

type NodeConfig struct {
	Name    string        `yaml:"name"`
	BoardID uint16        `yaml:"board_id"`
	Version VersionConfig `yaml:"version"`

	// NodeID pins the identity; 0 means dynamic allocation.
	NodeID uint8 `yaml:"node_id"`
}

type VersionConfig struct {
	Major uint8 `yaml:"major"`
	Minor uint8 `yaml:"minor"`
}

// ---- CAN ----

type CANConfig struct {
	Interfaces []string `yaml:"interfaces"`
	Bitrate    uint32   `yaml:"bitrate"`

	// Pipeline is the read pipeline depth; 0 picks the build default
	// (4 for the HAL-backed multi-interface build, 1 for the direct
	// single-driver build).
	Pipeline int `yaml:"pipeline"`
}

// ---- FLASH GEOMETRY ----

type FlashConfig struct {
	Image   string   `yaml:"image"`
	Sectors []uint32 `yaml:"sectors"`
	App     string   `yaml:"app"` // application entry point after a verified update
}

// ---- HANDOFF ----

type HandoffConfig struct {
	RAMRecord string `yaml:"ram_record"`
}

// ---- DEBUG ----

type DebugConfig struct {
	LogLevel string `yaml:"log_level"`
	CANLog   bool   `yaml:"can_log"`
}

// Load reads and decodes a config file. It performs no validation.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
