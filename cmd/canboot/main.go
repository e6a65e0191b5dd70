// cmd/canboot/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/skybus/canboot/internal/board"
	"github.com/skybus/canboot/internal/bus"
	"github.com/skybus/canboot/internal/can"
	"github.com/skybus/canboot/internal/clock"
	"github.com/skybus/canboot/internal/config"
	"github.com/skybus/canboot/internal/flash"
	"github.com/skybus/canboot/internal/handoff"
	"github.com/skybus/canboot/internal/integrity"
	"github.com/skybus/canboot/internal/node"
)

var (
	configPath = kingpin.Arg("config", "Path to the bootloader config file.").Required().String()
	ifaceFlag  = kingpin.Flag("iface", "Override the CAN interface list.").Strings()
	nodeIDFlag = kingpin.Flag("node-id", "Pin the node id, skipping dynamic allocation.").Uint8()
	levelFlag  = kingpin.Flag("log-level", "Override the configured log level.").String()
)

// noRegisters stands in for the CAN filter-register bank on hosts
// without the legacy peripheral.
type noRegisters struct{}

func (noRegisters) Filters() []uint32           { return nil }
func (noRegisters) SetFilter(int, uint32) error { return nil }

func main() {
	kingpin.Parse()

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *ifaceFlag != nil && len(*ifaceFlag) > 0 {
		cfg.CAN.Interfaces = *ifaceFlag
	}
	if *nodeIDFlag != 0 {
		cfg.Node.NodeID = *nodeIDFlag
	}
	if *levelFlag != "" {
		cfg.Debug.LogLevel = *levelFlag
	}

	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}
	config.Normalize(cfg)

	level, err := log.ParseLevel(cfg.Debug.LogLevel)
	if err != nil {
		log.Fatalf("bad log level %q: %v", cfg.Debug.LogLevel, err)
	}
	log.SetLevel(level)

	// --------------------
	// Hardware surfaces
	// --------------------

	dev, err := flash.OpenFileDevice(cfg.Flash.Image, cfg.Flash.Sectors)
	if err != nil {
		log.Fatalf("flash open failed: %v", err)
	}
	fw := flash.NewWriter(dev)
	checker := &integrity.DescriptorChecker{Image: dev, BoardID: cfg.Node.BoardID}

	ifaces := make([]can.Interface, 0, len(cfg.CAN.Interfaces))
	for _, name := range cfg.CAN.Interfaces {
		iface, err := bus.Open(name)
		if err != nil {
			log.Fatalf("CAN open failed (%s): %v", name, err)
		}
		defer iface.Close()
		ifaces = append(ifaces, iface)
	}

	boot := board.ExecControl{AppPath: cfg.Flash.App}
	cause := board.NoResetCause{}

	// --------------------
	// Node
	// --------------------

	n, err := node.New(node.Config{
		Info: board.Info{
			Name:          cfg.Node.Name,
			BoardID:       cfg.Node.BoardID,
			SoftwareMajor: cfg.Node.Version.Major,
			SoftwareMinor: cfg.Node.Version.Minor,
		},
		PipelineLen: cfg.CAN.Pipeline,
		CANLog:      cfg.Debug.CANLog,
	}, clock.NewMonotonic(), clock.NewRand(), fw, checker, boot, cause, ifaces...)
	if err != nil {
		log.Fatalf("node build failed: %v", err)
	}

	// --------------------
	// Pre-boot handoff
	// --------------------

	adopted := false
	if cfg.Handoff.RAMRecord != "" {
		if u, ok := handoff.ReadRegionA(handoff.FileRegion{Path: cfg.Handoff.RAMRecord}); ok {
			if err := n.SetNodeID(u.NodeID); err != nil {
				log.Fatalf("handoff node id %d: %v", u.NodeID, err)
			}
			n.StartUpdate(u.ServerNodeID, u.Path)
			adopted = true
			log.Infof("handoff: node %d, update from %d path %q", u.NodeID, u.ServerNodeID, u.Path)
		}
	}
	if !adopted && cause.WasSoftwareReset() {
		if u, ok := handoff.ReadRegionB(noRegisters{}); ok {
			if err := n.SetNodeID(u.NodeID); err != nil {
				log.Fatalf("handoff node id %d: %v", u.NodeID, err)
			}
			if u.BusSpeed != 0 && config.SupportedBitrate(u.BusSpeed) {
				cfg.CAN.Bitrate = u.BusSpeed
			}
			adopted = true
		}
	}
	if !adopted && cfg.Node.NodeID != 0 {
		if err := n.SetNodeID(cfg.Node.NodeID); err != nil {
			log.Fatalf("configured node id %d: %v", cfg.Node.NodeID, err)
		}
	}

	// --------------------
	// Run until signalled
	// --------------------

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("canboot: %s board %d, %d interface(s), pipeline %d",
		cfg.Node.Name, cfg.Node.BoardID, len(cfg.CAN.Interfaces), cfg.CAN.Pipeline)
	if err := n.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("main loop: %v", err)
	}
}
