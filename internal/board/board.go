// internal/board/board.go
package board

import (
	"encoding/hex"
	"os"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// Info identifies the board to the bus.
type Info struct {
	Name          string
	BoardID       uint16
	SoftwareMajor uint8
	SoftwareMinor uint8
}

// Control owns the terminal side effects.
type Control interface {
	// JumpToApp transfers control to the application image; does not
	// return on success.
	JumpToApp() error

	// SystemReset restarts the node immediately.
	SystemReset()
}

// ResetCause reports why the previous run ended. Hosts that cannot
// tell return false for everything.
type ResetCause interface {
	WasSoftwareReset() bool
	WasWatchdogReset() bool
}

// ExecControl hands over by replacing the bootloader process with the
// application binary; the supervisor restarting us is the system reset.
type ExecControl struct {
	AppPath string
	Args    []string
}

func (c ExecControl) JumpToApp() error {
	argv := append([]string{c.AppPath}, c.Args...)
	log.Infof("board: handing over to %s", c.AppPath)
	return syscall.Exec(c.AppPath, argv, os.Environ())
}

func (c ExecControl) SystemReset() {
	log.Info("board: system reset")
	os.Exit(0)
}

// NoResetCause is the host default.
type NoResetCause struct{}

func (NoResetCause) WasSoftwareReset() bool { return false }
func (NoResetCause) WasWatchdogReset() bool { return false }

// machineIDPath holds the host's stable identity.
const machineIDPath = "/etc/machine-id"

// UniqueID reads the 16-byte hardware unique id, right-padded with
// zeros if the source yields fewer significant bytes.
func UniqueID() [16]byte {
	var uid [16]byte
	raw, err := os.ReadFile(machineIDPath)
	if err != nil {
		log.Warnf("board: unique id unavailable: %v", err)
		return uid
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		copy(uid[:], raw)
		return uid
	}
	copy(uid[:], decoded)
	return uid
}
