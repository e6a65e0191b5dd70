// internal/bus/socketcan.go
package bus

import (
	"net"

	socketcan "github.com/brutella/can"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skybus/canboot/internal/can"
)

// EffFlag marks a 29-bit identifier in the SocketCAN id word.
const EffFlag uint32 = 1 << 31

const rtrFlag uint32 = 1 << 30

// SocketCAN adapts one SocketCAN interface to the non-blocking
// can.Interface the transport adapter polls. Received frames are
// buffered; the main loop drains them on its own schedule.
type SocketCAN struct {
	bus *socketcan.Bus
	rx  chan can.Frame
}

// Open binds to a named interface (e.g. "can0") and starts receiving.
func Open(name string) (*SocketCAN, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, errors.Wrapf(err, "bus: interface %s", name)
	}
	conn, err := socketcan.NewReadWriteCloserForInterface(iface)
	if err != nil {
		return nil, errors.Wrapf(err, "bus: open %s", name)
	}

	s := &SocketCAN{
		bus: socketcan.NewBus(conn),
		rx:  make(chan can.Frame, 256),
	}
	s.bus.SubscribeFunc(s.handleFrame)
	go func() {
		if err := s.bus.ConnectAndPublish(); err != nil {
			log.Errorf("bus: %s receive loop ended: %v", name, err)
		}
	}()
	return s, nil
}

// Close disconnects from the interface.
func (s *SocketCAN) Close() error {
	return s.bus.Disconnect()
}

func (s *SocketCAN) handleFrame(frm socketcan.Frame) {
	var f can.Frame
	f.ID = frm.ID &^ (EffFlag | rtrFlag)
	f.Extended = frm.ID&EffFlag != 0
	f.RTR = frm.ID&rtrFlag != 0
	f.Len = frm.Length
	if f.Len > 8 {
		f.Len = 8
	}
	copy(f.Data[:], frm.Data[:])

	select {
	case s.rx <- f:
	default:
		// The main loop has fallen behind; dropping here is no worse
		// than the hardware FIFO overflowing.
		log.Warn("bus: rx buffer overflow, frame dropped")
	}
}

// Send implements can.Interface.
func (s *SocketCAN) Send(f can.Frame) bool {
	var frm socketcan.Frame
	frm.ID = f.ID
	if f.Extended {
		frm.ID |= EffFlag
	}
	if f.RTR {
		frm.ID |= rtrFlag
	}
	frm.Length = f.Len
	copy(frm.Data[:], f.Data[:])

	if err := s.bus.Publish(frm); err != nil {
		log.Debugf("bus: publish: %v", err)
		return false
	}
	return true
}

// Receive implements can.Interface.
func (s *SocketCAN) Receive() (can.Frame, bool) {
	select {
	case f := <-s.rx:
		return f, true
	default:
		return can.Frame{}, false
	}
}
