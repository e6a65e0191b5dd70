// internal/transport/rx.go
package transport

import "github.com/skybus/canboot/internal/can"

// HandleRxFrame feeds one received frame into reassembly. tsUs is the
// reception timestamp from the microsecond clock.
func (in *Instance) HandleRxFrame(f can.Frame, tsUs uint64) {
	// DroneCAN uses extended data frames only.
	if !f.Extended || f.RTR || f.Len == 0 {
		return
	}

	source := uint8(f.ID & sourceNodeIDMask)
	priority := uint8(f.ID >> offsetPriority & 0x1F)
	var kind Kind
	var dataTypeID uint16

	if f.ID&flagServiceNotMessage != 0 {
		dest := uint8(f.ID >> offsetDestNodeID & sourceNodeIDMask)
		if in.localID == BroadcastNodeID || dest != in.localID {
			return
		}
		dataTypeID = uint16(f.ID >> offsetServiceTypeID & 0xFF)
		if f.ID&flagRequestNotResponse != 0 {
			kind = KindRequest
		} else {
			kind = KindResponse
		}
	} else {
		kind = KindBroadcast
		if source == BroadcastNodeID {
			// Anonymous frame: only the low two bits of the type id
			// survive next to the discriminator.
			dataTypeID = uint16(f.ID >> offsetMessageTypeID & 3)
		} else {
			dataTypeID = uint16(f.ID >> offsetMessageTypeID & 0xFFFF)
		}
	}

	tail := f.Data[f.Len-1]
	sot := tail&tailStartOfTransfer != 0
	eot := tail&tailEndOfTransfer != 0
	toggle := tail&tailToggle != 0
	tid := tail & tailTransferIDMask

	if sot && eot {
		if toggle {
			return
		}
		accept, _ := in.handler.ShouldAccept(dataTypeID, kind, source)
		if !accept {
			return
		}
		in.handler.OnTransfer(Transfer{
			Kind:         kind,
			DataTypeID:   dataTypeID,
			SourceNodeID: source,
			TransferID:   tid,
			Priority:     priority,
			Payload:      append([]byte(nil), f.Data[:f.Len-1]...),
		})
		return
	}

	// Anonymous transfers never span frames.
	if source == BroadcastNodeID {
		return
	}

	if sot {
		if toggle || f.Len < 3 {
			return
		}
		accept, signature := in.handler.ShouldAccept(dataTypeID, kind, source)
		if !accept {
			return
		}
		s := in.findState(kind, dataTypeID, source)
		if s == nil {
			s = in.freeState()
			if s == nil {
				return // arena exhausted, drop the transfer
			}
		}
		s.active = true
		s.kind = kind
		s.dataTypeID = dataTypeID
		s.sourceNodeID = source
		s.transferID = tid
		s.priority = priority
		s.toggle = false
		s.signature = signature
		s.crc = uint16(f.Data[0]) | uint16(f.Data[1])<<8
		s.tsUs = tsUs
		s.buf = s.buf[:0]
		s.buf = append(s.buf, f.Data[2:f.Len-1]...)
		return
	}

	s := in.findState(kind, dataTypeID, source)
	if s == nil || !s.active {
		return
	}
	if tid != s.transferID {
		return
	}
	if toggle == s.toggle {
		// Duplicated frame; the sender alternates the toggle.
		return
	}
	if len(s.buf)+int(f.Len)-1 > rxBufferCap {
		s.active = false
		s.buf = s.buf[:0]
		return
	}
	s.toggle = toggle
	s.tsUs = tsUs
	s.buf = append(s.buf, f.Data[:f.Len-1]...)

	if !eot {
		return
	}

	s.active = false
	if transferCRC(s.signature, s.buf) != s.crc {
		s.buf = s.buf[:0]
		return
	}
	in.handler.OnTransfer(Transfer{
		Kind:         kind,
		DataTypeID:   dataTypeID,
		SourceNodeID: source,
		TransferID:   tid,
		Priority:     s.priority,
		Payload:      append([]byte(nil), s.buf...),
	})
	s.buf = s.buf[:0]
}

func (in *Instance) findState(kind Kind, dataTypeID uint16, source uint8) *rxState {
	for i := range in.states {
		s := &in.states[i]
		if s.active && s.kind == kind && s.dataTypeID == dataTypeID && s.sourceNodeID == source {
			return s
		}
	}
	return nil
}

func (in *Instance) freeState() *rxState {
	for i := range in.states {
		if !in.states[i].active {
			return &in.states[i]
		}
	}
	return nil
}
