// internal/transport/tx.go
package transport

import "github.com/skybus/canboot/internal/can"

// Broadcast enqueues a broadcast transfer. While the node is anonymous
// the transfer must fit a single frame and is sent with a discriminator
// in place of the full data type id. The transfer id is advanced on
// success.
func (in *Instance) Broadcast(signature uint64, dataTypeID uint16, transferID *uint8, priority uint8, payload []byte) error {
	var id uint32
	if in.localID == BroadcastNodeID {
		if len(payload) > 7 {
			return ErrAnonymousMulti
		}
		// The discriminator spreads concurrent anonymous senders across
		// arbitration; derived from the payload like libcanard does.
		disc := uint32(crcAdd(0xFFFF, payload)) & 0x3FFF
		id = uint32(priority)<<offsetPriority |
			disc<<offsetDiscriminator |
			uint32(dataTypeID&3)<<offsetMessageTypeID
	} else {
		id = uint32(priority)<<offsetPriority |
			uint32(dataTypeID)<<offsetMessageTypeID |
			uint32(in.localID)
	}

	if err := in.enqueueTransfer(id, signature, *transferID, payload); err != nil {
		return err
	}
	*transferID = (*transferID + 1) & tailTransferIDMask
	return nil
}

// Request enqueues a service request to dest. The transfer id is
// advanced on success.
func (in *Instance) Request(dest uint8, signature uint64, dataTypeID uint16, transferID *uint8, priority uint8, payload []byte) error {
	id := in.serviceID(dest, dataTypeID, priority) | flagRequestNotResponse
	if err := in.enqueueTransfer(id, signature, *transferID, payload); err != nil {
		return err
	}
	*transferID = (*transferID + 1) & tailTransferIDMask
	return nil
}

// Respond enqueues a service response to dest, reusing the request's
// transfer id so the caller can match it.
func (in *Instance) Respond(dest uint8, signature uint64, dataTypeID uint16, transferID uint8, priority uint8, payload []byte) error {
	id := in.serviceID(dest, dataTypeID, priority)
	return in.enqueueTransfer(id, signature, transferID, payload)
}

func (in *Instance) serviceID(dest uint8, dataTypeID uint16, priority uint8) uint32 {
	return uint32(priority)<<offsetPriority |
		uint32(dataTypeID&0xFF)<<offsetServiceTypeID |
		uint32(dest&sourceNodeIDMask)<<offsetDestNodeID |
		flagServiceNotMessage |
		uint32(in.localID)
}

// enqueueTransfer splits payload into frames with tail bytes and the
// multi-frame transfer CRC, and pushes them onto the tx queue. On a
// full queue the transfer is dropped whole; a half-queued transfer
// would poison reassembly at every receiver.
func (in *Instance) enqueueTransfer(id uint32, signature uint64, transferID uint8, payload []byte) error {
	tid := transferID & tailTransferIDMask

	if len(payload) <= 7 {
		var f can.Frame
		f.ID = id
		f.Extended = true
		copy(f.Data[:], payload)
		f.Data[len(payload)] = tailStartOfTransfer | tailEndOfTransfer | tid
		f.Len = uint8(len(payload) + 1)
		return in.pushTx(f)
	}

	crc := transferCRC(signature, payload)
	need := 1 + (len(payload)+1)/7 // first frame carries 5 payload bytes, the rest 7
	if txQueueCap-in.txCount < need {
		return ErrTxQueueFull
	}

	toggle := false
	sent := 0
	first := true
	for sent < len(payload) {
		var f can.Frame
		f.ID = id
		f.Extended = true

		n := 0
		if first {
			f.Data[0] = byte(crc)
			f.Data[1] = byte(crc >> 8)
			n = copy(f.Data[2:7], payload)
			f.Len = uint8(n + 3)
		} else {
			n = copy(f.Data[:7], payload[sent:])
			f.Len = uint8(n + 1)
		}
		sent += n

		tail := tid
		if first {
			tail |= tailStartOfTransfer
		}
		if sent == len(payload) {
			tail |= tailEndOfTransfer
		}
		if toggle {
			tail |= tailToggle
		}
		f.Data[f.Len-1] = tail

		if err := in.pushTx(f); err != nil {
			return err
		}
		toggle = !toggle
		first = false
	}
	return nil
}

func (in *Instance) pushTx(f can.Frame) error {
	if in.txCount == txQueueCap {
		return ErrTxQueueFull
	}
	in.txq[(in.txHead+in.txCount)%txQueueCap] = f
	in.txCount++
	return nil
}

// PeekTx returns the head outbound frame without removing it.
func (in *Instance) PeekTx() (can.Frame, bool) {
	if in.txCount == 0 {
		return can.Frame{}, false
	}
	return in.txq[in.txHead], true
}

// PopTx removes the head outbound frame.
func (in *Instance) PopTx() {
	if in.txCount == 0 {
		return
	}
	in.txHead = (in.txHead + 1) % txQueueCap
	in.txCount--
}

// TxPending reports how many frames are queued for transmit.
func (in *Instance) TxPending() int {
	return in.txCount
}
