// internal/dronecan/messages.go
package dronecan

import (
	"encoding/binary"
	"errors"
)

// Hand-rolled codecs for the fixed DSDL byte layouts. Every field the
// bootloader touches is byte-aligned; sub-byte fields are packed
// MSB-first within their byte per the DSDL rules.

var ErrShortPayload = errors.New("dronecan: payload too short")

// ---- uavcan.protocol.NodeStatus ----

type NodeStatus struct {
	UptimeSec    uint32
	Health       uint8 // 2 bits
	Mode         uint8 // 3 bits
	SubMode      uint8 // 3 bits
	VendorStatus uint16
}

func (s NodeStatus) Marshal() []byte {
	out := make([]byte, 7)
	binary.LittleEndian.PutUint32(out[0:4], s.UptimeSec)
	out[4] = s.Health<<6 | (s.Mode&7)<<3 | s.SubMode&7
	binary.LittleEndian.PutUint16(out[5:7], s.VendorStatus)
	return out
}

func (s *NodeStatus) Unmarshal(p []byte) error {
	if len(p) < 7 {
		return ErrShortPayload
	}
	s.UptimeSec = binary.LittleEndian.Uint32(p[0:4])
	s.Health = p[4] >> 6
	s.Mode = p[4] >> 3 & 7
	s.SubMode = p[4] & 7
	s.VendorStatus = binary.LittleEndian.Uint16(p[5:7])
	return nil
}

// ---- uavcan.protocol.GetNodeInfo (response) ----

type SoftwareVersion struct {
	Major uint8
	Minor uint8
}

type HardwareVersion struct {
	Major    uint8
	Minor    uint8
	UniqueID [UniqueIDSize]byte
}

type GetNodeInfoResponse struct {
	Status   NodeStatus
	Software SoftwareVersion
	Hardware HardwareVersion
	Name     string
}

func (r GetNodeInfoResponse) Marshal() []byte {
	name := r.Name
	if len(name) > 80 {
		name = name[:80]
	}
	out := make([]byte, 0, 7+15+19+len(name))
	out = append(out, r.Status.Marshal()...)

	// software_version: major, minor, optional_field_flags, vcs_commit,
	// image_crc — the bootloader reports none of the optional fields.
	out = append(out, r.Software.Major, r.Software.Minor, 0)
	out = append(out, 0, 0, 0, 0)             // vcs_commit
	out = append(out, 0, 0, 0, 0, 0, 0, 0, 0) // image_crc

	// hardware_version: major, minor, unique_id, certificate (empty).
	out = append(out, r.Hardware.Major, r.Hardware.Minor)
	out = append(out, r.Hardware.UniqueID[:]...)
	out = append(out, 0) // certificate_of_authenticity length

	out = append(out, name...)
	return out
}

// ---- uavcan.protocol.RestartNode ----

type RestartNodeRequest struct {
	Magic uint64 // 40 bits on the wire
}

func (r *RestartNodeRequest) Unmarshal(p []byte) error {
	if len(p) < 5 {
		return ErrShortPayload
	}
	var m uint64
	for i := 4; i >= 0; i-- {
		m = m<<8 | uint64(p[i])
	}
	r.Magic = m
	return nil
}

type RestartNodeResponse struct {
	OK bool
}

func (r RestartNodeResponse) Marshal() []byte {
	if r.OK {
		return []byte{0x80} // single bool, MSB-first
	}
	return []byte{0}
}

// ---- uavcan.protocol.file.Read ----

type FileReadRequest struct {
	Offset uint64 // 40 bits on the wire
	Path   string
}

func (r FileReadRequest) Marshal() []byte {
	path := r.Path
	if len(path) > PathMax {
		path = path[:PathMax]
	}
	out := make([]byte, 5, 5+len(path))
	for i := 0; i < 5; i++ {
		out[i] = byte(r.Offset >> (8 * uint(i)))
	}
	out = append(out, path...)
	return out
}

func (r *FileReadRequest) Unmarshal(p []byte) error {
	if len(p) < 5 {
		return ErrShortPayload
	}
	var ofs uint64
	for i := 4; i >= 0; i-- {
		ofs = ofs<<8 | uint64(p[i])
	}
	r.Offset = ofs
	r.Path = string(p[5:])
	return nil
}

type FileReadResponse struct {
	Error int16
	Data  []byte
}

func (r FileReadResponse) Marshal() []byte {
	out := make([]byte, 2, 2+len(r.Data))
	binary.LittleEndian.PutUint16(out, uint16(r.Error))
	return append(out, r.Data...)
}

func (r *FileReadResponse) Unmarshal(p []byte) error {
	if len(p) < 2 {
		return ErrShortPayload
	}
	r.Error = int16(binary.LittleEndian.Uint16(p[0:2]))
	if len(p)-2 > ReadChunk {
		return errors.New("dronecan: file read data exceeds chunk size")
	}
	r.Data = append([]byte(nil), p[2:]...)
	return nil
}

// ---- uavcan.protocol.file.BeginFirmwareUpdate ----

type BeginFirmwareUpdateRequest struct {
	SourceNodeID uint8
	Path         string
}

func (r *BeginFirmwareUpdateRequest) Unmarshal(p []byte) error {
	if len(p) < 1 {
		return ErrShortPayload
	}
	if len(p)-1 > PathMax {
		return errors.New("dronecan: firmware path too long")
	}
	r.SourceNodeID = p[0]
	r.Path = string(p[1:])
	return nil
}

type BeginFirmwareUpdateResponse struct {
	Error uint8
}

func (r BeginFirmwareUpdateResponse) Marshal() []byte {
	return []byte{r.Error}
}

// ---- uavcan.protocol.dynamic_node_id.Allocation ----

type Allocation struct {
	NodeID    uint8 // 7 bits
	FirstPart bool
	UniqueID  []byte // up to 16 bytes
}

func (a Allocation) Marshal() []byte {
	out := make([]byte, 1, 1+len(a.UniqueID))
	out[0] = a.NodeID << 1
	if a.FirstPart {
		out[0] |= 1
	}
	return append(out, a.UniqueID...)
}

func (a *Allocation) Unmarshal(p []byte) error {
	if len(p) < 1 {
		return ErrShortPayload
	}
	if len(p)-1 > UniqueIDSize {
		return errors.New("dronecan: allocation unique id too long")
	}
	a.NodeID = p[0] >> 1
	a.FirstPart = p[0]&1 != 0
	a.UniqueID = append([]byte(nil), p[1:]...)
	return nil
}

// ---- uavcan.protocol.debug.LogMessage ----

type LogMessage struct {
	Level  uint8 // 3 bits
	Source string
	Text   string
}

func (m LogMessage) Marshal() []byte {
	source := m.Source
	if len(source) > 31 {
		source = source[:31]
	}
	text := m.Text
	if len(text) > 90 {
		text = text[:90]
	}
	out := make([]byte, 1, 1+len(source)+len(text))
	out[0] = m.Level<<5 | uint8(len(source))
	out = append(out, source...)
	return append(out, text...)
}
