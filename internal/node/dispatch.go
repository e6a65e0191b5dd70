// internal/node/dispatch.go
package node

import (
	log "github.com/sirupsen/logrus"

	"github.com/skybus/canboot/internal/dronecan"
	"github.com/skybus/canboot/internal/transport"
)

// ShouldAccept is the transport's accept filter. While the node is
// anonymous only dynamic allocation broadcasts pass; once identified,
// exactly the four data types the bootloader serves do.
func (n *Node) ShouldAccept(dataTypeID uint16, kind transport.Kind, source uint8) (bool, uint64) {
	if n.tp.LocalNodeID() == transport.BroadcastNodeID {
		if kind == transport.KindBroadcast && dataTypeID == dronecan.DynamicNodeIDAllocationID {
			return true, dronecan.DynamicNodeIDAllocationSignature
		}
		return false, 0
	}

	switch {
	case dataTypeID == dronecan.GetNodeInfoID && kind == transport.KindRequest:
		return true, dronecan.GetNodeInfoSignature
	case dataTypeID == dronecan.BeginFirmwareUpdateID && kind == transport.KindRequest:
		return true, dronecan.BeginFirmwareUpdateSignature
	case dataTypeID == dronecan.RestartNodeID && kind == transport.KindRequest:
		return true, dronecan.RestartNodeSignature
	case dataTypeID == dronecan.FileReadID && kind == transport.KindResponse:
		return true, dronecan.FileReadSignature
	}
	return false, 0
}

// OnTransfer routes a reassembled transfer to its handler. Unknown
// types are ignored.
func (n *Node) OnTransfer(t transport.Transfer) {
	if n.tp.LocalNodeID() == transport.BroadcastNodeID {
		if t.Kind == transport.KindBroadcast && t.DataTypeID == dronecan.DynamicNodeIDAllocationID {
			n.ident.HandleAllocation(t)
		}
		return
	}

	switch {
	case t.DataTypeID == dronecan.GetNodeInfoID && t.Kind == transport.KindRequest:
		n.handleGetNodeInfo(t)

	case t.DataTypeID == dronecan.BeginFirmwareUpdateID && t.Kind == transport.KindRequest:
		n.handleBeginFirmwareUpdate(t)

	case t.DataTypeID == dronecan.FileReadID && t.Kind == transport.KindResponse:
		n.eng.HandleReadResponse(t)

	case t.DataTypeID == dronecan.RestartNodeID && t.Kind == transport.KindRequest:
		n.handleRestart(t)
	}
}

func (n *Node) handleGetNodeInfo(t transport.Transfer) {
	resp := dronecan.GetNodeInfoResponse{
		Status: n.st.Snapshot(n.clk.NowMs() / 1000),
		Software: dronecan.SoftwareVersion{
			Major: n.cfg.Info.SoftwareMajor,
			Minor: n.cfg.Info.SoftwareMinor,
		},
		Hardware: dronecan.HardwareVersion{
			Major:    uint8(n.cfg.Info.BoardID >> 8),
			Minor:    uint8(n.cfg.Info.BoardID & 0xFF),
			UniqueID: n.uid,
		},
		Name: n.cfg.Info.Name,
	}

	if err := n.tp.Respond(t.SourceNodeID,
		dronecan.GetNodeInfoSignature,
		dronecan.GetNodeInfoID,
		t.TransferID,
		t.Priority,
		resp.Marshal()); err != nil {
		log.Debugf("node: node info response: %v", err)
	}
}

func (n *Node) handleBeginFirmwareUpdate(t transport.Transfer) {
	var req dronecan.BeginFirmwareUpdateRequest
	if err := req.Unmarshal(t.Payload); err != nil {
		return
	}

	code := n.eng.Begin(req, t.SourceNodeID)

	resp := dronecan.BeginFirmwareUpdateResponse{Error: code}
	if err := n.tp.Respond(t.SourceNodeID,
		dronecan.BeginFirmwareUpdateSignature,
		dronecan.BeginFirmwareUpdateID,
		t.TransferID,
		t.Priority,
		resp.Marshal()); err != nil {
		log.Debugf("node: begin update response: %v", err)
	}
}

func (n *Node) handleRestart(t transport.Transfer) {
	var req dronecan.RestartNodeRequest
	if err := req.Unmarshal(t.Payload); err != nil {
		return
	}

	ok := req.Magic == dronecan.RestartNodeMagic
	resp := dronecan.RestartNodeResponse{OK: ok}
	if err := n.tp.Respond(t.SourceNodeID,
		dronecan.RestartNodeSignature,
		dronecan.RestartNodeID,
		t.TransferID,
		t.Priority,
		resp.Marshal()); err != nil {
		log.Debugf("node: restart response: %v", err)
	}
	if !ok {
		return
	}

	// Best effort to get the acknowledgement out before dying.
	n.adapter.DrainTx()
	n.boot.SystemReset()
}
