package signalling

import (
	"encoding/json"

	"github.com/pkb36/smart-cow/internal/errs"
)

// normalizeInbound applies the action -> data-extraction table from
// §4.H to a raw envelope, producing the shape the Peer Manager consumes.
func normalizeInbound(env envelope) (InboundEvent, error) {
	switch env.Action {
	case "answer", "offer":
		var m sdpMessage
		if err := json.Unmarshal(env.Message, &m); err != nil {
			return InboundEvent{}, errs.Wrap(errs.ProtocolError, "decoding "+env.Action+" message", err)
		}
		sdp, err := json.Marshal(m.SDP.SDP)
		if err != nil {
			return InboundEvent{}, errs.Wrap(errs.ProtocolError, "re-encoding sdp string", err)
		}
		return InboundEvent{Action: env.Action, PeerID: m.PeerID, Data: sdp}, nil

	case "candidate":
		var m candidateMessage
		if err := json.Unmarshal(env.Message, &m); err != nil {
			return InboundEvent{}, errs.Wrap(errs.ProtocolError, "decoding candidate message", err)
		}
		ice, err := json.Marshal(m.ICE)
		if err != nil {
			return InboundEvent{}, errs.Wrap(errs.ProtocolError, "re-encoding ice payload", err)
		}
		return InboundEvent{Action: env.Action, PeerID: m.PeerID, Data: ice}, nil

	case "ROOM_PEER_JOINED":
		var peerID struct {
			PeerID string `json:"peer_id"`
		}
		_ = json.Unmarshal(env.Message, &peerID)
		return InboundEvent{Action: env.Action, PeerID: peerID.PeerID, Data: env.Message}, nil

	case "ROOM_PEER_LEFT":
		var peerID struct {
			PeerID string `json:"peer_id"`
		}
		_ = json.Unmarshal(env.Message, &peerID)
		return InboundEvent{Action: env.Action, PeerID: peerID.PeerID}, nil

	default:
		return InboundEvent{}, errs.New(errs.ProtocolError, "unknown signalling action: "+env.Action)
	}
}
