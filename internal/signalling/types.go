// Package signalling implements the WebSocket client that multiplexes
// offer/answer/ICE traffic with the central signalling broker and emits
// periodic telemetry. It is grounded on the gorilla/websocket dial-and-
// JSON-envelope pattern in
// other_examples/markskylarkxx-webrtc-pion-face-detection-engine__main.go
// (websocket.DefaultDialer.Dial against a signalling URL, WriteJSON/
// ReadJSON of a typed envelope, reconnect-on-error by sleeping and
// redialing) — generalised here into an explicit state machine rather
// than a bare reconnect loop.
package signalling

import "encoding/json"

// State is the bridge's connection state machine:
// Disconnected -> Connecting -> Connected -> {Disconnected, Reconnecting -> Connecting}.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// envelope is the wire shape of every signalling frame, in both
// directions: {"action":…, "peerType":"camera", "message":{…}}.
type envelope struct {
	Action   string          `json:"action"`
	PeerType string          `json:"peerType"`
	Message  json.RawMessage `json:"message"`
}

const peerTypeCamera = "camera"

type sdpPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type icePayload struct {
	Candidate     string `json:"candidate"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
	SDPMid        string `json:"sdpMid,omitempty"`
}

type registerMessage struct {
	Name      string `json:"name"`
	FWVersion string `json:"fw_version"`
	AIVersion string `json:"ai_version"`
}

type sdpMessage struct {
	PeerID string     `json:"peer_id"`
	SDP    sdpPayload `json:"sdp"`
}

type candidateMessage struct {
	PeerID string     `json:"peer_id"`
	ICE    icePayload `json:"ice"`
}

type camStatusMessage struct {
	RecStatus      bool    `json:"rec_status"`
	CPUTemperature float64 `json:"cpu_temperature"`
	GPUTemperature float64 `json:"gpu_temperature"`
	RecUsage       float64 `json:"rec_usage"`
}

// InboundEvent is the normalised shape handed to the Peer Manager for
// every inbound message, per the action -> data-extraction table in
// §4.H: answer/offer carry the bare SDP string, candidate carries the
// full ICE JSON, ROOM_PEER_JOINED carries the full message JSON, and
// ROOM_PEER_LEFT carries nothing.
type InboundEvent struct {
	Action string
	PeerID string
	Data   json.RawMessage
}
