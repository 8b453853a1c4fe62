package peer

import "github.com/pkb36/smart-cow/internal/detection"

// Source selects which camera a peer's stream fans out from. It is
// carried on the ROOM_PEER_JOINED signalling event and decides the
// stream-port offset within the peer's reserved block (§4.J).
type Source string

const (
	SourceRGB     Source = "RGB"
	SourceThermal Source = "Thermal"
)

// Camera maps a Source to the detection-side camera identity used to
// pick which ring/sink the peer fans out from.
func (s Source) Camera() detection.Camera {
	if s == SourceThermal {
		return detection.CameraThermal
	}
	return detection.CameraRGB
}

// Peer is the Manager's record of one connected viewer: its source
// camera, reserved ports, and the Supervisor owning its child process.
type Peer struct {
	ID         string
	Source     Source
	Reserved   Reservation
	Supervisor supervisor
}
