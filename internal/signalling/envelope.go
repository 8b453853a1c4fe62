package signalling

import (
	"encoding/json"
	"strconv"
)

func buildEnvelope(action string, message interface{}) ([]byte, error) {
	raw, err := json.Marshal(message)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		Action:   action,
		PeerType: peerTypeCamera,
		Message:  raw,
	})
}

func buildRegister(name, fwVersion, aiVersion string) ([]byte, error) {
	return buildEnvelope("register", registerMessage{
		Name:      name,
		FWVersion: fwVersion,
		AIVersion: aiVersion,
	})
}

func buildOffer(peerID, sdp string) ([]byte, error) {
	return buildEnvelope("offer", sdpMessage{
		PeerID: peerID,
		SDP:    sdpPayload{Type: "offer", SDP: sdp},
	})
}

func buildAnswer(peerID, sdp string) ([]byte, error) {
	return buildEnvelope("answer", sdpMessage{
		PeerID: peerID,
		SDP:    sdpPayload{Type: "answer", SDP: sdp},
	})
}

func buildCandidate(peerID, candidate string, sdpMLineIndex int) ([]byte, error) {
	return buildEnvelope("candidate", candidateMessage{
		PeerID: peerID,
		ICE: icePayload{
			Candidate:     candidate,
			SDPMLineIndex: sdpMLineIndex,
			SDPMid:        "video" + strconv.Itoa(sdpMLineIndex),
		},
	})
}

func buildCamStatus(recStatus bool, cpuTemp, gpuTemp, recUsage float64) ([]byte, error) {
	return buildEnvelope("camstatus", camStatusMessage{
		RecStatus:      recStatus,
		CPUTemperature: cpuTemp,
		GPUTemperature: gpuTemp,
		RecUsage:       recUsage,
	})
}
