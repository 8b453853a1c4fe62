// Package mediagraph defines the narrow boundary the Peer Manager
// borrows to attach and release a peer's camera fan-out. No concrete
// capture/encode graph lives here — the capture strategy is explicitly
// deferred, matching the Raw-pointer-graph-to-owning-handle rewrite
// called for by the design notes: the Peer Manager holds a handle to
// this interface for its own lifetime rather than reaching into a
// CameraSource through a raw pointer.
package mediagraph

// MediaGraph is whatever owns per-camera capture and feeds per-peer
// sinks. The Peer Manager calls AddPeerSink when a peer is admitted and
// RemovePeerSink when it is torn down; it never reaches past this
// interface into the capture graph itself.
type MediaGraph interface {
	AddPeerSink(peerID string, source string) error
	RemovePeerSink(peerID string)
}

// Noop is a MediaGraph that does nothing, usable wherever a concrete
// capture strategy has not been wired in yet (tests, standalone runs of
// the signalling/peer layer without a camera attached).
type Noop struct{}

func (Noop) AddPeerSink(peerID string, source string) error { return nil }
func (Noop) RemovePeerSink(peerID string)                   {}
