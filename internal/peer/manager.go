// Package peer implements the Peer Manager from §4.J: it owns the peer
// table and the port bit-vectors, spawns a sender.Supervisor per
// connected viewer, and dispatches normalised signalling events between
// the Signalling Bridge and each peer's child process. It generalises
// the raw-pointer-graph rewrite called for in the design notes — the
// Manager holds owning handles to each Supervisor in a plain map rather
// than a graph of raw pointers, and borrows a mediagraph.MediaGraph
// handle for its own lifetime instead of reaching into a CameraSource
// directly.
package peer

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pkb36/smart-cow/internal/errs"
	"github.com/pkb36/smart-cow/internal/mediagraph"
	"github.com/pkb36/smart-cow/internal/procsup"
	"github.com/pkb36/smart-cow/internal/sender"
	"github.com/pkb36/smart-cow/internal/signalling"
)

// supervisor is the subset of *sender.Supervisor the Manager depends
// on, narrowed so tests can substitute a fake child.
type supervisor interface {
	Start() error
	Stop() error
	Close()
	Send(payload []byte) error
}

// supervisorFactory builds the Supervisor for one peer. Production code
// uses newSenderSupervisor; tests substitute a fake.
type supervisorFactory func(peerID string, params sender.Params, onMessage func([]byte)) supervisor

// notifier is the subset of messaging.Service the Manager depends on to
// fan peer-lifecycle events out off-box. It is optional: nil means no
// publishing, and the zero value of Manager's notifier field is nil.
type notifier interface {
	Publish(subject string, data interface{}) error
}

type peerLifecycleEvent struct {
	PeerID string `json:"peer_id"`
	Source string `json:"source"`
}

// Manager owns the peer table and the PortPool. A single mutex guards
// peers; the PortPool carries its own mutex, per the two-mutex design
// in §4.J.
type Manager struct {
	log zerolog.Logger

	ports       *PortPool
	maxPeers    int
	deviceCount int
	codec       string

	bridge *signalling.Bridge
	media  mediagraph.MediaGraph

	newSupervisor supervisorFactory
	notify        notifier

	mu    sync.Mutex
	peers map[string]*Peer
}

// Config collects everything the Manager needs to build a Supervisor
// per peer and forward frames to/from the signalling bridge.
type Config struct {
	StreamBasePort int
	CommBasePort   int
	DeviceCount    int
	MaxPeers       int
	SenderBinary   string
	Codec          string
}

// New builds a Manager with a real sender.Supervisor factory wired to
// procs. bridge may be nil in tests that only exercise port allocation
// and dispatch plumbing; media defaults to mediagraph.Noop when nil.
func New(log zerolog.Logger, procs *procsup.Supervisor, bridge *signalling.Bridge, media mediagraph.MediaGraph, cfg Config) *Manager {
	if media == nil {
		media = mediagraph.Noop{}
	}
	m := &Manager{
		log:         log,
		ports:       NewPortPool(cfg.StreamBasePort, cfg.CommBasePort, cfg.DeviceCount, cfg.MaxPeers),
		maxPeers:    cfg.MaxPeers,
		deviceCount: cfg.DeviceCount,
		codec:       cfg.Codec,
		bridge:      bridge,
		media:       media,
		peers:       make(map[string]*Peer),
	}
	bin := cfg.SenderBinary
	m.newSupervisor = func(peerID string, params sender.Params, onMessage func([]byte)) supervisor {
		return sender.New(log, procs, bin, params, onMessage)
	}
	return m
}

// SetSupervisorFactory overrides how Supervisors are built; exposed for
// tests that want to substitute a fake child without a real procsup.
func (m *Manager) SetSupervisorFactory(f supervisorFactory) {
	m.newSupervisor = f
}

// SetNotifier attaches an off-box publisher for peer-lifecycle events.
// Passing nil disables publishing (the default).
func (m *Manager) SetNotifier(n notifier) {
	m.notify = n
}

func (m *Manager) publishLifecycle(subject, peerID string, source Source) {
	if m.notify == nil {
		return
	}
	if err := m.notify.Publish(subject, peerLifecycleEvent{PeerID: peerID, Source: string(source)}); err != nil {
		m.log.Warn().Err(err).Str("peer_id", peerID).Str("subject", subject).Msg("publishing peer lifecycle event")
	}
}

// AddPeer reserves ports, starts a Supervisor for peerID, and attaches
// a media-graph sink for source. Failure at any step releases whatever
// was reserved/attached so far — add_peer is atomic.
func (m *Manager) AddPeer(peerID string, source Source) error {
	m.mu.Lock()
	if _, exists := m.peers[peerID]; exists {
		m.mu.Unlock()
		return errs.New(errs.PeerDuplicate, "peer already registered: "+peerID)
	}
	if len(m.peers) >= m.maxPeers {
		m.mu.Unlock()
		return errs.New(errs.PortExhausted, "too many peers")
	}
	m.mu.Unlock()

	reservation, err := m.ports.Reserve()
	if err != nil {
		return err
	}

	if err := m.media.AddPeerSink(peerID, string(source)); err != nil {
		m.ports.Release(reservation)
		return errs.Wrap(errs.BindFailed, "attaching media sink", err)
	}

	streamBasePort := reservation.StreamPort
	if source == SourceThermal {
		streamBasePort++
	}

	sup := m.newSupervisor(peerID, sender.Params{
		PeerID:         peerID,
		StreamCnt:      m.deviceCount,
		StreamBasePort: streamBasePort,
		CommSocketPort: reservation.CommPort,
		CodecName:      m.codec,
	}, func(msg []byte) { m.onChildMessage(peerID, msg) })

	if err := sup.Start(); err != nil {
		m.media.RemovePeerSink(peerID)
		m.ports.Release(reservation)
		return errs.Wrap(errs.ChildSpawnFailed, "starting sender supervisor", err)
	}

	m.mu.Lock()
	m.peers[peerID] = &Peer{ID: peerID, Source: source, Reserved: reservation, Supervisor: sup}
	m.mu.Unlock()

	m.log.Info().Str("peer_id", peerID).Str("source", string(source)).
		Int("stream_port", streamBasePort).Int("comm_port", reservation.CommPort).
		Msg("peer added")
	m.publishLifecycle("ROOM_PEER_JOINED", peerID, source)
	return nil
}

// RemovePeer extracts the peer from the table under the lock, then
// tears it down outside the lock so a slow child exit never blocks
// other Manager operations (and can't self-deadlock if the child's
// exit callback itself calls back into the Manager).
func (m *Manager) RemovePeer(peerID string) error {
	m.mu.Lock()
	p, exists := m.peers[peerID]
	if exists {
		delete(m.peers, peerID)
	}
	m.mu.Unlock()

	if !exists {
		return errs.New(errs.PeerUnknown, "unknown peer: "+peerID)
	}

	p.Supervisor.Stop()
	m.media.RemovePeerSink(peerID)
	m.ports.Release(p.Reserved)

	m.log.Info().Str("peer_id", peerID).Msg("peer removed")
	m.publishLifecycle("ROOM_PEER_LEFT", peerID, p.Source)
	return nil
}

// childEnvelope is the shape of a child-originated datagram: an action
// plus an action-specific message, mirroring the bridge's own envelope.
type childEnvelope struct {
	Action  string          `json:"action"`
	Message json.RawMessage `json:"message"`
}

type childSDPMessage struct {
	SDP struct {
		SDP string `json:"sdp"`
	} `json:"sdp"`
}

type childICEMessage struct {
	ICE struct {
		Candidate     string `json:"candidate"`
		SDPMLineIndex int    `json:"sdpMLineIndex"`
	} `json:"ice"`
}

// onChildMessage forwards a child sender's JSON datagram upstream to
// the signalling bridge, per the action-specific table in §4.H.
func (m *Manager) onChildMessage(peerID string, msg []byte) {
	if m.bridge == nil {
		return
	}
	var env childEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		m.log.Warn().Err(err).Str("peer_id", peerID).Msg("malformed child datagram")
		return
	}

	switch env.Action {
	case "offer":
		var m2 childSDPMessage
		if json.Unmarshal(env.Message, &m2) == nil {
			_ = m.bridge.SendOffer(peerID, m2.SDP.SDP)
		}
	case "answer":
		var m2 childSDPMessage
		if json.Unmarshal(env.Message, &m2) == nil {
			_ = m.bridge.SendAnswer(peerID, m2.SDP.SDP)
		}
	case "candidate":
		var m2 childICEMessage
		if json.Unmarshal(env.Message, &m2) == nil {
			_ = m.bridge.SendCandidate(peerID, m2.ICE.Candidate, m2.ICE.SDPMLineIndex)
		}
	default:
		m.log.Warn().Str("peer_id", peerID).Str("action", env.Action).Msg("unrecognised child action")
	}
}

// HandleSignallingEvent dispatches one normalised inbound signalling
// event to the peer table, per §4.J's dispatch-by-action list.
func (m *Manager) HandleSignallingEvent(ev signalling.InboundEvent) {
	switch ev.Action {
	case "ROOM_PEER_JOINED":
		source := parseJoinSource(ev.Data)
		if err := m.AddPeer(ev.PeerID, source); err != nil {
			m.log.Warn().Err(err).Str("peer_id", ev.PeerID).Msg("add_peer failed")
		}
	case "ROOM_PEER_LEFT":
		if err := m.RemovePeer(ev.PeerID); err != nil {
			m.log.Warn().Err(err).Str("peer_id", ev.PeerID).Msg("remove_peer failed")
		}
	case "offer", "answer", "candidate":
		m.deliverToChild(ev)
	default:
		m.log.Warn().Str("action", ev.Action).Msg("unhandled signalling event")
	}
}

// toChildSDPPayload/toChildICEPayload are the bridge-to-child IPC
// shapes from §4.I: {"sdp":{"type":…,"sdp":…}} and {"ice":{…}}.
type sdpTypeAndValue struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type toChildSDPPayload struct {
	SDP sdpTypeAndValue `json:"sdp"`
}

type toChildICEPayload struct {
	ICE json.RawMessage `json:"ice"`
}

func (m *Manager) deliverToChild(ev signalling.InboundEvent) {
	m.mu.Lock()
	p, exists := m.peers[ev.PeerID]
	m.mu.Unlock()
	if !exists {
		m.log.Warn().Str("peer_id", ev.PeerID).Str("action", ev.Action).Msg("signalling event for unknown peer")
		return
	}

	var payload []byte
	var err error
	switch ev.Action {
	case "offer", "answer":
		var sdp string
		if err = json.Unmarshal(ev.Data, &sdp); err == nil {
			payload, err = json.Marshal(toChildSDPPayload{SDP: sdpTypeAndValue{Type: ev.Action, SDP: sdp}})
		}
	case "candidate":
		payload, err = json.Marshal(toChildICEPayload{ICE: ev.Data})
	}
	if err != nil {
		m.log.Warn().Err(err).Str("peer_id", ev.PeerID).Msg("encoding child IPC payload")
		return
	}
	if err := p.Supervisor.Send(payload); err != nil {
		m.log.Warn().Err(err).Str("peer_id", ev.PeerID).Msg("delivering IPC payload to child")
	}
}

func parseJoinSource(data json.RawMessage) Source {
	var joined struct {
		Source string `json:"source"`
	}
	if json.Unmarshal(data, &joined) == nil && joined.Source == "Thermal" {
		return SourceThermal
	}
	return SourceRGB
}

// PeerInfo is a read-only snapshot of one tracked peer, for admin/status
// surfaces that must not reach into the Manager's own lock.
type PeerInfo struct {
	ID         string
	Source     Source
	StreamPort int
	CommPort   int
}

// Peers returns a snapshot of every currently tracked peer.
func (m *Manager) Peers() []PeerInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]PeerInfo, 0, len(m.peers))
	for _, p := range m.peers {
		streamPort := p.Reserved.StreamPort
		if p.Source == SourceThermal {
			streamPort++
		}
		out = append(out, PeerInfo{ID: p.ID, Source: p.Source, StreamPort: streamPort, CommPort: p.Reserved.CommPort})
	}
	return out
}

// Shutdown stops every peer's Supervisor. Order is not significant; the
// Manager is expected to be torn down once, at process exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	peers := m.peers
	m.peers = make(map[string]*Peer)
	m.mu.Unlock()

	for id, p := range peers {
		p.Supervisor.Close()
		m.media.RemovePeerSink(id)
		m.ports.Release(p.Reserved)
	}
}
