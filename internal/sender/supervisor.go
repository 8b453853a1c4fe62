// Package sender owns the per-peer child sender process and the UDP
// control socket used to hand it signalling deltas. It is grounded on
// the recorder service's exec.Cmd child-process lifecycle
// (internal/services/recorder/service.go spawns and tracks a child
// process by PID, start/stop under a mutex, SIGTERM-then-escalate
// teardown) generalized from an FFmpeg recording child to this
// system's sender binary, and reuses internal/procsup for the actual
// spawn/signal/reap mechanics rather than re-implementing them.
package sender

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pkb36/smart-cow/internal/errs"
	"github.com/pkb36/smart-cow/internal/procsup"
)

// Lifecycle mirrors the supervisor's state machine from the peer's
// point of view: StateNew -> StateStarting -> StateRunning ->
// StateStopping -> StateStopped.
type Lifecycle int

const (
	StateNew Lifecycle = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (l Lifecycle) String() string {
	switch l {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const stopGrace = 100 * time.Millisecond

const (
	connectDatagram = "CONNECT"
	exitDatagram    = "EXIT"
)

// Params are the spawn arguments for one peer's child sender, per §4.I.
type Params struct {
	PeerID         string
	StreamCnt      int
	StreamBasePort int
	CommSocketPort int
	CodecName      string
}

// Supervisor owns one peer's sender child and its UDP control socket.
type Supervisor struct {
	log    zerolog.Logger
	procs  *procsup.Supervisor
	bin    string
	params Params

	// onMessage delivers child-originated JSON datagrams (other than
	// the CONNECT/EXIT handshake markers) up to the Peer Manager.
	onMessage func([]byte)

	mu        sync.Mutex
	state     Lifecycle
	conn      *net.UDPConn
	childAddr *net.UDPAddr
	child     *procsup.Child
}

// New builds a Supervisor in the New state. Start actually binds the
// socket and spawns the child.
func New(log zerolog.Logger, procs *procsup.Supervisor, bin string, params Params, onMessage func([]byte)) *Supervisor {
	return &Supervisor{
		log:       log,
		procs:     procs,
		bin:       bin,
		params:    params,
		onMessage: onMessage,
		state:     StateNew,
	}
}

func (s *Supervisor) State() Lifecycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(l Lifecycle) {
	s.mu.Lock()
	s.state = l
	s.mu.Unlock()
}

// Start binds the UDP control socket, spawns the child with the
// contracted argument list, and begins the UDP receive loop. Failure at
// any step leaves the Supervisor in New so the caller can release ports
// and retry.
func (s *Supervisor) Start() error {
	s.setState(StateStarting)

	addr := &net.UDPAddr{IP: net.IPv4zero, Port: s.params.CommSocketPort}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		s.setState(StateNew)
		return errs.Wrap(errs.BindFailed, "binding sender comm socket", err)
	}

	child, err := s.procs.Spawn(s.bin,
		"--peer_id="+s.params.PeerID,
		"--stream_cnt="+strconv.Itoa(s.params.StreamCnt),
		"--stream_base_port="+strconv.Itoa(s.params.StreamBasePort),
		"--comm_socket_port="+strconv.Itoa(s.params.CommSocketPort),
		"--codec_name="+s.params.CodecName,
	)
	if err != nil {
		conn.Close()
		s.setState(StateNew)
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.child = child
	s.mu.Unlock()

	go s.readLoop()
	s.setState(StateRunning)
	return nil
}

func (s *Supervisor) readLoop() {
	buf := make([]byte, 65536)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		msg := append([]byte(nil), buf[:n]...)

		switch string(msg) {
		case connectDatagram:
			s.mu.Lock()
			s.childAddr = addr
			s.mu.Unlock()
			s.log.Debug().Str("peer_id", s.params.PeerID).Msg("sender child connected")
			continue
		case exitDatagram:
			s.log.Debug().Str("peer_id", s.params.PeerID).Msg("sender child reported exit")
			continue
		}

		if s.onMessage != nil {
			s.onMessage(msg)
		}
	}
}

// Send delivers a signalling delta to the child's registered return
// address. It is a no-op (not an error) before the child has sent its
// CONNECT handshake — inbound datagrams deliver via callback, and there
// is nowhere to send until the child is known.
func (s *Supervisor) Send(payload []byte) error {
	s.mu.Lock()
	conn := s.conn
	addr := s.childAddr
	s.mu.Unlock()

	if conn == nil || addr == nil {
		return nil
	}
	_, err := conn.WriteToUDP(payload, addr)
	if err != nil {
		return errs.Wrap(errs.Io, "writing to sender child", err)
	}
	return nil
}

// Stop runs the teardown sequence: Stopping -> SIGTERM -> 100ms
// grace -> SIGKILL if still alive -> close UDP -> Stopped.
func (s *Supervisor) Stop() error {
	s.setState(StateStopping)

	s.mu.Lock()
	child := s.child
	conn := s.conn
	s.mu.Unlock()

	if child != nil {
		if err := s.procs.Stop(child, stopGrace); err != nil {
			s.log.Warn().Err(err).Str("peer_id", s.params.PeerID).Msg("sender child teardown error")
		}
	}
	if conn != nil {
		conn.Close()
	}

	s.setState(StateStopped)
	return nil
}

// Close is the destructor path: if the child is found still alive it is
// sent SIGKILL first, before any SIGTERM; Stop then runs as usual to
// close the UDP socket and move the Supervisor to Stopped.
func (s *Supervisor) Close() {
	s.mu.Lock()
	child := s.child
	s.mu.Unlock()

	if child != nil && child.Alive() {
		_ = s.procs.Kill(child)
	}
	_ = s.Stop()
}
