package signalling

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/pkb36/smart-cow/internal/errs"
)

// Bridge is the stateful WebSocket client described in §4.H. One Bridge
// per camera process; Connect starts the I/O goroutine and the
// reconnect/telemetry loop, Disconnect tears both down.
type Bridge struct {
	log zerolog.Logger

	baseURL   string
	cameraID  string
	token     string
	name      string
	fwVersion string
	aiVersion string

	reconnectInterval time.Duration
	telemetryInterval time.Duration

	onInbound   func(InboundEvent)
	recStatusFn func() bool

	mu    sync.Mutex
	state State
	conn  *websocket.Conn

	autoReconnect bool
	stopCh        chan struct{}
	stoppedCh     chan struct{}
}

// Config collects the dial parameters and callbacks a Bridge needs.
type Config struct {
	BaseURL           string
	CameraID          string
	Token             string
	Name              string
	FWVersion         string
	AIVersion         string
	ReconnectInterval time.Duration
	TelemetryInterval time.Duration

	// OnInbound is called for every successfully normalised inbound
	// message, off the I/O goroutine's read loop.
	OnInbound func(InboundEvent)

	// RecStatusFn reports the current recording flag for camstatus
	// telemetry frames; nil is treated as always-false.
	RecStatusFn func() bool
}

// New builds a Bridge in the Disconnected state. Call Connect to start it.
func New(log zerolog.Logger, cfg Config) *Bridge {
	recStatusFn := cfg.RecStatusFn
	if recStatusFn == nil {
		recStatusFn = func() bool { return false }
	}
	return &Bridge{
		log:               log,
		baseURL:           cfg.BaseURL,
		cameraID:          cfg.CameraID,
		token:             cfg.Token,
		name:              cfg.Name,
		fwVersion:         cfg.FWVersion,
		aiVersion:         cfg.AIVersion,
		reconnectInterval: cfg.ReconnectInterval,
		telemetryInterval: cfg.TelemetryInterval,
		onInbound:         cfg.OnInbound,
		recStatusFn:       recStatusFn,
		state:             Disconnected,
	}
}

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

func (b *Bridge) connectURL() string {
	return fmt.Sprintf("%s/signaling/%s/?token=%s&peerType=camera", b.baseURL, b.cameraID, b.token)
}

// Connect dials the signalling server and, if auto-reconnect is true,
// keeps retrying on failure/drop until Disconnect is called.
func (b *Bridge) Connect(autoReconnect bool) error {
	b.mu.Lock()
	b.autoReconnect = autoReconnect
	b.stopCh = make(chan struct{})
	b.stoppedCh = make(chan struct{})
	b.mu.Unlock()

	if err := b.dialAndRegister(); err != nil {
		if !autoReconnect {
			b.setState(Disconnected)
			close(b.stoppedCh)
			return err
		}
		b.log.Warn().Err(err).Msg("initial signalling connect failed, retrying")
		b.setState(Reconnecting)
	}

	go b.run()
	return nil
}

func (b *Bridge) dialAndRegister() error {
	b.setState(Connecting)

	conn, _, err := websocket.DefaultDialer.Dial(b.connectURL(), nil)
	if err != nil {
		return errs.Wrap(errs.ConnectFailed, "dialing signalling server", err)
	}

	frame, err := buildRegister(b.name, b.fwVersion, b.aiVersion)
	if err != nil {
		conn.Close()
		return errs.Wrap(errs.ProtocolError, "building register frame", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		conn.Close()
		return errs.Wrap(errs.ConnectFailed, "sending register frame", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	b.setState(Connected)
	return nil
}

// run drives the read loop plus telemetry timer while Connected, and the
// reconnect loop while not.
func (b *Bridge) run() {
	defer close(b.stoppedCh)

	var telemetryTicker *time.Ticker
	if b.telemetryInterval > 0 {
		telemetryTicker = time.NewTicker(b.telemetryInterval)
		defer telemetryTicker.Stop()
	}

	readErrCh := make(chan error, 1)
	if b.State() == Connected {
		go b.readLoop(readErrCh)
	}

	reconnectTimer := time.NewTimer(0)
	if b.State() == Connected {
		reconnectTimer.Stop()
	}
	defer reconnectTimer.Stop()

	for {
		select {
		case <-b.stopCh:
			b.closeConn()
			return

		case err := <-readErrCh:
			b.log.Warn().Err(err).Msg("signalling read loop ended")
			b.closeConn()
			if !b.autoReconnect {
				b.setState(Disconnected)
				return
			}
			b.setState(Reconnecting)
			reconnectTimer.Reset(b.reconnectInterval)

		case <-reconnectTimer.C:
			if err := b.dialAndRegister(); err != nil {
				b.log.Warn().Err(err).Msg("signalling reconnect attempt failed")
				reconnectTimer.Reset(b.reconnectInterval)
				continue
			}
			go b.readLoop(readErrCh)

		case <-tickerChan(telemetryTicker):
			if b.State() != Connected {
				continue
			}
			frame, err := sampleTelemetry(b.recStatusFn())
			if err != nil {
				b.log.Warn().Err(err).Msg("building camstatus frame")
				continue
			}
			if err := b.send(frame); err != nil {
				b.log.Warn().Err(err).Msg("sending camstatus frame")
			}
		}
	}
}

func tickerChan(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (b *Bridge) readLoop(errCh chan<- error) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		errCh <- errs.New(errs.ConnectFailed, "no active connection")
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			errCh <- err
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			b.log.Warn().Err(err).Msg("malformed signalling frame")
			continue
		}

		event, err := normalizeInbound(env)
		if err != nil {
			b.log.Warn().Err(err).Str("action", env.Action).Msg("unrecognised signalling action")
			continue
		}
		if b.onInbound != nil {
			b.onInbound(event)
		}
	}
}

func (b *Bridge) closeConn() {
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (b *Bridge) send(frame []byte) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return errs.New(errs.ConnectFailed, "signalling socket not connected")
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// SendOffer/SendAnswer/SendCandidate deliver outbound signalling frames
// per the §6 envelope shapes. They are non-blocking only in the sense
// that the bridge never queues for a reconnect; a write while
// disconnected returns ConnectFailed.
func (b *Bridge) SendOffer(peerID, sdp string) error {
	frame, err := buildOffer(peerID, sdp)
	if err != nil {
		return errs.Wrap(errs.ProtocolError, "building offer frame", err)
	}
	return b.send(frame)
}

func (b *Bridge) SendAnswer(peerID, sdp string) error {
	frame, err := buildAnswer(peerID, sdp)
	if err != nil {
		return errs.Wrap(errs.ProtocolError, "building answer frame", err)
	}
	return b.send(frame)
}

func (b *Bridge) SendCandidate(peerID, candidate string, sdpMLineIndex int) error {
	frame, err := buildCandidate(peerID, candidate, sdpMLineIndex)
	if err != nil {
		return errs.Wrap(errs.ProtocolError, "building candidate frame", err)
	}
	return b.send(frame)
}

// Disconnect clears auto-reconnect and tears the bridge down.
func (b *Bridge) Disconnect() {
	b.mu.Lock()
	b.autoReconnect = false
	stopCh := b.stopCh
	stoppedCh := b.stoppedCh
	b.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-stoppedCh
	b.setState(Disconnected)
}
