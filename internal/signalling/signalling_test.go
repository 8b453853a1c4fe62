package signalling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRegisterEnvelopeShape(t *testing.T) {
	frame, err := buildRegister("cam1", "1.2.3", "4.5.6")
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, "register", env.Action)
	assert.Equal(t, "camera", env.PeerType)

	var msg registerMessage
	require.NoError(t, json.Unmarshal(env.Message, &msg))
	assert.Equal(t, "cam1", msg.Name)
	assert.Equal(t, "1.2.3", msg.FWVersion)
	assert.Equal(t, "4.5.6", msg.AIVersion)
}

func TestBuildCandidateEnvelopeDerivesSDPMid(t *testing.T) {
	frame, err := buildCandidate("peer-7", "candidate:1 1 UDP 2130706431", 3)
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, "candidate", env.Action)

	var msg candidateMessage
	require.NoError(t, json.Unmarshal(env.Message, &msg))
	assert.Equal(t, "peer-7", msg.PeerID)
	assert.Equal(t, "video3", msg.ICE.SDPMid)
	assert.Equal(t, 3, msg.ICE.SDPMLineIndex)
}

func TestNormalizeInboundAnswerExtractsBareSDP(t *testing.T) {
	raw := []byte(`{"action":"answer","peerType":"camera","message":{"peer_id":"X","sdp":{"type":"answer","sdp":"v=0..."}}}`)
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env))

	ev, err := normalizeInbound(env)
	require.NoError(t, err)
	assert.Equal(t, "X", ev.PeerID)

	var sdp string
	require.NoError(t, json.Unmarshal(ev.Data, &sdp))
	assert.Equal(t, "v=0...", sdp)
}

func TestNormalizeInboundCandidateCarriesFullICE(t *testing.T) {
	raw := []byte(`{"action":"candidate","peerType":"camera","message":{"peer_id":"X","ice":{"candidate":"c","sdpMLineIndex":0}}}`)
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env))

	ev, err := normalizeInbound(env)
	require.NoError(t, err)
	assert.Equal(t, "X", ev.PeerID)
	assert.JSONEq(t, `{"candidate":"c","sdpMLineIndex":0}`, string(ev.Data))
}

func TestNormalizeInboundRoomPeerLeftCarriesNoData(t *testing.T) {
	raw := []byte(`{"action":"ROOM_PEER_LEFT","peerType":"camera","message":{"peer_id":"X"}}`)
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env))

	ev, err := normalizeInbound(env)
	require.NoError(t, err)
	assert.Equal(t, "X", ev.PeerID)
	assert.Nil(t, ev.Data)
}

func TestNormalizeInboundUnknownActionIsProtocolError(t *testing.T) {
	raw := []byte(`{"action":"bogus","peerType":"camera","message":{}}`)
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env))

	_, err := normalizeInbound(env)
	require.Error(t, err)
}

// testSignallingServer is a minimal broker that accepts the connect URL,
// records every decoded envelope it receives, and can push frames to the
// connected client or forcibly close the connection to exercise reconnect.
type testSignallingServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	connCh   chan *websocket.Conn
}

func newTestSignallingServer() *testSignallingServer {
	s := &testSignallingServer{connCh: make(chan *websocket.Conn, 4)}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.connCh <- conn
	}))
	return s
}

func (s *testSignallingServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *testSignallingServer) acceptConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.connCh:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client connection")
		return nil
	}
}

func (s *testSignallingServer) close() {
	s.srv.Close()
}

func TestConnectSendsRegisterFrame(t *testing.T) {
	srv := newTestSignallingServer()
	defer srv.close()

	b := New(zerolog.Nop(), Config{
		BaseURL: srv.wsURL(), CameraID: "cam1", Token: "test",
		Name: "cam1", FWVersion: "1.0", AIVersion: "1.0",
		ReconnectInterval: 50 * time.Millisecond,
	})
	require.NoError(t, b.Connect(false))
	defer b.Disconnect()

	conn := srv.acceptConn(t)
	assert.Equal(t, Connected, b.State())

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "register", env.Action)
}

func TestInboundCandidateReachesCallback(t *testing.T) {
	srv := newTestSignallingServer()
	defer srv.close()

	events := make(chan InboundEvent, 4)
	b := New(zerolog.Nop(), Config{
		BaseURL: srv.wsURL(), CameraID: "cam1", Token: "test",
		Name: "cam1", FWVersion: "1.0", AIVersion: "1.0",
		ReconnectInterval: 50 * time.Millisecond,
		OnInbound:         func(e InboundEvent) { events <- e },
	})
	require.NoError(t, b.Connect(false))
	defer b.Disconnect()

	conn := srv.acceptConn(t)
	_, _, err := conn.ReadMessage() // drain the register frame
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"action":"candidate","peerType":"camera","message":{"peer_id":"X","ice":{"candidate":"c","sdpMLineIndex":0}}}`)))

	select {
	case ev := <-events:
		assert.Equal(t, "candidate", ev.Action)
		assert.Equal(t, "X", ev.PeerID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound event")
	}
}

func TestReconnectAfterDropReturnsToConnected(t *testing.T) {
	srv := newTestSignallingServer()
	defer srv.close()

	b := New(zerolog.Nop(), Config{
		BaseURL: srv.wsURL(), CameraID: "cam1", Token: "test",
		Name: "cam1", FWVersion: "1.0", AIVersion: "1.0",
		ReconnectInterval: 20 * time.Millisecond,
	})
	require.NoError(t, b.Connect(true))
	defer b.Disconnect()

	conn1 := srv.acceptConn(t)
	_, _, err := conn1.ReadMessage()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return b.State() == Connected }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn1.Close())

	conn2 := srv.acceptConn(t)
	_, data, err := conn2.ReadMessage()
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "register", env.Action)
	assert.Equal(t, Connected, b.State())
}
