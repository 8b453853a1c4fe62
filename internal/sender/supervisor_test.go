package sender

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkb36/smart-cow/internal/procsup"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.ListenUDP("udp", &net.UDPAddr{})
	require.NoError(t, err)
	defer l.Close()
	return l.LocalAddr().(*net.UDPAddr).Port
}

func collector() (func([]byte), func() [][]byte) {
	var mu sync.Mutex
	var got [][]byte
	return func(b []byte) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, append([]byte(nil), b...))
		}, func() [][]byte {
			mu.Lock()
			defer mu.Unlock()
			return append([][]byte(nil), got...)
		}
}

// The sender binary under test is "sleep", invoked only to hold a real
// PID open; it never actually speaks the CONNECT/EXIT protocol, so
// these tests drive the protocol from a bare UDP socket standing in for
// the child.
func TestStartBindsSocketAndSpawnsChild(t *testing.T) {
	procs := procsup.New()
	t.Cleanup(procs.Shutdown)

	handle, _ := collector()
	port := freePort(t)
	s := New(zerolog.Nop(), procs, "sleep", Params{
		PeerID: "A", StreamCnt: 2, StreamBasePort: 5000, CommSocketPort: port, CodecName: "h264",
	}, handle)
	defer s.Close()

	require.NoError(t, s.Start())
	assert.Equal(t, StateRunning, s.State())
}

func TestConnectHandshakeRecordsReturnAddressAndRoutesMessages(t *testing.T) {
	procs := procsup.New()
	t.Cleanup(procs.Shutdown)

	handle, snapshot := collector()
	port := freePort(t)
	s := New(zerolog.Nop(), procs, "sleep", Params{
		PeerID: "A", StreamCnt: 1, StreamBasePort: 5000, CommSocketPort: port, CodecName: "h264",
	}, handle)
	defer s.Close()
	require.NoError(t, s.Start())

	child, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	require.NoError(t, err)
	defer child.Close()

	_, err = child.Write([]byte("CONNECT"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.childAddr != nil
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Send([]byte(`{"sdp":{"type":"offer"}}`)))

	buf := make([]byte, 1024)
	child.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := child.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "offer")

	_, err = child.Write([]byte(`{"action":"answer"}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, string(snapshot()[0]), "answer")
}

func TestSendBeforeConnectHandshakeIsNoop(t *testing.T) {
	procs := procsup.New()
	t.Cleanup(procs.Shutdown)

	handle, _ := collector()
	port := freePort(t)
	s := New(zerolog.Nop(), procs, "sleep", Params{
		PeerID: "A", StreamCnt: 1, StreamBasePort: 5000, CommSocketPort: port, CodecName: "h264",
	}, handle)
	defer s.Close()
	require.NoError(t, s.Start())

	assert.NoError(t, s.Send([]byte("anything")))
}

func TestStopTransitionsToStopped(t *testing.T) {
	procs := procsup.New()
	t.Cleanup(procs.Shutdown)

	handle, _ := collector()
	port := freePort(t)
	s := New(zerolog.Nop(), procs, "sleep", Params{
		PeerID: "A", StreamCnt: 1, StreamBasePort: 5000, CommSocketPort: port, CodecName: "h264",
	}, handle)
	require.NoError(t, s.Start())

	require.NoError(t, s.Stop())
	assert.Equal(t, StateStopped, s.State())
}

func TestStartFailsWhenPortAlreadyBound(t *testing.T) {
	procs := procsup.New()
	t.Cleanup(procs.Shutdown)

	port := freePort(t)
	blocker, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	require.NoError(t, err)
	defer blocker.Close()

	handle, _ := collector()
	s := New(zerolog.Nop(), procs, "sleep", Params{
		PeerID: "A", StreamCnt: 1, StreamBasePort: 5000, CommSocketPort: port, CodecName: "h264",
	}, handle)

	err = s.Start()
	require.Error(t, err)
	assert.Equal(t, StateNew, s.State())
}
