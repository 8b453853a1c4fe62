package cmdpipe

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collector() (func(string), func() []string) {
	var mu sync.Mutex
	var got []string
	return func(s string) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, s)
		}, func() []string {
			mu.Lock()
			defer mu.Unlock()
			return append([]string(nil), got...)
		}
}

func TestPipeDispatchesLinesAndIgnoresBlank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cmd.fifo")
	handle, snapshot := collector()

	p, err := Open(path, handle)
	require.NoError(t, err)
	defer p.Close()

	w, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = w.WriteString("record_start\n\nanalysis_off\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.Eventually(t, func() bool { return len(snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"record_start", "analysis_off"}, snapshot())
}

func TestPipeReopensAfterWriterCloses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cmd.fifo")
	handle, snapshot := collector()

	p, err := Open(path, handle)
	require.NoError(t, err)
	defer p.Close()

	w1, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = w1.WriteString("up\n")
	require.NoError(t, err)
	require.NoError(t, w1.Close())

	require.Eventually(t, func() bool { return len(snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)

	w2, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = w2.WriteString("down\n")
	require.NoError(t, err)
	require.NoError(t, w2.Close())

	require.Eventually(t, func() bool { return len(snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"up", "down"}, snapshot())
}
