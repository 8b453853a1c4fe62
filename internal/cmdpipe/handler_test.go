package cmdpipe

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkb36/smart-cow/internal/procsup"
	"github.com/pkb36/smart-cow/internal/settings"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	store, err := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	procs := procsup.New()
	t.Cleanup(procs.Shutdown)
	return NewHandler(zerolog.Nop(), nil, store, procs, "sleep", []string{"5"})
}

func TestDispatchAnalysisOffSetsDisabledSentinel(t *testing.T) {
	h := newTestHandler(t)
	h.Dispatch("analysis_off")

	snap := h.settings.Get()
	assert.False(t, snap.AnalysisOn)
	assert.Equal(t, settings.NVIntervalDisabled, snap.NVInterval)
}

func TestDispatchAnalysisOn(t *testing.T) {
	h := newTestHandler(t)
	h.Dispatch("analysis_off")
	h.Dispatch("analysis_on")

	assert.True(t, h.settings.Get().AnalysisOn)
}

func TestDispatchRecordStartSpawnsChildAndSetsFlag(t *testing.T) {
	h := newTestHandler(t)
	h.Dispatch("record_start")

	assert.True(t, h.settings.Get().RecordOn)
	require.NotNil(t, h.recorderChild)
	assert.True(t, h.recorderChild.Alive())
}

func TestDispatchRecordStopStopsChildAndClearsFlag(t *testing.T) {
	h := newTestHandler(t)
	h.Dispatch("record_start")
	require.NotNil(t, h.recorderChild)

	h.Dispatch("record_stop")

	assert.False(t, h.settings.Get().RecordOn)
	assert.Nil(t, h.recorderChild)
}

func TestDispatchUnknownCommandIsIgnored(t *testing.T) {
	h := newTestHandler(t)
	assert.NotPanics(t, func() { h.Dispatch("banana") })
}

func TestDispatchRecordStartTwiceReusesChild(t *testing.T) {
	h := newTestHandler(t)
	h.Dispatch("record_start")
	first := h.recorderChild

	h.Dispatch("record_start")
	assert.Same(t, first, h.recorderChild)

	h.Dispatch("record_stop")
}
