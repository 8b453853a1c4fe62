package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreDefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "settings.json"))
	require.NoError(t, err)
	assert.False(t, s.Dirty())
	assert.True(t, s.Get().AnalysisOn)
}

func TestStoreUpdateSetsDirtyAndSaveClearsIt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	s, err := NewStore(path)
	require.NoError(t, err)

	s.Update(func(snap *Snapshot) { snap.RecordOn = true })
	assert.True(t, s.Dirty())

	require.NoError(t, s.Save())
	assert.False(t, s.Dirty())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"record_status": 1`)
	assert.Contains(t, string(data), `"color_pallet"`)
}

func TestStoreSaveLoadSaveByteIdentical(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	s1, err := NewStore(path)
	require.NoError(t, err)
	s1.Update(func(snap *Snapshot) {
		snap.AnalysisOn = false
		snap.NVInterval = 7
		snap.ColorPalette = 2
	})
	require.NoError(t, s1.Save())

	first, err := os.ReadFile(path)
	require.NoError(t, err)

	s2, err := NewStore(path)
	require.NoError(t, err)
	assert.Equal(t, s1.Get(), s2.Get())

	s2.Update(func(snap *Snapshot) {}) // mark dirty without changing values
	require.NoError(t, s2.Save())

	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNVIntervalDisabledSentinel(t *testing.T) {
	assert.Greater(t, NVIntervalDisabled, 1<<30)
}
