package detection

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkb36/smart-cow/internal/settings"
)

func frame(ts uint64) DetectionFrame {
	return DetectionFrame{Timestamp: ts, Objects: []DetectedObject{{ClassID: ClassNormalCow}}}
}

func TestRingQueryRange(t *testing.T) {
	r := NewRing(CameraRGB, 10, time.Minute, nil)
	r.Insert(frame(1_000_000_000))
	r.Insert(frame(2_000_000_000))
	r.Insert(frame(3_000_000_000))

	got := r.QueryRange(1_500_000_000, 2_500_000_000)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(2_000_000_000), got[0].Timestamp)
	assert.Equal(t, CameraRGB, got[0].Camera)
}

func TestRingLatest(t *testing.T) {
	r := NewRing(CameraRGB, 10, time.Minute, nil)
	_, ok := r.Latest()
	assert.False(t, ok)

	r.Insert(frame(1))
	r.Insert(frame(2))
	last, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(2), last.Timestamp)
}

func TestRingEvictsOldestOnOverflow(t *testing.T) {
	r := NewRing(CameraRGB, 3, time.Hour, nil)
	for i := uint64(1); i <= 3; i++ {
		r.Insert(frame(i * 1_000_000_000))
	}
	require.Equal(t, 3, r.Len())

	r.Insert(frame(4_000_000_000))
	assert.Equal(t, 3, r.Len())

	got := r.QueryRange(0, ^uint64(0))
	require.Len(t, got, 3)
	assert.Equal(t, uint64(2_000_000_000), got[0].Timestamp)
}

func TestRingZeroTimestampRewrittenToNow(t *testing.T) {
	r := NewRing(CameraThermal, 10, time.Minute, nil)
	fixed := time.Unix(100, 0)
	r.now = func() time.Time { return fixed }

	r.Insert(frame(0))
	last, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(fixed.UnixNano()), last.Timestamp)
	assert.Equal(t, CameraThermal, last.Camera)
}

func TestRingRetentionBoundary(t *testing.T) {
	r := NewRing(CameraRGB, 100, 10*time.Second, nil)
	base := time.Unix(1000, 0)
	r.now = func() time.Time { return base }

	r.Insert(frame(uint64(base.Add(-10 * time.Second).UnixNano()))) // age == retention, kept
	r.Insert(frame(uint64(base.Add(-11 * time.Second).UnixNano()))) // age > retention, evicted
	r.Insert(frame(uint64(base.UnixNano())))                        // fresh, triggers eviction pass

	got := r.QueryRange(0, ^uint64(0))
	require.Len(t, got, 2)
	for _, f := range got {
		age := base.UnixNano() - int64(f.Timestamp)
		assert.LessOrEqual(t, age, int64(10*time.Second))
	}
}

func TestRingInsertRecomputesColorFromSettings(t *testing.T) {
	store, err := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)

	r := NewRing(CameraThermal, 10, time.Minute, store)
	heatFrame := func() DetectionFrame {
		return DetectionFrame{Objects: []DetectedObject{{ClassID: ClassHeatCow, BBox: bboxDiag(100)}}}
	}

	r.Insert(heatFrame())
	last, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, ColorYellow, last.Objects[0].Color)
	assert.True(t, last.Objects[0].HasBBox)

	store.Update(func(s *settings.Snapshot) { s.ResNet50On = true })

	r.Insert(heatFrame())
	last, ok = r.Latest()
	require.True(t, ok)
	assert.Equal(t, ColorRed, last.Objects[0].Color)
}

func TestRingInsertWithNilSettingsLeavesColorUntouched(t *testing.T) {
	r := NewRing(CameraRGB, 10, time.Minute, nil)
	r.Insert(DetectionFrame{Objects: []DetectedObject{
		{ClassID: ClassHeatCow, BBox: BoundingBox{Width: 1, Height: 1}, Color: ColorGreen, HasBBox: true},
	}})

	last, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, ColorGreen, last.Objects[0].Color)
	assert.True(t, last.Objects[0].HasBBox)
}

func TestRingConcurrentAccess(t *testing.T) {
	r := NewRing(CameraRGB, 1000, time.Minute, nil)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r.Insert(frame(uint64(n + 1)))
		}(i)
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.QueryRange(0, ^uint64(0))
			r.Latest()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, r.Len())
}
