package detection

import (
	"sync"
	"time"

	"github.com/pkb36/smart-cow/internal/settings"
)

const (
	// DefaultMaxEntries is the default bound on ring length.
	DefaultMaxEntries = 3600
	// DefaultRetention is the default maximum frame age kept in a ring.
	DefaultRetention = 120 * time.Second
)

// Ring is a bounded, time-ordered log of DetectionFrame for one camera.
// It is a deque: new frames are appended at the tail, excess frames are
// evicted from the head, and stale frames are dropped wherever they sit
// (normally also at the head). All three operations are protected
// by a single mutex; queries copy data under the lock so callers never
// observe a partially-constructed frame and never share memory with the
// ring's internal storage.
//
// No Ring operation can fail: on overflow the oldest entry is silently
// dropped.
type Ring struct {
	mu         sync.Mutex
	camera     Camera
	maxEntries int
	retention  time.Duration
	frames     []DetectionFrame
	settings   *settings.Store

	now func() time.Time
}

// NewRing creates a ring for the given camera with the given retention
// policy. maxEntries <= 0 or retention <= 0 fall back to the package
// defaults. store drives Insert's color derivation (see DeriveColor);
// a nil store leaves every inserted object's Color/HasBBox exactly as
// the caller set them, which test code relies on.
func NewRing(camera Camera, maxEntries int, retention time.Duration, store *settings.Store) *Ring {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Ring{
		camera:     camera,
		maxEntries: maxEntries,
		retention:  retention,
		frames:     make([]DetectionFrame, 0, maxEntries),
		settings:   store,
		now:        time.Now,
	}
}

// Insert rewrites a zero Timestamp to "now" and Camera to the ring's
// camera, recomputes each object's Color/HasBBox from the current
// device settings (class_id and bbox size are otherwise static once
// inferred, but color depends on resnet50_on/opt_flow_on, which the
// Command Pipe can flip at any time), appends the frame, then evicts
// from the head until the size bound holds and drops every frame older
// than the retention window. Age is measured against the timestamp of
// the frame just inserted, so frames stamped on the producer's clock
// age on that same clock.
func (r *Ring) Insert(frame DetectionFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if frame.Timestamp == 0 {
		frame.Timestamp = uint64(r.now().UnixNano())
	}
	frame.Camera = r.camera

	if r.settings != nil {
		snap := r.settings.Get()
		for i := range frame.Objects {
			obj := &frame.Objects[i]
			obj.Color = DeriveColor(obj.ClassID, obj.BBox, snap.ResNet50On, snap.OptFlowOn)
			obj.HasBBox = obj.Color != ColorNone
		}
	}

	r.frames = append(r.frames, frame)
	r.evictLocked()
}

func (r *Ring) evictLocked() {
	if len(r.frames) > r.maxEntries {
		excess := len(r.frames) - r.maxEntries
		r.frames = r.frames[excess:]
	}

	newest := r.frames[len(r.frames)-1].Timestamp
	retention := uint64(r.retention)
	if newest <= retention {
		return
	}
	cutoff := newest - retention
	kept := r.frames[:0]
	for _, f := range r.frames {
		if f.Timestamp >= cutoff {
			kept = append(kept, f)
		}
	}
	r.frames = kept
}

// QueryRange returns a copy of every frame whose Timestamp lies in the
// inclusive interval [startNS, endNS], in insertion order.
func (r *Ring) QueryRange(startNS, endNS uint64) []DetectionFrame {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]DetectionFrame, 0)
	for _, f := range r.frames {
		if f.Timestamp >= startNS && f.Timestamp <= endNS {
			out = append(out, f.Clone())
		}
	}
	return out
}

// Latest returns a copy of the most recently inserted frame, or false if
// the ring is empty.
func (r *Ring) Latest() (DetectionFrame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.frames) == 0 {
		return DetectionFrame{}, false
	}
	return r.frames[len(r.frames)-1].Clone(), true
}

// Len returns the current number of retained frames.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Camera returns the camera this ring was constructed for.
func (r *Ring) Camera() Camera {
	return r.camera
}
