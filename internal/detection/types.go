// Package detection holds the detection data model and the per-camera
// ring buffer that stores it. It has no knowledge of WebRTC, signalling,
// or the inference engine; it is a bounded, time-indexed log that
// producers write to and queries read from.
package detection

// Camera identifies which physical sensor a frame came from.
type Camera string

const (
	CameraRGB     Camera = "RGB_Camera"
	CameraThermal Camera = "Thermal_Camera"
)

// Color is the display color derived from a detected object's class and
// the current device settings.
type Color string

const (
	ColorGreen  Color = "Green"
	ColorYellow Color = "Yellow"
	ColorRed    Color = "Red"
	ColorBlue   Color = "Blue"
	ColorNone   Color = "None"
)

// ClassID is one of the six domain detection classes, numbered the same
// way the inference engine numbers them.
type ClassID int

const (
	ClassNormalCow ClassID = iota
	ClassFlipCow
	ClassNormalCowSitting
	ClassHeatCow
	ClassLaborSignCow
	ClassOverTemp
)

// BoundingBox is an axis-aligned box in source-frame pixel coordinates.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DetectedObject is one inference result within a DetectionFrame.
type DetectedObject struct {
	ClassID    ClassID     `json:"class_id"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
	Color      Color       `json:"color"`
	HasBBox    bool        `json:"has_bbox"`
}

// DetectionFrame is one inference pass over one video frame from one
// camera. Timestamp is nanoseconds since the Unix epoch; FrameNumber is
// monotonic per camera.
type DetectionFrame struct {
	Timestamp   uint64           `json:"timestamp"`
	FrameNumber uint32           `json:"frame_number"`
	Camera      Camera           `json:"camera"`
	Objects     []DetectedObject `json:"objects"`
}

// Clone returns a deep copy of the frame, safe to hand to a caller that
// outlives the ring's lock.
func (f DetectionFrame) Clone() DetectionFrame {
	objs := make([]DetectedObject, len(f.Objects))
	copy(objs, f.Objects)
	f.Objects = objs
	return f
}
