// Package queryhttp exposes the detection rings over a small HTTP/1.1
// surface: time-range and latest-detection queries. It is plain
// net/http rather than gin, since the routes it serves have no
// relationship to the admin/status surface the rest of the repo
// builds on gin — Go's net/http.Server already gives a
// goroutine-per-connection accept loop, the direct idiomatic
// equivalent of a single-threaded accept loop with a per-connection
// worker thread.
package queryhttp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/pkb36/smart-cow/internal/detection"
)

// Server serves the query API against a fixed pair of rings.
type Server struct {
	log   zerolog.Logger
	rings map[detection.Camera]*detection.Ring
	mux   *http.ServeMux
}

// New builds a Server backed by the given per-camera rings.
func New(log zerolog.Logger, rings map[detection.Camera]*detection.Ring) *Server {
	s := &Server{log: log, rings: rings, mux: http.NewServeMux()}
	s.mux.HandleFunc("/api/get_detections", s.handleGetDetections)
	s.mux.HandleFunc("/api/get_latest", s.handleGetLatest)
	return s
}

// ServeHTTP implements http.Handler, so Server can be handed directly
// to an http.Server. Unmatched paths fall through to a 404 in the
// spec's shape, and a recover guard turns a handler panic into a 500
// instead of taking down the accept loop.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody{
				Status:  "error",
				Message: fmt.Sprintf("%v", rec),
			})
		}
	}()

	w.Header().Set("Access-Control-Allow-Origin", "*")

	if r.URL.Path != "/api/get_detections" && r.URL.Path != "/api/get_latest" {
		writeJSON(w, http.StatusNotFound, notFoundBody{
			Status:  "error",
			Message: "Endpoint not found",
			Path:    r.URL.Path,
		})
		return
	}
	s.mux.ServeHTTP(w, r)
}

type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type notFoundBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

type queryRequest struct {
	Camera    string `json:"camera"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type wireObject struct {
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
	BBox       [4]int  `json:"bbox"`
	BBoxColor  string  `json:"bbox_color"`
	HasBBox    bool    `json:"has_bbox"`
}

type wireFrame struct {
	Timestamp   uint64       `json:"timestamp"`
	FrameNumber uint32       `json:"frame_number"`
	Camera      string       `json:"camera"`
	Objects     []wireObject `json:"objects"`
}

func toWireFrame(f detection.DetectionFrame) wireFrame {
	objects := make([]wireObject, len(f.Objects))
	for i, o := range f.Objects {
		objects[i] = wireObject{
			ClassID:    int(o.ClassID),
			Confidence: o.Confidence,
			BBox:       [4]int{o.BBox.X, o.BBox.Y, o.BBox.X + o.BBox.Width, o.BBox.Y + o.BBox.Height},
			BBoxColor:  string(o.Color),
			HasBBox:    o.HasBBox,
		}
	}
	return wireFrame{
		Timestamp:   f.Timestamp,
		FrameNumber: f.FrameNumber,
		Camera:      string(f.Camera),
		Objects:     objects,
	}
}

func (s *Server) ringFor(camera string) (*detection.Ring, bool) {
	r, ok := s.rings[detection.Camera(camera)]
	return r, ok
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (queryRequest, bool) {
	var req queryRequest
	if r.Body == nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Status: "error", Message: "missing request body"})
		return req, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Status: "error", Message: err.Error()})
		return req, false
	}
	return req, true
}

// parseBound parses an ISO-8601 UTC timestamp, falling back to zero
// and a logged warning for malformed (but present) input.
func (s *Server) parseBound(field, value string) uint64 {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		s.log.Warn().Str("field", field).Str("value", value).Msg("malformed ISO-8601 timestamp")
		return 0
	}
	return uint64(t.UnixNano())
}

func (s *Server) handleGetDetections(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	ring, ok := s.ringFor(req.Camera)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Status: "error", Message: "unknown camera: " + req.Camera})
		return
	}

	startNS := uint64(0)
	if req.StartTime != "" {
		startNS = s.parseBound("start_time", req.StartTime)
	}
	endNS := ^uint64(0)
	if req.EndTime != "" {
		endNS = s.parseBound("end_time", req.EndTime)
	}

	frames := ring.QueryRange(startNS, endNS)
	wire := make([]wireFrame, len(frames))
	for i, f := range frames {
		wire[i] = toWireFrame(f)
	}

	writeJSON(w, http.StatusOK, struct {
		Status     string      `json:"status"`
		Detections []wireFrame `json:"detections"`
	}{Status: "success", Detections: wire})
}

func (s *Server) handleGetLatest(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	ring, ok := s.ringFor(req.Camera)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Status: "error", Message: "unknown camera: " + req.Camera})
		return
	}

	frame, found := ring.Latest()
	if !found {
		writeJSON(w, http.StatusOK, struct {
			Status    string `json:"status"`
			Detection *int   `json:"detection"`
		}{Status: "success", Detection: nil})
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Status    string    `json:"status"`
		Detection wireFrame `json:"detection"`
	}{Status: "success", Detection: toWireFrame(frame)})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
