package queryhttp

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkb36/smart-cow/internal/detection"
)

func newTestServer() *Server {
	rgb := detection.NewRing(detection.CameraRGB, 10, time.Minute, nil)
	rgb.Insert(detection.DetectionFrame{
		Timestamp: 2_000_000_000,
		Objects: []detection.DetectedObject{
			{ClassID: detection.ClassNormalCow, Confidence: 0.9, BBox: detection.BoundingBox{X: 1, Y: 2, Width: 3, Height: 4}, Color: detection.ColorGreen, HasBBox: true},
		},
	})
	return New(zerolog.Nop(), map[detection.Camera]*detection.Ring{detection.CameraRGB: rgb})
}

func postJSON(t *testing.T, s *Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestGetDetectionsReturnsBBoxAsCorners(t *testing.T) {
	s := newTestServer()
	rec := postJSON(t, s, "/api/get_detections", queryRequest{Camera: "RGB_Camera"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var out struct {
		Status     string      `json:"status"`
		Detections []wireFrame `json:"detections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Detections, 1)
	assert.Equal(t, [4]int{1, 2, 4, 6}, out.Detections[0].Objects[0].BBox)
	assert.Equal(t, "Green", out.Detections[0].Objects[0].BBoxColor)
}

func TestGetLatestUnknownCameraReturnsError(t *testing.T) {
	s := newTestServer()
	rec := postJSON(t, s, "/api/get_latest", queryRequest{Camera: "Thermal_Camera"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code) // unknown ring -> error, not null
}

func TestGetLatestReturnsDetection(t *testing.T) {
	s := newTestServer()
	rec := postJSON(t, s, "/api/get_latest", queryRequest{Camera: "RGB_Camera"})

	assert.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Status    string    `json:"status"`
		Detection wireFrame `json:"detection"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, uint64(2_000_000_000), out.Detection.Timestamp)
}

func TestUnknownRouteReturns404(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var out notFoundBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "Endpoint not found", out.Message)
	assert.Equal(t, "/nope", out.Path)
}

func TestMalformedTimestampFallsBackToZero(t *testing.T) {
	s := newTestServer()
	rec := postJSON(t, s, "/api/get_detections", queryRequest{Camera: "RGB_Camera", StartTime: "not-a-date"})
	assert.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Detections []wireFrame `json:"detections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Detections, 1) // start=0 still includes the one frame at t=2e9
}
