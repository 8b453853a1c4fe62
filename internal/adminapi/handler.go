package adminapi

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pkb36/smart-cow/internal/config"
	"github.com/pkb36/smart-cow/internal/logging"
	"github.com/pkb36/smart-cow/internal/peer"
	"github.com/pkb36/smart-cow/internal/settings"
)

// Handler groups the admin endpoints' collaborators, splitting
// health/system concerns into separate methods constructed once and
// wired into routes in server.go.
type Handler struct {
	cameraID string
	store    *settings.Store
	peers    *peer.Manager
	started  time.Time
}

func newHandler(cfg *config.Config, store *settings.Store, peers *peer.Manager) *Handler {
	return &Handler{cameraID: cfg.CameraID, store: store, peers: peers, started: time.Now()}
}

type healthResponse struct {
	Status   string `json:"status" example:"healthy"`
	CameraID string `json:"camera_id"`
}

// @Summary Health check
// @Description Check if the broadcast controller is healthy and responsive
// @Tags health
// @Produce json
// @Success 200 {object} healthResponse
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "healthy", CameraID: h.cameraID})
}

type infoResponse struct {
	CameraID     string   `json:"camera_id"`
	Status       string   `json:"status" example:"running"`
	Capabilities []string `json:"capabilities"`
}

// @Summary Controller information
// @Tags health
// @Produce json
// @Success 200 {object} infoResponse
// @Router / [get]
func (h *Handler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, infoResponse{
		CameraID:     h.cameraID,
		Status:       "running",
		Capabilities: []string{"signalling", "peer_fanout", "ptz", "detection_query"},
	})
}

// @Summary Get system stats
// @Description Runtime memory/goroutine stats plus peer count
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /system/stats [get]
func (h *Handler) Stats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.JSON(http.StatusOK, gin.H{
		"camera_id":  h.cameraID,
		"uptime":     int64(time.Since(h.started).Seconds()),
		"memory_mb":  m.Alloc / 1024 / 1024,
		"cpu_cores":  runtime.NumCPU(),
		"goroutines": runtime.NumGoroutine(),
		"go_version": runtime.Version(),
		"peer_count": h.peerCount(),
	})
}

func (h *Handler) peerCount() int {
	if h.peers == nil {
		return 0
	}
	return len(h.peers.Peers())
}

// @Summary Get device settings
// @Tags system
// @Produce json
// @Success 200 {object} settings.Snapshot
// @Router /system/settings [get]
func (h *Handler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Get())
}

type patchSettingsRequest struct {
	RecordOn       *bool   `json:"record_on"`
	AnalysisOn     *bool   `json:"analysis_on"`
	NVInterval     *int    `json:"nv_interval"`
	OptFlowOn      *bool   `json:"opt_flow_on"`
	ResNet50On     *bool   `json:"resnet50_on"`
	EventNotifyOn  *bool   `json:"event_notify_on"`
	TempCorrection *int    `json:"temp_correction"`
	PTZMode        *string `json:"ptz_mode"`
	ColorPalette   *int    `json:"color_palette"`
}

// @Summary Patch device settings
// @Description Apply a partial update to the device settings; omitted fields are left unchanged
// @Tags system
// @Accept json
// @Produce json
// @Success 200 {object} settings.Snapshot
// @Router /system/settings [patch]
func (h *Handler) PatchSettings(c *gin.Context) {
	var req patchSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logging.Warn(c).Err(err).Msg("Rejecting malformed settings patch")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.store.Update(func(s *settings.Snapshot) {
		if req.RecordOn != nil {
			s.RecordOn = *req.RecordOn
		}
		if req.AnalysisOn != nil {
			s.AnalysisOn = *req.AnalysisOn
		}
		if req.NVInterval != nil {
			s.NVInterval = *req.NVInterval
		}
		if req.OptFlowOn != nil {
			s.OptFlowOn = *req.OptFlowOn
		}
		if req.ResNet50On != nil {
			s.ResNet50On = *req.ResNet50On
		}
		if req.EventNotifyOn != nil {
			s.EventNotifyOn = *req.EventNotifyOn
		}
		if req.TempCorrection != nil {
			s.TempCorrection = *req.TempCorrection
		}
		if req.PTZMode != nil {
			s.PTZMode = *req.PTZMode
		}
		if req.ColorPalette != nil {
			s.ColorPalette = *req.ColorPalette
		}
	})

	logging.Info(c).Msg("Device settings updated")
	c.JSON(http.StatusOK, h.store.Get())
}

type peerResponse struct {
	ID         string `json:"peer_id"`
	Source     string `json:"source"`
	StreamPort int    `json:"stream_port"`
	CommPort   int    `json:"comm_port"`
}

// @Summary List connected peers
// @Tags system
// @Produce json
// @Success 200 {array} peerResponse
// @Router /system/peers [get]
func (h *Handler) Peers(c *gin.Context) {
	var infos []peer.PeerInfo
	if h.peers != nil {
		infos = h.peers.Peers()
	}
	logging.Debug(c).Int("peer_count", len(infos)).Msg("Listing connected peers")
	out := make([]peerResponse, len(infos))
	for i, p := range infos {
		out[i] = peerResponse{ID: p.ID, Source: string(p.Source), StreamPort: p.StreamPort, CommPort: p.CommPort}
	}
	c.JSON(http.StatusOK, out)
}
