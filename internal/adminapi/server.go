// Package adminapi is the admin/status gin surface: health, system
// stats, device settings, and the current peer table, plus the
// Prometheus handler and swagger docs. It follows the same Server
// shape used elsewhere in this codebase for HTTP surfaces (gin.New, a
// middleware setup step, a route setup step, a swagger setup step,
// http.Server wrapping the router with a context-deadline Shutdown),
// generalized from worker/camera/webrtc routes to this system's own
// domain objects.
package adminapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/pkb36/smart-cow/internal/api/middleware"
	"github.com/pkb36/smart-cow/internal/config"
	"github.com/pkb36/smart-cow/internal/metrics"
	"github.com/pkb36/smart-cow/internal/peer"
	"github.com/pkb36/smart-cow/internal/settings"
)

// Server is the admin HTTP surface. One instance per camera process.
type Server struct {
	cfg     *config.Config
	router  *gin.Engine
	server  *http.Server
	handler *Handler
}

// New builds a Server bound to the given collaborators. metrics may be
// nil (cfg.MetricsEnabled gates whether /metrics is mounted at all).
func New(cfg *config.Config, store *settings.Store, peers *peer.Manager, m *metrics.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		cfg:     cfg,
		router:  router,
		handler: newHandler(cfg, store, peers),
	}

	router.Use(middleware.Recovery(), middleware.Logger(), middleware.RequestID(), middleware.RequestContext(), middleware.CORS())

	router.GET("/health", s.handler.Health)
	router.GET("/", s.handler.Info)

	system := router.Group("/system")
	{
		system.GET("/stats", s.handler.Stats)
		system.GET("/settings", s.handler.GetSettings)
		system.PATCH("/settings", s.handler.PatchSettings)
		system.GET("/peers", s.handler.Peers)
	}

	if cfg.MetricsEnabled && m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/docs/index.html")
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.AdminPort),
		Handler: router,
	}
	return s
}

// Start runs the admin HTTP server until Stop is called. It returns
// http.ErrServerClosed on a clean Stop, matching net/http.Server's own
// contract.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop shuts the server down within the configured shutdown timeout.
func (s *Server) Stop() error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
