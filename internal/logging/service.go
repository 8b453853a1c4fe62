package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pkb36/smart-cow/internal/config"
)

func NewServiceLogger(cfg *config.Config, component string) zerolog.Logger {
	return log.With().Str("camera_id", cfg.CameraID).Str("component", component).Logger()
}

func WithPeer(base zerolog.Logger, peerID string) zerolog.Logger {
	return base.With().Str("peer_id", peerID).Logger()
}
