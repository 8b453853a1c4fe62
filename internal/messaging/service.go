// Package messaging fans peer-lifecycle events out to NATS for off-box
// dashboards, generalizing the same connect/publish/subscribe
// wrapper used by the alerting pipeline it is grounded on. It is
// additive to the WebSocket-only signalling surface, never a
// replacement for it — the signalling bridge and peer manager do not
// depend on this package being enabled.
package messaging

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/pkb36/smart-cow/internal/config"
)

type Service struct {
	conn *nats.Conn
	cfg  *config.Config
}

func NewService(cfg *config.Config) (*Service, error) {
	opts := []nats.Option{
		nats.Name("smart-cow-controller"),
		nats.Timeout(cfg.NatsConnectTimeout),
		nats.ReconnectWait(cfg.NatsReconnectWait),
		nats.MaxReconnects(cfg.NatsMaxReconnects),
	}

	conn, err := nats.Connect(cfg.NatsURL, opts...)
	if err != nil {
		return nil, err
	}

	log.Info().Str("url", cfg.NatsURL).Msg("NATS connection established")

	return &Service{conn: conn, cfg: cfg}, nil
}

func (s *Service) Publish(subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.conn.Publish(subject, payload)
}

func (s *Service) Subscribe(subject string, handler func([]byte)) (*nats.Subscription, error) {
	return s.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

func (s *Service) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

func (s *Service) Shutdown() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Drain(); err != nil {
		log.Warn().Err(err).Msg("Failed to drain NATS connection gracefully, closing immediately")
		s.conn.Close()
	}
	return nil
}
