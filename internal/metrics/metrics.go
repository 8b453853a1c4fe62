// Package metrics collects the optional Prometheus counters/gauges
// called for in the design notes: ring depth, peer counts, pipe
// commands, and serial ack latency. It is grounded directly on the
// registry-plus-GaugeFunc pattern in
// dj-oyu-rdk-x5_smart-pet-camera/src/streaming_server/internal/metrics/metrics.go
// (atomic counters wrapped in a dedicated prometheus.Registry, exposed
// through a promhttp handler rather than a package-global registry),
// with that package's streaming-frame counters replaced by this
// system's own set.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pkb36/smart-cow/internal/detection"
)

// Metrics holds the atomic counters/gauges and the registry they are
// published through.
type Metrics struct {
	PeersActive   atomic.Uint64
	PeersTotal    atomic.Uint64
	PeersRejected atomic.Uint64

	RingDepthRGB     atomic.Uint64
	RingDepthThermal atomic.Uint64

	PipeCommandsTotal  atomic.Uint64
	PipeCommandErrors  atomic.Uint64
	SerialAckLatencyMs atomic.Uint64

	SignallingReconnects atomic.Uint64

	registry *prometheus.Registry
}

// New creates a Metrics instance with its collectors registered.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.register()
	return m
}

func (m *Metrics) register() {
	gauge := func(name, help string, get func() float64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: name, Help: help}, get))
	}

	gauge("cow_peers_active", "Currently connected viewer peers.",
		func() float64 { return float64(m.PeersActive.Load()) })
	gauge("cow_peers_total", "Cumulative successful add_peer calls.",
		func() float64 { return float64(m.PeersTotal.Load()) })
	gauge("cow_peers_rejected_total", "Cumulative add_peer rejections (duplicate or over-capacity).",
		func() float64 { return float64(m.PeersRejected.Load()) })

	gauge("cow_ring_depth_rgb", "Current detection ring depth for the RGB camera.",
		func() float64 { return float64(m.RingDepthRGB.Load()) })
	gauge("cow_ring_depth_thermal", "Current detection ring depth for the thermal camera.",
		func() float64 { return float64(m.RingDepthThermal.Load()) })

	gauge("cow_pipe_commands_total", "Cumulative command-pipe lines dispatched.",
		func() float64 { return float64(m.PipeCommandsTotal.Load()) })
	gauge("cow_pipe_command_errors_total", "Cumulative command-pipe dispatch failures.",
		func() float64 { return float64(m.PipeCommandErrors.Load()) })
	gauge("cow_serial_ack_latency_ms", "Most recent PTZ serial ack round-trip latency.",
		func() float64 { return float64(m.SerialAckLatencyMs.Load()) })

	gauge("cow_signalling_reconnects_total", "Cumulative signalling bridge reconnect attempts.",
		func() float64 { return float64(m.SignallingReconnects.Load()) })
}

// SetRingDepth records the current depth of one camera's detection ring.
func (m *Metrics) SetRingDepth(camera detection.Camera, depth int) {
	if camera == detection.CameraThermal {
		m.RingDepthThermal.Store(uint64(depth))
		return
	}
	m.RingDepthRGB.Store(uint64(depth))
}

// ObserveSerialAck records the round-trip latency of one PTZ command/ack
// exchange.
func (m *Metrics) ObserveSerialAck(d time.Duration) {
	m.SerialAckLatencyMs.Store(uint64(d.Milliseconds()))
}

// Handler returns the Prometheus HTTP handler, mounted under the admin
// gin server at /metrics rather than run as its own listener.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
