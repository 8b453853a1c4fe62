package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pkb36/smart-cow/internal/adminapi"
	"github.com/pkb36/smart-cow/internal/cmdpipe"
	"github.com/pkb36/smart-cow/internal/config"
	"github.com/pkb36/smart-cow/internal/detection"
	"github.com/pkb36/smart-cow/internal/logging"
	"github.com/pkb36/smart-cow/internal/mediagraph"
	"github.com/pkb36/smart-cow/internal/messaging"
	"github.com/pkb36/smart-cow/internal/metrics"
	"github.com/pkb36/smart-cow/internal/peer"
	"github.com/pkb36/smart-cow/internal/procsup"
	"github.com/pkb36/smart-cow/internal/ptz"
	"github.com/pkb36/smart-cow/internal/queryhttp"
	"github.com/pkb36/smart-cow/internal/serialport"
	"github.com/pkb36/smart-cow/internal/settings"
	"github.com/pkb36/smart-cow/internal/signalling"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the system config JSON file")
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogdyEnabled {
		w, url, err := logging.StartLogdy(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to start Logdy, continuing without it")
		} else {
			log.Logger = log.Output(zerolog.MultiLevelWriter(zerolog.ConsoleWriter{Out: os.Stderr}, w))
			log.Info().Str("url", url).Msg("Logdy UI available")
		}
	}

	log.Info().
		Str("camera_id", cfg.CameraID).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Msg("Starting smart-cow broadcast controller")

	store, err := settings.NewStore(cfg.SettingsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open device settings store")
	}

	procs := procsup.New()

	serialLink, err := serialport.Open(serialport.Config{
		PortName: cfg.SerialPort,
		BaudRate: cfg.SerialBaudRate,
		DataBits: cfg.SerialDataBits,
		Parity:   cfg.SerialParity,
		StopBits: cfg.SerialStopBits,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open PTZ serial link")
	}
	ptzController := ptz.New(serialLink).WithLogger(logging.NewServiceLogger(cfg, "ptz"))

	cmdHandler := cmdpipe.NewHandler(
		logging.NewServiceLogger(cfg, "cmdpipe"),
		ptzController, store, procs,
		cfg.RecorderBinary, cfg.RecorderArgs,
	)
	pipe, err := cmdpipe.Open(cfg.CommandPipePath, cmdHandler.Dispatch)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open command pipe")
	}

	ringRetention := time.Duration(cfg.RingRetentionSeconds) * time.Second
	rings := map[detection.Camera]*detection.Ring{
		detection.CameraRGB:     detection.NewRing(detection.CameraRGB, cfg.RingMaxEntries, ringRetention, store),
		detection.CameraThermal: detection.NewRing(detection.CameraThermal, cfg.RingMaxEntries, ringRetention, store),
	}
	queryServer := queryhttp.New(logging.NewServiceLogger(cfg, "queryhttp"), rings)
	queryHTTPServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.QueryHTTPPort),
		Handler: queryServer,
	}

	// peerManager is wired into the bridge's OnInbound before it is
	// constructed, then assigned below; the callback only fires once
	// Connect has been called, well after both are built.
	var peerManager *peer.Manager
	bridge := signalling.New(logging.NewServiceLogger(cfg, "signalling"), signalling.Config{
		BaseURL:           cfg.SignallingBaseURL,
		CameraID:          cfg.CameraID,
		Token:             cfg.SignallingToken,
		Name:              cfg.CameraID,
		FWVersion:         cfg.FirmwareVersion,
		AIVersion:         cfg.AIVersion,
		ReconnectInterval: cfg.ReconnectInterval,
		TelemetryInterval: cfg.TelemetryInterval,
		OnInbound: func(ev signalling.InboundEvent) {
			if peerManager != nil {
				peerManager.HandleSignallingEvent(ev)
			}
		},
		RecStatusFn: func() bool {
			return store.Get().RecordOn
		},
	})

	peerManager = peer.New(
		logging.NewServiceLogger(cfg, "peer"),
		procs, bridge, mediagraph.Noop{},
		peer.Config{
			StreamBasePort: cfg.StreamBasePort,
			CommBasePort:   cfg.CommBasePort,
			DeviceCount:    cfg.DeviceCount,
			MaxPeers:       cfg.MaxPeers,
			SenderBinary:   cfg.SenderBinary,
			Codec:          cfg.Codec,
		},
	)

	metricsInstance := metrics.New()

	var msgSvc *messaging.Service
	if cfg.NatsEnabled {
		msgSvc, err = messaging.NewService(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without event fan-out")
			msgSvc = nil
		} else {
			peerManager.SetNotifier(msgSvc)
		}
	}

	var adminServer *adminapi.Server
	if cfg.AdminEnabled {
		adminServer = adminapi.New(cfg, store, peerManager, metricsInstance)
	}

	go func() {
		if err := queryHTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Detection query HTTP server failed")
		}
	}()

	if adminServer != nil {
		go func() {
			if err := adminServer.Start(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("Admin HTTP server failed")
			}
		}()
	}

	if err := bridge.Connect(true); err != nil {
		log.Error().Err(err).Msg("Initial signalling connect failed, reconnect loop will keep retrying")
	}

	flushTicker := time.NewTicker(cfg.SettingsFlushPeriod)
	defer flushTicker.Stop()
	go func() {
		for range flushTicker.C {
			if err := store.Save(); err != nil {
				log.Error().Err(err).Msg("Periodic settings flush failed")
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if adminServer != nil {
		if err := adminServer.Stop(); err != nil {
			log.Error().Err(err).Msg("Admin HTTP server forced to shutdown")
		}
	}
	if err := queryHTTPServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Detection query HTTP server forced to shutdown")
	}

	peerManager.Shutdown()
	bridge.Disconnect()

	if err := pipe.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close command pipe")
	}
	if err := serialLink.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close PTZ serial link")
	}
	procs.Shutdown()

	if msgSvc != nil {
		if err := msgSvc.Shutdown(); err != nil {
			log.Error().Err(err).Msg("Failed to drain NATS connection")
		}
	}

	if err := store.Save(); err != nil {
		log.Error().Err(err).Msg("Final settings flush failed")
	}

	log.Info().Msg("Shutdown complete")
}
