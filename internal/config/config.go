package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/pkb36/smart-cow/internal/errs"
)

// Config is the immutable system configuration. Domain fields (camera IDs,
// signalling URL, serial port, pipe path, port pool sizing) come from the
// JSON file named by --config; ambient fields (log level, admin port,
// NATS URL, metrics toggle) are read from the environment, with .env
// support via godotenv.
type Config struct {
	// Application
	Version     string
	Environment string
	LogLevel    string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// Admin HTTP surface (gin) — distinct from the detection query HTTP surface
	AdminEnabled bool
	AdminPort    int

	// Metrics
	MetricsEnabled bool

	// NATS (peer lifecycle + telemetry fan-out)
	NatsEnabled        bool
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int
	NatsDrainTimeout   time.Duration

	// Detection Query Service (§4.G)
	QueryHTTPPort int

	// Detection Ring Buffer (§4.D)
	RingMaxEntries       int
	RingRetentionSeconds int

	// Device settings persistence (§3 DeviceSettings, §6 persisted state)
	SettingsPath        string
	SettingsFlushPeriod time.Duration

	// Command Pipe (§4.F)
	CommandPipePath string

	// PTZ Serial Link (§4.C / §4.E)
	SerialPort     string
	SerialBaudRate int
	SerialDataBits int
	SerialParity   string
	SerialStopBits int

	// Signalling Bridge (§4.H)
	SignallingBaseURL    string
	SignallingToken      string
	CameraID             string
	FirmwareVersion      string
	AIVersion            string
	ReconnectInterval    time.Duration
	TelemetryInterval    time.Duration

	// Peer Manager / Sender Supervisor (§4.I / §4.J)
	MaxPeers       int
	StreamBasePort int
	CommBasePort   int
	DeviceCount    int
	SenderBinary   string
	Codec          string

	// Recorder child (§3 record_on toggles this process)
	RecorderBinary string
	RecorderArgs   []string

	// Graceful shutdown
	ShutdownTimeout time.Duration
}

// fileConfig is the subset of Config that is read from the JSON file named
// by --config. Parsing of this file is an out-of-scope concern (spec.md
// §1) so this is a deliberately small, forgiving unmarshal — unknown keys
// are ignored and a missing file falls back to defaults.
type fileConfig struct {
	CameraID          string `json:"camera_id"`
	SignallingBaseURL string `json:"signalling_base_url"`
	SignallingToken   string `json:"signalling_token"`
	FirmwareVersion   string `json:"fw_version"`
	AIVersion         string `json:"ai_version"`

	SerialPort     string `json:"serial_port"`
	SerialBaudRate int    `json:"serial_baud_rate"`
	SerialDataBits int    `json:"serial_data_bits"`
	SerialParity   string `json:"serial_parity"`
	SerialStopBits int    `json:"serial_stop_bits"`

	CommandPipePath string `json:"command_pipe_path"`
	SettingsPath    string `json:"settings_path"`

	QueryHTTPPort int `json:"query_http_port"`

	MaxPeers       int    `json:"max_peers"`
	StreamBasePort int    `json:"stream_base_port"`
	CommBasePort   int    `json:"comm_base_port"`
	DeviceCount    int    `json:"device_count"`
	SenderBinary   string `json:"sender_binary"`
	Codec          string `json:"codec"`

	RecorderBinary string   `json:"recorder_binary"`
	RecorderArgs   []string `json:"recorder_args"`
}

// Load reads the JSON system config at path (if present) and overlays
// ambient settings from the environment (and .env, if present).
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				log.Warn().Str("path", path).Msg("Config file not found, using defaults")
			} else {
				return nil, errs.Wrap(errs.ConfigInvalid, "reading config file", err)
			}
		} else {
			var fc fileConfig
			if err := json.Unmarshal(data, &fc); err != nil {
				return nil, errs.Wrap(errs.ConfigInvalid, "parsing config file", err)
			}
			applyFileConfig(cfg, &fc)
		}
	}

	if cfg.CameraID == "" {
		return nil, errs.New(errs.ConfigInvalid, "camera_id is required")
	}
	if cfg.SignallingBaseURL == "" {
		return nil, errs.New(errs.ConfigInvalid, "signalling_base_url is required")
	}

	return cfg, nil
}

func applyFileConfig(cfg *Config, fc *fileConfig) {
	if fc.CameraID != "" {
		cfg.CameraID = fc.CameraID
	}
	if fc.SignallingBaseURL != "" {
		cfg.SignallingBaseURL = fc.SignallingBaseURL
	}
	if fc.SignallingToken != "" {
		cfg.SignallingToken = fc.SignallingToken
	}
	if fc.FirmwareVersion != "" {
		cfg.FirmwareVersion = fc.FirmwareVersion
	}
	if fc.AIVersion != "" {
		cfg.AIVersion = fc.AIVersion
	}
	if fc.SerialPort != "" {
		cfg.SerialPort = fc.SerialPort
	}
	if fc.SerialBaudRate != 0 {
		cfg.SerialBaudRate = fc.SerialBaudRate
	}
	if fc.SerialDataBits != 0 {
		cfg.SerialDataBits = fc.SerialDataBits
	}
	if fc.SerialParity != "" {
		cfg.SerialParity = fc.SerialParity
	}
	if fc.SerialStopBits != 0 {
		cfg.SerialStopBits = fc.SerialStopBits
	}
	if fc.CommandPipePath != "" {
		cfg.CommandPipePath = fc.CommandPipePath
	}
	if fc.SettingsPath != "" {
		cfg.SettingsPath = fc.SettingsPath
	}
	if fc.QueryHTTPPort != 0 {
		cfg.QueryHTTPPort = fc.QueryHTTPPort
	}
	if fc.MaxPeers != 0 {
		cfg.MaxPeers = fc.MaxPeers
	}
	if fc.StreamBasePort != 0 {
		cfg.StreamBasePort = fc.StreamBasePort
	}
	if fc.CommBasePort != 0 {
		cfg.CommBasePort = fc.CommBasePort
	}
	if fc.DeviceCount != 0 {
		cfg.DeviceCount = fc.DeviceCount
	}
	if fc.SenderBinary != "" {
		cfg.SenderBinary = fc.SenderBinary
	}
	if fc.Codec != "" {
		cfg.Codec = fc.Codec
	}
	if fc.RecorderBinary != "" {
		cfg.RecorderBinary = fc.RecorderBinary
	}
	if len(fc.RecorderArgs) > 0 {
		cfg.RecorderArgs = fc.RecorderArgs
	}
}

func defaultConfig() *Config {
	return &Config{
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		AdminEnabled: getEnvBool("ADMIN_ENABLED", true),
		AdminPort:    getEnvInt("ADMIN_PORT", 9000),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),

		NatsEnabled:        getEnvBool("NATS_ENABLED", false),
		NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1),
		NatsDrainTimeout:   getEnvDuration("NATS_DRAIN_TIMEOUT", 5*time.Second),

		QueryHTTPPort: getEnvInt("QUERY_HTTP_PORT", 8600),

		RingMaxEntries:       getEnvInt("RING_MAX_ENTRIES", 3600),
		RingRetentionSeconds: getEnvInt("RING_RETENTION_SECONDS", 120),

		SettingsPath:        getEnv("SETTINGS_PATH", "device_settings.json"),
		SettingsFlushPeriod: getEnvDuration("SETTINGS_FLUSH_PERIOD", 5*time.Second),

		CommandPipePath: getEnv("COMMAND_PIPE_PATH", "/tmp/smart-cow-cmd"),

		SerialPort:     getEnv("SERIAL_PORT", "/dev/ttyUSB0"),
		SerialBaudRate: getEnvInt("SERIAL_BAUD_RATE", 38400),
		SerialDataBits: getEnvInt("SERIAL_DATA_BITS", 8),
		SerialParity:   getEnv("SERIAL_PARITY", "N"),
		SerialStopBits: getEnvInt("SERIAL_STOP_BITS", 1),

		SignallingToken:   getEnv("SIGNALLING_TOKEN", "test"),
		FirmwareVersion:   getEnv("FW_VERSION", "1.0.0"),
		AIVersion:         getEnv("AI_VERSION", "1.0.0"),
		ReconnectInterval: getEnvDuration("RECONNECT_INTERVAL", 5*time.Second),
		TelemetryInterval: getEnvDuration("TELEMETRY_INTERVAL", 10*time.Second),

		MaxPeers:       getEnvInt("MAX_PEERS", 8),
		StreamBasePort: getEnvInt("STREAM_BASE_PORT", 20000),
		CommBasePort:   getEnvInt("COMM_BASE_PORT", 21000),
		DeviceCount:    getEnvInt("DEVICE_COUNT", 2),
		SenderBinary:   getEnv("SENDER_BINARY", "/usr/local/bin/peer_sender"),
		Codec:          getEnv("CODEC", "h264"),

		RecorderBinary: getEnv("RECORDER_BINARY", "/usr/local/bin/recorder"),
		RecorderArgs:   []string{},

		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
