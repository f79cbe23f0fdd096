// Package config loads relay configuration from flags and environment
// variables. Flags win over environment variables, which win over defaults.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envVarListenAddr      = "SCREENSHARE_RELAY_LISTEN_ADDR"
	envVarMode            = "SCREENSHARE_RELAY_MODE"
	envVarLogFormat       = "SCREENSHARE_RELAY_LOG_FORMAT"
	envVarLogLevel        = "SCREENSHARE_RELAY_LOG_LEVEL"
	envVarShutdownTimeout = "SCREENSHARE_RELAY_SHUTDOWN_TIMEOUT"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"

	// Signaling / WebSocket hardening.
	envVarWSIdleTimeout   = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarWSPingInterval  = "SIGNALING_WS_PING_INTERVAL"
	envVarWSWriteTimeout  = "SIGNALING_WS_WRITE_TIMEOUT"
	envVarMaxMessageBytes = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarSendQueueSize   = "SIGNALING_SEND_QUEUE_SIZE"
)

const (
	DefaultListenAddr      = "127.0.0.1:8080"
	DefaultShutdownTimeout = 15 * time.Second

	DefaultWSIdleTimeout   = 60 * time.Second
	DefaultWSPingInterval  = 20 * time.Second
	DefaultWSWriteTimeout  = 10 * time.Second
	DefaultMaxMessageBytes = int64(64 * 1024)
	DefaultSendQueueSize   = 32
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr      string
	Mode            Mode
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	AllowedOrigins  []string

	WSIdleTimeout   time.Duration
	WSPingInterval  time.Duration
	WSWriteTimeout  time.Duration
	MaxMessageBytes int64
	SendQueueSize   int
}

// Load parses configuration from args and the process environment.
func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	modeDefault := envOrDefault(lookup, envVarMode, string(ModeDev))

	fs := flag.NewFlagSet("screenshare-relay", flag.ContinueOnError)
	listenAddr := fs.String("listen-addr", envOrDefault(lookup, envVarListenAddr, DefaultListenAddr), "address to listen on")
	modeRaw := fs.String("mode", modeDefault, "dev or prod (selects logging defaults)")
	logFormatRaw := fs.String("log-format", envOrDefault(lookup, envVarLogFormat, ""), "log format: text or json (default depends on mode)")
	logLevelRaw := fs.String("log-level", envOrDefault(lookup, envVarLogLevel, ""), "log level: debug, info, warn, error (default depends on mode)")
	originsRaw := fs.String("allowed-origins", envOrDefault(lookup, envVarAllowedOrigins, ""), "comma-separated websocket origins; empty allows any")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	mode, err := parseMode(*modeRaw)
	if err != nil {
		return Config{}, err
	}

	if *logFormatRaw == "" {
		*logFormatRaw = defaultLogFormatForMode(mode)
	}
	logFormat, err := parseLogFormat(*logFormatRaw)
	if err != nil {
		return Config{}, err
	}

	if *logLevelRaw == "" {
		*logLevelRaw = defaultLogLevelForMode(mode)
	}
	logLevel, err := parseLogLevel(*logLevelRaw)
	if err != nil {
		return Config{}, err
	}

	shutdown, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	idle, err := envDurationOrDefault(lookup, envVarWSIdleTimeout, DefaultWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	ping, err := envDurationOrDefault(lookup, envVarWSPingInterval, DefaultWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	write, err := envDurationOrDefault(lookup, envVarWSWriteTimeout, DefaultWSWriteTimeout)
	if err != nil {
		return Config{}, err
	}
	maxMessageBytes, err := envInt64OrDefault(lookup, envVarMaxMessageBytes, DefaultMaxMessageBytes)
	if err != nil {
		return Config{}, err
	}
	sendQueue, err := envIntOrDefault(lookup, envVarSendQueueSize, DefaultSendQueueSize)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:      *listenAddr,
		Mode:            mode,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		ShutdownTimeout: shutdown,
		AllowedOrigins:  parseOrigins(*originsRaw),
		WSIdleTimeout:   idle,
		WSPingInterval:  ping,
		WSWriteTimeout:  write,
		MaxMessageBytes: maxMessageBytes,
		SendQueueSize:   sendQueue,
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen addr must not be empty")
	}
	if c.WSPingInterval >= c.WSIdleTimeout {
		return fmt.Errorf("%s (%s) must be below %s (%s)", envVarWSPingInterval, c.WSPingInterval, envVarWSIdleTimeout, c.WSIdleTimeout)
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("%s must be positive", envVarMaxMessageBytes)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("%s must be positive", envVarSendQueueSize)
	}
	return nil
}

// NewLogger builds the process logger per the configured format and level.
func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envInt64OrDefault(lookup func(string) (string, bool), key string, fallback int64) (int64, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func defaultLogFormatForMode(mode Mode) string {
	if mode == ModeProd {
		return string(LogFormatJSON)
	}
	return string(LogFormatText)
}

func defaultLogLevelForMode(mode Mode) string {
	if mode == ModeProd {
		return "info"
	}
	return "debug"
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

func parseOrigins(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
