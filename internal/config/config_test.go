package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(lookupFrom(nil), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("ListenAddr = %q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.Mode != ModeDev {
		t.Fatalf("Mode = %q, want dev", cfg.Mode)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("LogFormat = %q, want text in dev", cfg.LogFormat)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v, want debug in dev", cfg.LogLevel)
	}
	if cfg.WSIdleTimeout != DefaultWSIdleTimeout || cfg.WSPingInterval != DefaultWSPingInterval {
		t.Fatalf("ws timings = %v/%v, want defaults", cfg.WSIdleTimeout, cfg.WSPingInterval)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Fatalf("AllowedOrigins = %v, want empty", cfg.AllowedOrigins)
	}
}

func TestLoad_ProdDefaultsToJSONInfo(t *testing.T) {
	cfg, err := load(lookupFrom(map[string]string{envVarMode: "prod"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("LogFormat = %q, want json in prod", cfg.LogFormat)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v, want info in prod", cfg.LogLevel)
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	env := map[string]string{
		envVarListenAddr: "127.0.0.1:9999",
		envVarLogLevel:   "error",
	}
	cfg, err := load(lookupFrom(env), []string{"-listen-addr", "0.0.0.0:8443", "-log-level", "warn"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:8443" {
		t.Fatalf("ListenAddr = %q, flag must win over env", cfg.ListenAddr)
	}
	if cfg.LogLevel != slog.LevelWarn {
		t.Fatalf("LogLevel = %v, flag must win over env", cfg.LogLevel)
	}
}

func TestLoad_ParsesKnobs(t *testing.T) {
	env := map[string]string{
		envVarWSIdleTimeout:   "90s",
		envVarWSPingInterval:  "15s",
		envVarMaxMessageBytes: "128000",
		envVarSendQueueSize:   "64",
		envVarAllowedOrigins:  "https://a.example, https://b.example",
	}
	cfg, err := load(lookupFrom(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WSIdleTimeout != 90*time.Second {
		t.Fatalf("WSIdleTimeout = %v, want 90s", cfg.WSIdleTimeout)
	}
	if cfg.MaxMessageBytes != 128000 {
		t.Fatalf("MaxMessageBytes = %d, want 128000", cfg.MaxMessageBytes)
	}
	if cfg.SendQueueSize != 64 {
		t.Fatalf("SendQueueSize = %d, want 64", cfg.SendQueueSize)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != want[0] || cfg.AllowedOrigins[1] != want[1] {
		t.Fatalf("AllowedOrigins = %v, want %v", cfg.AllowedOrigins, want)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := []map[string]string{
		{envVarMode: "staging"},
		{envVarLogLevel: "loud"},
		{envVarLogFormat: "xml"},
		{envVarWSIdleTimeout: "soon"},
		{envVarMaxMessageBytes: "-1"},
		// Ping at or above the idle timeout can never keep the
		// connection alive.
		{envVarWSPingInterval: "2m"},
	}
	for _, env := range cases {
		if _, err := load(lookupFrom(env), nil); err == nil {
			t.Fatalf("load(%v): expected error", env)
		}
	}
}

func TestLoad_RejectsUnknownFlag(t *testing.T) {
	_, err := load(lookupFrom(nil), []string{"-no-such-flag"})
	if err == nil || !strings.Contains(err.Error(), "no-such-flag") {
		t.Fatalf("got %v, want unknown flag error", err)
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []LogFormat{LogFormatText, LogFormatJSON} {
		logger, err := NewLogger(Config{LogFormat: format, LogLevel: slog.LevelInfo})
		if err != nil {
			t.Fatalf("NewLogger(%s): %v", format, err)
		}
		if logger == nil {
			t.Fatalf("NewLogger(%s): nil logger", format)
		}
	}
	if _, err := NewLogger(Config{LogFormat: "yaml"}); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}
