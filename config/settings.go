package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Settings are the runtime tunables. Defaults can be overridden through the
// environment.
type Settings struct {
	// RequestTimeout bounds every correlated request. ENV: MCPLENS_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"MCPLENS_REQUEST_TIMEOUT,default=10s"`
	// HandshakeTimeout bounds the initialize exchange. ENV: MCPLENS_HANDSHAKE_TIMEOUT
	HandshakeTimeout time.Duration `env:"MCPLENS_HANDSHAKE_TIMEOUT,default=10s"`
	// SettleDelay is the pause between stop and start on restart. ENV: MCPLENS_SETTLE_DELAY
	SettleDelay time.Duration `env:"MCPLENS_SETTLE_DELAY,default=500ms"`
	// LogLevel is one of debug, info, warn, error. ENV: MCPLENS_LOG_LEVEL
	LogLevel string `env:"MCPLENS_LOG_LEVEL,default=info"`
}

// SettingsFromEnv populates Settings using envdecode; defaults come from the
// struct tags.
func SettingsFromEnv() (Settings, error) {
	var s Settings
	if err := envdecode.Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("config: decode settings: %w", err)
	}
	return s, nil
}

// SlogLevel maps the textual level to its slog value, defaulting to info.
func (s Settings) SlogLevel() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
