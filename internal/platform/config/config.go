package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	ListenAddr string `env:"LISTEN_ADDR" default:"127.0.0.1:7878"`
	AdminAddr  string `env:"ADMIN_ADDR"` // empty disables the admin HTTP server

	// POST /api/broadcast rate limit per client IP
	AdminBroadcastRate  float64 `env:"ADMIN_BROADCAST_RATE" default:"5"`
	AdminBroadcastBurst int     `env:"ADMIN_BROADCAST_BURST" default:"10"`

	BroadcastPrefix   string        `env:"BROADCAST_PREFIX"` // empty means broadcast.DefaultPrefix
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" default:"5s"`
	EvictOnWriteError bool          `env:"EVICT_ON_WRITE_ERROR" default:"false"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`

	// Connection admission. Zero means unlimited.
	MaxConnections      int     `env:"MAX_CONNECTIONS" default:"0"`
	MaxConnectionsPerIP int     `env:"MAX_CONNECTIONS_PER_IP" default:"0"`
	ConnectionRate      float64 `env:"CONNECTION_RATE" default:"0"`
	ConnectionBurst     int     `env:"CONNECTION_BURST" default:"1"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if _, _, err := net.SplitHostPort(cfg.ListenAddr); err != nil {
		return fmt.Errorf("LISTEN_ADDR must be host:port: %w", err)
	}
	if cfg.AdminAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.AdminAddr); err != nil {
			return fmt.Errorf("ADMIN_ADDR must be host:port: %w", err)
		}
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	if cfg.WriteTimeout < 0 {
		return errors.New("WRITE_TIMEOUT must not be negative")
	}
	if cfg.ShutdownTimeout < 0 {
		return errors.New("SHUTDOWN_TIMEOUT must not be negative")
	}

	nonNegative := map[string]float64{
		"MAX_CONNECTIONS":        float64(cfg.MaxConnections),
		"MAX_CONNECTIONS_PER_IP": float64(cfg.MaxConnectionsPerIP),
		"CONNECTION_RATE":        cfg.ConnectionRate,
	}
	for name, value := range nonNegative {
		if value < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	if cfg.AdminBroadcastRate <= 0 || cfg.AdminBroadcastBurst < 1 {
		return errors.New("ADMIN_BROADCAST_RATE must be positive and ADMIN_BROADCAST_BURST at least 1")
	}

	if cfg.ConnectionRate > 0 && cfg.ConnectionBurst < 1 {
		return errors.New("CONNECTION_BURST must be at least 1 when CONNECTION_RATE is set")
	}

	return nil
}
