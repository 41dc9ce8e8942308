package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/linecast/internal/adapter/metrics"
	"github.com/pscheid92/linecast/internal/adapter/tcp"
	"github.com/pscheid92/linecast/internal/app"
	"github.com/pscheid92/linecast/internal/platform/config"
	"github.com/pscheid92/linecast/internal/platform/logging"
	"github.com/pscheid92/linecast/internal/platform/version"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupListener(cfg *config.Config) net.Listener {
	ln, err := tcp.Listen(cfg.ListenAddr)
	if err != nil {
		slog.Error("Failed to bind listener", "addr", cfg.ListenAddr, "error", err)
		os.Exit(1)
	}
	return ln
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	slog.Info("Application starting",
		"env", cfg.AppEnv,
		"version", info.Version,
		"commit", info.Commit,
		"instance_id", info.InstanceID,
		"listen_addr", cfg.ListenAddr,
	)

	ln := setupListener(cfg)

	relay := app.NewRelay(cfg, ln, os.Stdin, metrics.NewRegistry(), clock)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := relay.Run(ctx); err != nil {
		slog.Error("Relay failed", "error", err)
		stop()
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}
