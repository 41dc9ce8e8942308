package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pscheid92/linecast/internal/adapter/metrics"
	"github.com/pscheid92/linecast/internal/broadcast"
	"github.com/pscheid92/linecast/internal/domain"
	"github.com/pscheid92/linecast/internal/platform/config"
)

type connectionSource interface {
	Snapshot() []domain.Connection
	Lookup(id domain.ConnectionID) (domain.Peer, bool)
	Closed() bool
}

type broadcaster interface {
	Broadcast(ctx context.Context, line string) broadcast.Result
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	connections connectionSource
	broadcaster broadcaster

	metricsHandler http.Handler
	httpMetrics    *metrics.HTTPMetrics
	healthChecks   []HealthCheck

	clock     clockwork.Clock
	startTime time.Time
}

// NewServer creates the admin server and registers its routes. Collectors for admin requests
// are registered on reg, which /metrics also serves.
func NewServer(cfg *config.Config, connections connectionSource, b broadcaster, reg *prometheus.Registry, clock clockwork.Clock, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:           e,
		config:         cfg,
		connections:    connections,
		broadcaster:    b,
		metricsHandler: metrics.Handler(reg),
		httpMetrics:    metrics.NewHTTPMetrics(reg),
		healthChecks:   healthChecks,
		clock:          clock,
		startTime:      clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Start serves on ADMIN_ADDR until Shutdown. It returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start() error {
	slog.Info("Starting admin server", "addr", s.config.AdminAddr)
	if err := s.echo.Start(s.config.AdminAddr); err != nil {
		return fmt.Errorf("failed to start admin server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown admin server: %w", err)
	}
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
