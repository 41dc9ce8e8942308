package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/pscheid92/linecast/internal/adapter/httpserver"
	"github.com/pscheid92/linecast/internal/adapter/metrics"
	"github.com/pscheid92/linecast/internal/adapter/tcp"
	"github.com/pscheid92/linecast/internal/broadcast"
	"github.com/pscheid92/linecast/internal/platform/config"
	"github.com/pscheid92/linecast/internal/registry"
)

var errListenerNotServing = errors.New("listener is not accepting connections")

type Relay struct {
	config *config.Config
	input  io.Reader

	registry    *registry.Registry
	listener    *tcp.Listener
	broadcaster *broadcast.Broadcaster
	admin       *httpserver.Server
}

// NewRelay builds a relay around an already bound listener. Operator lines are read from input.
// The admin server is created only when cfg.AdminAddr is set.
func NewRelay(cfg *config.Config, ln net.Listener, input io.Reader, reg *prometheus.Registry, clock clockwork.Clock) *Relay {
	connections := registry.New()

	limits := tcp.NewConnectionLimits(cfg.MaxConnections, cfg.MaxConnectionsPerIP, cfg.ConnectionRate, cfg.ConnectionBurst, clock)
	listener := tcp.NewListener(ln, connections, metrics.NewTCPMetrics(reg), tcp.WithLimits(limits))

	broadcaster := broadcast.NewBroadcaster(connections, metrics.NewBroadcastMetrics(reg), clock,
		broadcast.WithPrefix(cfg.BroadcastPrefix),
		broadcast.WithWriteTimeout(cfg.WriteTimeout),
		broadcast.WithEviction(cfg.EvictOnWriteError),
	)

	r := &Relay{
		config:      cfg,
		input:       input,
		registry:    connections,
		listener:    listener,
		broadcaster: broadcaster,
	}

	if cfg.AdminAddr != "" {
		checks := []httpserver.HealthCheck{
			{Name: "listener", Check: r.checkListener},
		}
		r.admin = httpserver.NewServer(cfg, connections, broadcaster, reg, clock, checks)
	}

	return r
}

// Addr returns the address clients connect to.
func (r *Relay) Addr() net.Addr {
	return r.listener.Addr()
}

// Registry exposes the live connection table.
func (r *Relay) Registry() *registry.Registry {
	return r.registry
}

// Run serves until ctx is cancelled or the accept loop fails. Operator input ending or failing
// only stops broadcasts; clients keep being served.
func (r *Relay) Run(ctx context.Context) error {
	slog.Info("Relay started", "addr", r.listener.Addr().String(), "admin", r.admin != nil)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.listener.Serve(gctx)
	})

	g.Go(func() error {
		if err := r.broadcaster.Run(gctx, r.input); err != nil {
			slog.Error("Operator input failed, no further broadcasts", "error", err)
		}
		return nil
	})

	if r.admin != nil {
		g.Go(func() error {
			if err := r.admin.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := r.shutdownContext()
			defer cancel()
			return r.admin.Shutdown(shutdownCtx)
		})
	}

	runErr := g.Wait()

	drainCtx, cancel := r.shutdownContext()
	defer cancel()
	drainErr := r.listener.Drain(drainCtx)

	if err := errors.Join(runErr, drainErr); err != nil {
		return fmt.Errorf("relay stopped with error: %w", err)
	}

	slog.Info("Relay stopped")
	return nil
}

// shutdownContext is bounded by SHUTDOWN_TIMEOUT; zero means wait indefinitely.
func (r *Relay) shutdownContext() (context.Context, context.CancelFunc) {
	if r.config.ShutdownTimeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), r.config.ShutdownTimeout)
}

func (r *Relay) checkListener(_ context.Context) error {
	if !r.listener.Serving() {
		return errListenerNotServing
	}
	return nil
}
