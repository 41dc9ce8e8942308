package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pscheid92/linecast/internal/adapter/metrics"
	"github.com/pscheid92/linecast/internal/domain"
	"github.com/pscheid92/linecast/internal/platform/correlation"
)

const rejectReasonRegistryClosed = "registry_closed"

// Listen binds a TCP listener on addr.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	return ln, nil
}

// Listener runs the accept loop. Every admitted connection gets the next ConnectionID,
// is inserted into the registry, and only then gets its reader goroutine.
type Listener struct {
	listener net.Listener
	registry domain.ConnectionRegistry
	metrics  *metrics.TCPMetrics
	limits   *ConnectionLimits

	nextID  atomic.Uint64
	serving atomic.Bool
	readers sync.WaitGroup
}

type Option func(*Listener)

// WithLimits enables admission control. A nil value leaves connections unlimited.
func WithLimits(limits *ConnectionLimits) Option {
	return func(l *Listener) {
		l.limits = limits
	}
}

// NewListener wraps an already bound listener. Accepted connections are inserted into registry.
func NewListener(ln net.Listener, registry domain.ConnectionRegistry, m *metrics.TCPMetrics, opts ...Option) *Listener {
	l := &Listener{
		listener: ln,
		registry: registry,
		metrics:  m,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Serving reports whether the accept loop is running.
func (l *Listener) Serving() bool {
	return l.serving.Load()
}

// Assigned returns how many connection IDs have been handed out.
func (l *Listener) Assigned() uint64 {
	return l.nextID.Load()
}

// Serve accepts connections until ctx is cancelled, then closes the listener and returns nil.
// Failed accepts are logged and skipped. If the listener is closed by someone else, Serve
// returns an error wrapping net.ErrClosed.
func (l *Listener) Serve(ctx context.Context) error {
	l.serving.Store(true)
	defer l.serving.Store(false)

	stop := context.AfterFunc(ctx, func() {
		_ = l.listener.Close()
	})
	defer stop()

	slog.Info("Listening for connections", "addr", l.listener.Addr().String())

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Listener stopped")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener closed: %w", err)
			}
			l.metrics.AcceptErrors.Inc()
			slog.Error("Failed to accept connection", "error", err)
			continue
		}
		l.admit(ctx, conn)
	}
}

func (l *Listener) admit(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	ip := remoteIP(remote)

	if l.limits != nil {
		if ok, reason := l.limits.Acquire(ip); !ok {
			l.metrics.ConnectionsRejected.WithLabelValues(string(reason)).Inc()
			slog.Warn("Connection rejected", "remote_addr", remote, "reason", reason)
			_ = conn.Close()
			return
		}
	}

	id := domain.ConnectionID(l.nextID.Add(1) - 1)
	connCtx := correlation.WithConnection(ctx, id)

	if err := l.registry.Insert(id, conn); err != nil {
		l.release(ip)
		l.metrics.ConnectionsRejected.WithLabelValues(rejectReasonRegistryClosed).Inc()
		slog.WarnContext(connCtx, "Failed to register connection", "remote_addr", remote, "error", err)
		_ = conn.Close()
		return
	}

	l.metrics.ConnectionsAccepted.Inc()
	l.metrics.ActiveConnections.Inc()
	slog.InfoContext(connCtx, "Connection accepted", "remote_addr", remote)

	l.readers.Add(1)
	go func() {
		defer l.readers.Done()
		defer l.release(ip)
		l.read(connCtx, id, conn)
	}()
}

func (l *Listener) release(ip string) {
	if l.limits != nil {
		l.limits.Release(ip)
	}
}

// Drain closes every registered connection and waits for all readers to deregister.
// Call it after Serve has returned.
func (l *Listener) Drain(ctx context.Context) error {
	closed := l.registry.CloseAll()
	slog.Info("Draining connections", "connections", closed)

	done := make(chan struct{})
	go func() {
		l.readers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain connections: %w", ctx.Err())
	}
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
