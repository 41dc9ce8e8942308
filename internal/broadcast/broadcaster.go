package broadcast

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/linecast/internal/adapter/metrics"
	"github.com/pscheid92/linecast/internal/domain"
)

const (
	DefaultPrefix       = "server> "
	DefaultWriteTimeout = 5 * time.Second
)

// Registry is the part of the connection registry a fan-out needs.
type Registry interface {
	Snapshot() []domain.Connection
	Remove(id domain.ConnectionID) bool
}

// Result describes one fan-out.
type Result struct {
	ID        uuid.UUID             `json:"id"`
	Attempted int                   `json:"attempted"`
	Delivered int                   `json:"delivered"`
	Failed    []domain.ConnectionID `json:"failed"`
	Evicted   []domain.ConnectionID `json:"evicted"`
}

type Broadcaster struct {
	registry     Registry
	metrics      *metrics.BroadcastMetrics
	clock        clockwork.Clock
	prefix       string
	writeTimeout time.Duration
	evict        bool

	// serializes fan-outs
	mu sync.Mutex
}

type Option func(*Broadcaster)

// WithPrefix replaces DefaultPrefix. An empty prefix keeps the default.
func WithPrefix(prefix string) Option {
	return func(b *Broadcaster) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// WithWriteTimeout bounds each per-destination write. Zero disables the deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(b *Broadcaster) {
		b.writeTimeout = d
	}
}

// WithEviction removes and closes a connection whose write failed.
func WithEviction(enabled bool) Option {
	return func(b *Broadcaster) {
		b.evict = enabled
	}
}

// NewBroadcaster creates a broadcaster over registry with DefaultPrefix and DefaultWriteTimeout
// unless overridden by opts.
func NewBroadcaster(registry Registry, m *metrics.BroadcastMetrics, clock clockwork.Clock, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		registry:     registry,
		metrics:      m,
		clock:        clock,
		prefix:       DefaultPrefix,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Prefix returns the marker prepended to every broadcast line.
func (b *Broadcaster) Prefix() string {
	return b.prefix
}

// Run reads operator lines from in and broadcasts each of them. It returns nil when ctx is
// cancelled or in reaches EOF, and a wrapped error when reading fails.
//
// The pump goroutine may stay blocked in Read after ctx is cancelled until in is closed.
func (b *Broadcaster) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		reader := bufio.NewReader(in)
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-lines:
			b.Broadcast(ctx, line)
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				slog.Warn("Operator input closed, no further broadcasts")
				return nil
			}
			return fmt.Errorf("read operator input: %w", err)
		}
	}
}

// Broadcast writes prefix+line to every connection in a registry snapshot. A missing
// trailing newline is added. Failed writes never stop delivery to the other connections.
func (b *Broadcaster) Broadcast(ctx context.Context, line string) Result {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	payload := []byte(b.prefix + line)

	b.mu.Lock()
	defer b.mu.Unlock()

	result := Result{ID: uuid.New()}
	start := b.clock.Now()

	conns := b.registry.Snapshot()
	result.Attempted = len(conns)

	errs := make([]error, len(conns))
	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = b.write(conn.Peer, payload)
		}()
	}
	wg.Wait()

	for i, conn := range conns {
		if errs[i] == nil {
			result.Delivered++
			continue
		}

		result.Failed = append(result.Failed, conn.ID)
		b.metrics.WriteErrors.Inc()
		slog.WarnContext(ctx, "Broadcast write failed", "broadcast_id", result.ID.String(), "connection_id", conn.ID, "error", errs[i])

		if b.evict && b.registry.Remove(conn.ID) {
			_ = conn.Peer.Close()
			result.Evicted = append(result.Evicted, conn.ID)
			b.metrics.Evictions.Inc()
			slog.InfoContext(ctx, "Evicted connection after write failure", "broadcast_id", result.ID.String(), "connection_id", conn.ID)
		}
	}

	b.metrics.MessagesTotal.Inc()
	b.metrics.FanoutRecipients.Observe(float64(result.Attempted))
	b.metrics.FanoutDuration.Observe(b.clock.Since(start).Seconds())

	slog.InfoContext(ctx, "Broadcast sent",
		"broadcast_id", result.ID.String(),
		"attempted", result.Attempted,
		"delivered", result.Delivered,
		"failed", len(result.Failed),
	)
	return result
}

func (b *Broadcaster) write(peer domain.Peer, payload []byte) error {
	if b.writeTimeout > 0 {
		if err := peer.SetWriteDeadline(time.Now().Add(b.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if _, err := peer.Write(payload); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}
