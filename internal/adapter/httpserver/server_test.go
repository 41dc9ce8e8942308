package httpserver

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/linecast/internal/broadcast"
	"github.com/pscheid92/linecast/internal/domain"
	"github.com/pscheid92/linecast/internal/platform/config"
	"github.com/pscheid92/linecast/internal/registry"
)

type stubPeer struct {
	addr string
}

func (p *stubPeer) Write(b []byte) (int, error)      { return len(b), nil }
func (p *stubPeer) Close() error                     { return nil }
func (p *stubPeer) SetWriteDeadline(time.Time) error { return nil }
func (p *stubPeer) RemoteAddr() net.Addr {
	addr, _ := net.ResolveTCPAddr("tcp", p.addr)
	return addr
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	lines []string
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, line string) broadcast.Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	return broadcast.Result{ID: uuid.New(), Attempted: 2, Delivered: 2}
}

func (b *recordingBroadcaster) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}

type testDeps struct {
	registry    *registry.Registry
	broadcaster *recordingBroadcaster
	clock       *clockwork.FakeClock
	config      *config.Config
	checks      []HealthCheck
}

func newTestServer(t *testing.T, opts ...func(*testDeps)) (*Server, *testDeps) {
	t.Helper()

	deps := &testDeps{
		registry:    registry.New(),
		broadcaster: &recordingBroadcaster{},
		clock:       clockwork.NewFakeClock(),
		config: &config.Config{
			AdminAddr:           "127.0.0.1:0",
			AdminBroadcastRate:  100,
			AdminBroadcastBurst: 100,
		},
	}
	for _, opt := range opts {
		opt(deps)
	}

	srv := NewServer(deps.config, deps.registry, deps.broadcaster, prometheus.NewRegistry(), deps.clock, deps.checks)
	return srv, deps
}

func withHealthChecks(checks ...HealthCheck) func(*testDeps) {
	return func(d *testDeps) {
		d.checks = checks
	}
}

func withPeers(t *testing.T, addrs ...string) func(*testDeps) {
	return func(d *testDeps) {
		for i, addr := range addrs {
			require.NoError(t, d.registry.Insert(domain.ConnectionID(i), &stubPeer{addr: addr}))
		}
	}
}

func doRequest(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.RemoteAddr = "1.2.3.4:1234"
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}
