package broadcast

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/linecast/internal/adapter/metrics"
	"github.com/pscheid92/linecast/internal/domain"
	"github.com/pscheid92/linecast/internal/registry"
)

type fakePeer struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	writeErr error
	closed   bool
}

func (p *fakePeer) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.buf.Write(b)
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) SetWriteDeadline(time.Time) error { return nil }

func (p *fakePeer) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50000}
}

func (p *fakePeer) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.String()
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func newTestBroadcaster(t *testing.T, opts ...Option) (*Broadcaster, *registry.Registry, *metrics.BroadcastMetrics) {
	t.Helper()
	reg := registry.New()
	m := metrics.NewBroadcastMetrics(prometheus.NewRegistry())
	return NewBroadcaster(reg, m, clockwork.NewRealClock(), opts...), reg, m
}

func addPeers(t *testing.T, reg *registry.Registry, n int) []*fakePeer {
	t.Helper()
	peers := make([]*fakePeer, n)
	for i := range peers {
		peers[i] = &fakePeer{}
		require.NoError(t, reg.Insert(domain.ConnectionID(i), peers[i]))
	}
	return peers
}

func TestBroadcast_DeliversPrefixedLineToEveryPeer(t *testing.T) {
	b, reg, m := newTestBroadcaster(t)
	peers := addPeers(t, reg, 3)

	result := b.Broadcast(context.Background(), "hello\n")

	for _, p := range peers {
		assert.Equal(t, "server> hello\n", p.String())
	}
	assert.Equal(t, 3, result.Attempted)
	assert.Equal(t, 3, result.Delivered)
	assert.Empty(t, result.Failed)
	assert.NotEqual(t, uuid.Nil, result.ID)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MessagesTotal))
}

func TestBroadcast_AppendsMissingNewline(t *testing.T) {
	b, reg, _ := newTestBroadcaster(t)
	peers := addPeers(t, reg, 1)

	b.Broadcast(context.Background(), "no newline")

	assert.Equal(t, "server> no newline\n", peers[0].String())
}

func TestBroadcast_CustomPrefix(t *testing.T) {
	b, reg, _ := newTestBroadcaster(t, WithPrefix("ops| "))
	peers := addPeers(t, reg, 1)

	b.Broadcast(context.Background(), "deploy\n")

	assert.Equal(t, "ops| deploy\n", peers[0].String())
	assert.Equal(t, "ops| ", b.Prefix())
}

func TestWithPrefix_EmptyKeepsDefault(t *testing.T) {
	b, _, _ := newTestBroadcaster(t, WithPrefix(""))
	assert.Equal(t, DefaultPrefix, b.Prefix())
}

func TestBroadcast_EmptyRegistry(t *testing.T) {
	b, _, m := newTestBroadcaster(t)

	result := b.Broadcast(context.Background(), "nobody\n")

	assert.Equal(t, 0, result.Attempted)
	assert.Equal(t, 0, result.Delivered)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MessagesTotal))
}

func TestBroadcast_FailedPeerDoesNotAbortFanout(t *testing.T) {
	b, reg, m := newTestBroadcaster(t)
	peers := addPeers(t, reg, 3)
	peers[1].writeErr = errors.New("broken pipe")

	result := b.Broadcast(context.Background(), "hello\n")

	assert.Equal(t, "server> hello\n", peers[0].String())
	assert.Equal(t, "server> hello\n", peers[2].String())
	assert.Equal(t, 2, result.Delivered)
	assert.Equal(t, []domain.ConnectionID{1}, result.Failed)
	assert.Empty(t, result.Evicted)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WriteErrors))

	// Without eviction the entry stays until its reader sees the disconnect
	_, ok := reg.Lookup(1)
	assert.True(t, ok)
	assert.False(t, peers[1].isClosed())
}

func TestBroadcast_EvictsFailedPeer(t *testing.T) {
	b, reg, m := newTestBroadcaster(t, WithEviction(true))
	peers := addPeers(t, reg, 2)
	peers[0].writeErr = errors.New("connection reset")

	result := b.Broadcast(context.Background(), "hello\n")

	assert.Equal(t, []domain.ConnectionID{0}, result.Evicted)
	assert.Equal(t, []domain.ConnectionID{1}, reg.IDs())
	assert.True(t, peers[0].isClosed())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Evictions))
}

func TestBroadcast_SlowPeerHitsWriteDeadline(t *testing.T) {
	b, reg, _ := newTestBroadcaster(t, WithWriteTimeout(50*time.Millisecond))
	fast := addPeers(t, reg, 1)[0]

	// Nobody reads the other end, so writes block until the deadline
	slow, other := net.Pipe()
	defer slow.Close()
	defer other.Close()
	require.NoError(t, reg.Insert(1, slow))

	start := time.Now()
	result := b.Broadcast(context.Background(), "hello\n")

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, "server> hello\n", fast.String())
	assert.Equal(t, []domain.ConnectionID{1}, result.Failed)
}

func TestBroadcast_ConcurrentCallsAreSerialized(t *testing.T) {
	b, reg, _ := newTestBroadcaster(t)
	peers := addPeers(t, reg, 3)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Broadcast(context.Background(), fmt.Sprintf("msg %d\n", i))
		}()
	}
	wg.Wait()

	first := peers[0].String()
	assert.Equal(t, 20, strings.Count(first, "\n"))
	for _, p := range peers[1:] {
		assert.Equal(t, first, p.String(), "all peers see broadcasts in the same order")
	}
}

func TestRun_BroadcastsEachLineUntilEOF(t *testing.T) {
	b, reg, _ := newTestBroadcaster(t)
	peers := addPeers(t, reg, 2)

	err := b.Run(context.Background(), strings.NewReader("one\ntwo\nthree"))

	require.NoError(t, err)
	for _, p := range peers {
		assert.Equal(t, "server> one\nserver> two\nserver> three\n", p.String())
	}
}

func TestRun_ReadErrorIsReturned(t *testing.T) {
	b, _, _ := newTestBroadcaster(t)
	boom := errors.New("boom")

	err := b.Run(context.Background(), iotest.ErrReader(boom))

	assert.ErrorIs(t, err, boom)
}

func TestRun_ReturnsOnCancel(t *testing.T) {
	b, _, _ := newTestBroadcaster(t)
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, pr) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
