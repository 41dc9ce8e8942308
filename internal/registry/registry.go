package registry

import (
	"cmp"
	"slices"
	"sync"

	"github.com/pscheid92/linecast/internal/domain"
)

// Registry maps connection IDs to live peers.
type Registry struct {
	mu     sync.Mutex
	peers  map[domain.ConnectionID]domain.Peer
	closed bool
}

// New creates an empty, open registry.
func New() *Registry {
	return &Registry{
		peers: make(map[domain.ConnectionID]domain.Peer),
	}
}

// Insert registers peer under id. It fails if id is already present or the registry was closed.
func (r *Registry) Insert(id domain.ConnectionID, peer domain.Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return domain.ErrRegistryClosed
	}
	if _, ok := r.peers[id]; ok {
		return domain.ErrConnectionExists
	}
	r.peers[id] = peer
	return nil
}

// Remove deletes id and reports whether it was present.
func (r *Registry) Remove(id domain.ConnectionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[id]; !ok {
		return false
	}
	delete(r.peers, id)
	return true
}

// Lookup returns the peer registered under id.
func (r *Registry) Lookup(id domain.ConnectionID) (domain.Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peer, ok := r.peers[id]
	return peer, ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// Closed reports whether CloseAll has been called.
func (r *Registry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// IDs returns the registered IDs in ascending order.
func (r *Registry) IDs() []domain.ConnectionID {
	r.mu.Lock()
	ids := make([]domain.ConnectionID, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	slices.Sort(ids)
	return ids
}

// Snapshot copies the current entries, ordered by ID. The copy is consistent as of the moment
// the lock was taken; peers in it may close at any time afterwards.
func (r *Registry) Snapshot() []domain.Connection {
	r.mu.Lock()
	conns := make([]domain.Connection, 0, len(r.peers))
	for id, peer := range r.peers {
		conns = append(conns, domain.Connection{ID: id, Peer: peer})
	}
	r.mu.Unlock()

	slices.SortFunc(conns, func(a, b domain.Connection) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return conns
}

// CloseAll rejects further inserts and closes every registered peer.
// Returns the number of peers closed.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	r.closed = true
	peers := make([]domain.Peer, 0, len(r.peers))
	for _, peer := range r.peers {
		peers = append(peers, peer)
	}
	r.mu.Unlock()

	for _, peer := range peers {
		_ = peer.Close()
	}
	return len(peers)
}
