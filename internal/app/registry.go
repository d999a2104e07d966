package app

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
	"github.com/dkeye/callroom/internal/metrics"
)

type connEntry struct {
	conn   domain.Connection
	signal core.SignalConnection
}

// Registry maps live connections to identities and outbound channels.
// It is the source of truth for "is this connection still alive".
type Registry struct {
	mu      sync.RWMutex
	conns   map[domain.ConnectionID]*connEntry
	metrics *metrics.Metrics
}

func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		conns:   make(map[domain.ConnectionID]*connEntry),
		metrics: m,
	}
}

// Register creates an entry with no identity or room. Registering an id
// that is already present is a no-op and reports false.
func (r *Registry) Register(id domain.ConnectionID, client domain.ClientToken, sig core.SignalConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; ok {
		return false
	}
	r.conns[id] = &connEntry{
		conn:   domain.Connection{ID: id, Client: client},
		signal: sig,
	}
	r.metrics.ConnectionOpened()
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("registered connection")
	return true
}

func (r *Registry) BindIdentity(id domain.ConnectionID, identity domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return fmt.Errorf("bind identity: connection %s: %w", id, domain.ErrNotFound)
	}
	e.conn.Identity = identity
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("identity", string(identity)).Msg("bound identity")
	return nil
}

// SetRoom records the current room of a connection. An empty room clears it.
func (r *Registry) SetRoom(id domain.ConnectionID, room domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return fmt.Errorf("set room: connection %s: %w", id, domain.ErrNotFound)
	}
	e.conn.Room = room
	return nil
}

// Unregister is idempotent; it reports whether an entry was removed.
func (r *Registry) Unregister(id domain.ConnectionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return false
	}
	delete(r.conns, id)
	r.metrics.ConnectionClosed()
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("unregistered connection")
	return true
}

func (r *Registry) Lookup(id domain.ConnectionID) (domain.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return domain.Connection{}, fmt.Errorf("lookup: connection %s: %w", id, domain.ErrNotFound)
	}
	return e.conn, nil
}

// Signal returns the outbound channel of a live connection.
func (r *Registry) Signal(id domain.ConnectionID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.signal, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
