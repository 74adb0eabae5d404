package proxy

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Registry tracks every live Connection so the API, CLI, and shutdown path
// can enumerate and act on them.
type Registry struct {
	mu     sync.RWMutex
	conns  map[uint64]*Connection
	nextID atomic.Uint64
	logger zerolog.Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[uint64]*Connection),
		logger: log.With().Str("component", "conn_registry").Logger(),
	}
}

// NextID hands out the session identifier for a freshly accepted client.
func (r *Registry) NextID() uint64 {
	return r.nextID.Add(1)
}

// Add registers a connection and hooks its teardown so it removes itself.
func (r *Registry) Add(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.id] = c
	c.onClose = r.remove
	r.logger.Debug().Uint64("conn_id", c.id).Int("total", len(r.conns)).Msg("connection added")
}

func (r *Registry) remove(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c.id)
	r.logger.Debug().Uint64("conn_id", c.id).Int("total", len(r.conns)).Msg("connection removed")
}

// Get returns the connection with the given id, or nil.
func (r *Registry) Get(id uint64) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[id]
}

// All returns a snapshot of the live connections.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Players returns the names of identified players, for status snapshots.
func (r *Registry) Players() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.conns))
	for _, c := range r.conns {
		if name := c.PlayerName(); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// FindByPlayer returns the connection of the named player, or nil.
func (r *Registry) FindByPlayer(name string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conns {
		if c.PlayerName() == name {
			return c
		}
	}
	return nil
}

// Broadcast sends a chat line to every live connection. Per-connection
// failures are logged and do not stop the sweep.
func (r *Registry) Broadcast(message string) {
	for _, c := range r.All() {
		if err := c.SendChat(message); err != nil {
			r.logger.Warn().Err(err).Uint64("conn_id", c.id).Msg("broadcast delivery failed")
		}
	}
}

// Shutdown gracefully closes every live connection with the given reason.
func (r *Registry) Shutdown(reason string) {
	for _, c := range r.All() {
		c.GracefulClose(reason)
	}
}
