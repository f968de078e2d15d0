// Package registry tracks live client connections per tenant and reaps the
// stale ones. It is the single piece of shared mutable state in the engine:
// every operation is safe under concurrent attach/detach, reaping, and
// broadcast target lookup.
package registry

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"learnsync/core"
)

// ErrDuplicateConnection is returned when a connection id is already registered.
var ErrDuplicateConnection = errors.New("registry: duplicate connection id")

// Registry holds the process-wide set of live connections keyed by connection
// id. Connections are stored by value; reads hand out copies so iteration and
// delivery never happen under the lock.
type Registry struct {
	mu     sync.RWMutex
	conns  map[core.ConnectionID]core.Connection
	logger *slog.Logger
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:  make(map[core.ConnectionID]core.Connection),
		logger: logger,
	}
}

// Add registers a connection. A duplicate connection id is rejected: the
// existing entry is left untouched, the attempt is logged, and
// ErrDuplicateConnection is returned.
func (r *Registry) Add(conn core.Connection) error {
	if err := conn.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if conn.EstablishedAt.IsZero() {
		conn.EstablishedAt = now
	}
	if conn.LastLivenessAt.IsZero() {
		conn.LastLivenessAt = now
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conns[conn.ID]; exists {
		r.logger.Warn("rejected duplicate connection",
			"connection_id", conn.ID, "user_id", conn.UserID, "tenant_id", conn.TenantID)
		return ErrDuplicateConnection
	}
	r.conns[conn.ID] = conn
	return nil
}

// Remove deletes a connection. Idempotent: removing an unknown id is a no-op.
func (r *Registry) Remove(id core.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// Touch refreshes the liveness timestamp of a connection. Returns false when
// the connection is gone; a late ping racing the reaper is expected traffic.
func (r *Registry) Touch(id core.ConnectionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	if !ok {
		return false
	}
	conn.LastLivenessAt = time.Now().UTC()
	r.conns[id] = conn
	return true
}

// Get returns a copy of the connection, if registered.
func (r *Registry) Get(id core.ConnectionID) (core.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// FindTargets returns copies of every connection matching the event: same
// tenant, and the event's user when it is user-scoped. The returned slice is a
// stable snapshot; callers iterate and deliver without holding any lock.
func (r *Registry) FindTargets(ev core.Event) []core.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var targets []core.Connection
	for _, conn := range r.conns {
		if conn.Matches(ev) {
			targets = append(targets, conn)
		}
	}
	return targets
}

// Reap evicts every connection whose liveness timestamp is older than timeout
// relative to now, returning the evicted copies. No notification is sent to
// evicted clients: they are assumed already disconnected.
func (r *Registry) Reap(now time.Time, timeout time.Duration) []core.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted []core.Connection
	for id, conn := range r.conns {
		if now.Sub(conn.LastLivenessAt) > timeout {
			evicted = append(evicted, conn)
			delete(r.conns, id)
		}
	}
	return evicted
}

// Stats is an observability snapshot of the registry.
type Stats struct {
	Total      int                   `json:"total"`
	ByPlatform map[core.Platform]int `json:"by_platform"`
	Tenants    []core.TenantID       `json:"tenants"`
}

// StatsSnapshot counts connections by platform and lists the distinct tenants
// with at least one live connection.
func (r *Registry) StatsSnapshot() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := Stats{
		Total:      len(r.conns),
		ByPlatform: make(map[core.Platform]int),
	}
	seen := make(map[core.TenantID]struct{})
	for _, conn := range r.conns {
		stats.ByPlatform[conn.Platform]++
		if _, ok := seen[conn.TenantID]; !ok {
			seen[conn.TenantID] = struct{}{}
			stats.Tenants = append(stats.Tenants, conn.TenantID)
		}
	}
	sort.Slice(stats.Tenants, func(i, j int) bool { return stats.Tenants[i] < stats.Tenants[j] })
	return stats
}
