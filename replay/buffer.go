// Package replay keeps a bounded, per-key history of recently broadcast
// events so reconnecting or late-joining clients can catch up. The buffer is
// memory-only and rebuilt empty on restart; durable notifications are the
// recovery path for high-priority events.
package replay

import (
	"sort"
	"sync"
	"time"

	"learnsync/core"
)

// DefaultCapacity is the retained window per key.
const DefaultCapacity = 100

// Key scopes a buffer to a user or a tenant.
type Key string

// UserKey scopes a buffer to a single user.
func UserKey(id core.UserID) Key { return Key("user:" + id) }

// TenantKey scopes a buffer to tenant-wide events.
func TenantKey(id core.TenantID) Key { return Key("tenant:" + id) }

// EventKey picks the buffer key an event is stored under: its user when
// user-scoped, otherwise its tenant. Tenant-wide events stored once under the
// tenant key are matched on read by every user of that tenant.
func EventKey(ev core.Event) Key {
	if ev.TenantWide() {
		return TenantKey(ev.TenantID)
	}
	return UserKey(ev.UserID)
}

// ring is a fixed-capacity insertion-ordered event window. Oldest evicted
// first. Each ring carries its own lock so keys never contend with each other.
type ring struct {
	mu    sync.Mutex
	buf   []core.Event
	start int
	count int
}

func (r *ring) append(ev core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = ev
		r.count++
		return
	}
	// Full: overwrite the oldest slot.
	r.buf[r.start] = ev
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) snapshot(since time.Time) []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if !since.IsZero() && !ev.CreatedAt.After(since) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Buffer is a sharded set of per-key rings.
type Buffer struct {
	capacity int
	mu       sync.RWMutex
	rings    map[Key]*ring
}

// New creates a buffer with the given per-key capacity (DefaultCapacity when
// non-positive).
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity, rings: make(map[Key]*ring)}
}

func (b *Buffer) getOrCreate(key Key) *ring {
	b.mu.RLock()
	r, ok := b.rings[key]
	b.mu.RUnlock()
	if ok {
		return r
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok = b.rings[key]; ok {
		return r
	}
	r = &ring{buf: make([]core.Event, b.capacity)}
	b.rings[key] = r
	return r
}

// Append records an event under the key, evicting the oldest entry when the
// window is full.
func (b *Buffer) Append(key Key, ev core.Event) {
	b.getOrCreate(key).append(ev)
}

// Record stores the event under its natural key (user or tenant).
func (b *Buffer) Record(ev core.Event) {
	b.Append(EventKey(ev), ev)
}

// Drain returns the full retained window for the key in insertion order.
func (b *Buffer) Drain(key Key) []core.Event {
	return b.DrainSince(key, time.Time{})
}

// DrainSince returns retained events strictly later than since, in insertion
// order. A zero since returns the whole window.
func (b *Buffer) DrainSince(key Key, since time.Time) []core.Event {
	b.mu.RLock()
	r, ok := b.rings[key]
	b.mu.RUnlock()
	if !ok {
		return nil
	}
	return r.snapshot(since)
}

// CatchUp merges the user-scoped and tenant-scoped windows for a connecting
// client, sorted by creation time. Pass a zero since for the full window.
func (b *Buffer) CatchUp(user core.UserID, tenant core.TenantID, since time.Time) []core.Event {
	events := b.DrainSince(UserKey(user), since)
	events = append(events, b.DrainSince(TenantKey(tenant), since)...)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events
}

// Len reports the retained event count for a key.
func (b *Buffer) Len(key Key) int {
	b.mu.RLock()
	r, ok := b.rings[key]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
