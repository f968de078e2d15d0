package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"learnsync/core"
	"learnsync/registry"
	"learnsync/replay"
)

type captureTransport struct {
	mu        sync.Mutex
	delivered map[core.ConnectionID][]core.Event
	failing   map[core.ConnectionID]bool
}

func newCaptureTransport() *captureTransport {
	return &captureTransport{
		delivered: make(map[core.ConnectionID][]core.Event),
		failing:   make(map[core.ConnectionID]bool),
	}
}

func (c *captureTransport) Deliver(_ context.Context, conn core.Connection, ev core.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing[conn.ID] {
		return errors.New("client gone")
	}
	c.delivered[conn.ID] = append(c.delivered[conn.ID], ev)
	return nil
}

func (c *captureTransport) events(id core.ConnectionID) []core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delivered[id]
}

func conn(id core.ConnectionID, user core.UserID, tenant core.TenantID) core.Connection {
	now := time.Now().UTC()
	return core.Connection{
		ID: id, UserID: user, TenantID: tenant,
		Platform: core.PlatformWeb, EstablishedAt: now, LastLivenessAt: now,
	}
}

func TestBroadcastUserScoped(t *testing.T) {
	reg := registry.New(nil)
	if err := reg.Add(conn("c1", "u1", "t1")); err != nil {
		t.Fatal(err)
	}
	if err := reg.Add(conn("c2", "u2", "t1")); err != nil {
		t.Fatal(err)
	}

	transport := newCaptureTransport()
	bus := NewEventBus(DispatchSync)
	defer bus.Close()
	b := NewBroadcaster(reg, replay.New(0), transport, bus, nil)

	n, err := b.Broadcast(context.Background(), core.NewProgressEvent("t1", "u1", nil))
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1 delivery, got %d", n)
	}
	if len(transport.events("c1")) != 1 || len(transport.events("c2")) != 0 {
		t.Fatal("user-scoped event leaked to another user")
	}
}

func TestBroadcastTenantWideSkipsFailedConnections(t *testing.T) {
	reg := registry.New(nil)
	for _, c := range []core.Connection{
		conn("c1", "u1", "t1"), conn("c2", "u2", "t1"), conn("c3", "u3", "t2"),
	} {
		if err := reg.Add(c); err != nil {
			t.Fatal(err)
		}
	}

	transport := newCaptureTransport()
	transport.failing["c2"] = true
	bus := NewEventBus(DispatchSync)
	defer bus.Close()

	var published Delivery
	bus.Subscribe(core.KindAssignment, func(_ context.Context, d Delivery) { published = d })

	b := NewBroadcaster(reg, replay.New(0), transport, bus, nil)
	n, err := b.Broadcast(context.Background(), core.NewAssignmentEvent("t1", "", nil))
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if n != 1 {
		t.Fatalf("failed connection must be skipped, want 1 delivery, got %d", n)
	}
	if len(transport.events("c3")) != 0 {
		t.Fatal("event crossed the tenant boundary")
	}
	if len(published.Targets) != 1 || published.Targets[0].UserID != "u1" {
		t.Fatalf("published delivery must list only reached connections: %+v", published.Targets)
	}
}

func TestBroadcastRejectsInvalidEvent(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	defer bus.Close()
	b := NewBroadcaster(registry.New(nil), replay.New(0), newCaptureTransport(), bus, nil)

	if _, err := b.Broadcast(context.Background(), core.Event{Kind: "bogus", TenantID: "t1", Priority: core.PriorityLow}); err == nil {
		t.Fatal("invalid kind must be rejected")
	}
	if _, err := b.Broadcast(context.Background(), core.Event{Kind: core.KindProgress, Priority: core.PriorityLow}); err == nil {
		t.Fatal("empty tenant must be rejected")
	}
}

func TestBroadcastRecordsForReplay(t *testing.T) {
	buf := replay.New(0)
	bus := NewEventBus(DispatchSync)
	defer bus.Close()
	b := NewBroadcaster(registry.New(nil), buf, newCaptureTransport(), bus, nil)

	ev := core.NewSystemMessage("t1", "", core.PriorityLow, "maintenance tonight")
	if _, err := b.Broadcast(context.Background(), ev); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	replayed := buf.CatchUp("u1", "t1", time.Time{})
	if len(replayed) != 1 || replayed[0].Kind != core.KindSystemMessage {
		t.Fatalf("event missing from replay window: %+v", replayed)
	}
}

func TestBroadcastDerivesLeaderboardRefresh(t *testing.T) {
	reg := registry.New(nil)
	if err := reg.Add(conn("c1", "u1", "t1")); err != nil {
		t.Fatal(err)
	}

	transport := newCaptureTransport()
	bus := NewEventBus(DispatchSync)
	defer bus.Close()
	b := NewBroadcaster(reg, replay.New(0), transport, bus, nil)

	ev := core.NewProgressEvent("t1", "u1", map[string]any{"completed": true})
	if _, err := b.Broadcast(context.Background(), ev); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	got := transport.events("c1")
	if len(got) != 2 {
		t.Fatalf("want progress plus derived leaderboard refresh, got %+v", got)
	}
	if got[1].Kind != core.KindLeaderboardUpdate || !got[1].TenantWide() {
		t.Fatalf("derived event must be a tenant-wide leaderboard refresh: %+v", got[1])
	}
	if got[1].Priority != core.PriorityLow {
		t.Fatalf("leaderboard refresh must stay low priority: %+v", got[1])
	}
}
