package registry

import (
	"context"
	"testing"
	"time"

	"learnsync/core"
)

func TestTickEvictsOnlyStale(t *testing.T) {
	reg := New(nil)

	stale := testConn("stale", "u1", "t1", core.PlatformWeb)
	stale.LastLivenessAt = time.Now().UTC().Add(-10 * time.Minute)
	_ = reg.Add(stale)

	fresh := testConn("fresh", "u2", "t1", core.PlatformWeb)
	_ = reg.Add(fresh)

	reaper := NewReaper(reg, time.Second, 5*time.Minute, nil)
	evicted := reaper.Tick(context.Background())
	if evicted != 1 {
		t.Fatalf("want 1 eviction, got %d", evicted)
	}
	if _, ok := reg.Get("stale"); ok {
		t.Fatal("stale connection should be gone")
	}
	if _, ok := reg.Get("fresh"); !ok {
		t.Fatal("fresh connection must survive the sweep")
	}
}

func TestTickSelfHealing(t *testing.T) {
	reg := New(nil)
	reaper := NewReaper(reg, time.Second, 5*time.Minute, nil)

	if n := reaper.Tick(context.Background()); n != 0 {
		t.Fatalf("empty registry: want 0 evictions, got %d", n)
	}

	stale := testConn("c1", "u1", "t1", core.PlatformMobile)
	stale.LastLivenessAt = time.Now().UTC().Add(-time.Hour)
	_ = reg.Add(stale)

	// A second tick catches what appeared after the first.
	if n := reaper.Tick(context.Background()); n != 1 {
		t.Fatalf("want 1 eviction on next tick, got %d", n)
	}
}

func TestTickHonorsCancelledContext(t *testing.T) {
	reg := New(nil)
	stale := testConn("c1", "u1", "t1", core.PlatformWeb)
	stale.LastLivenessAt = time.Now().UTC().Add(-time.Hour)
	_ = reg.Add(stale)

	reaper := NewReaper(reg, time.Second, 5*time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if n := reaper.Tick(ctx); n != 0 {
		t.Fatalf("cancelled tick should skip work, evicted %d", n)
	}
	if _, ok := reg.Get("c1"); !ok {
		t.Fatal("skipped tick must leave registry untouched")
	}
}

func TestStartStop(t *testing.T) {
	reg := New(nil)
	stale := testConn("c1", "u1", "t1", core.PlatformWeb)
	stale.LastLivenessAt = time.Now().UTC().Add(-time.Hour)
	_ = reg.Add(stale)

	reaper := NewReaper(reg, 10*time.Millisecond, 5*time.Minute, nil)
	reaper.Start()
	reaper.Start() // second Start is a no-op

	deadline := time.Now().Add(2 * time.Second)
	for reg.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if reg.Len() != 0 {
		t.Fatal("running reaper never evicted the stale connection")
	}

	reaper.Stop()
	reaper.Stop() // idempotent
}

func TestNewReaperDefaults(t *testing.T) {
	reaper := NewReaper(New(nil), 0, 0, nil)
	if reaper.interval != DefaultReapInterval || reaper.timeout != DefaultLivenessTimeout {
		t.Fatalf("defaults not applied: %v %v", reaper.interval, reaper.timeout)
	}
}
