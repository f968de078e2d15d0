package replay

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"learnsync/core"
)

func eventAt(tenant string, seq int, at time.Time) core.Event {
	return core.Event{
		Kind:      core.KindSystemMessage,
		TenantID:  core.TenantID(tenant),
		Priority:  core.PriorityLow,
		Payload:   map[string]any{"seq": seq},
		CreatedAt: at,
	}
}

func TestAppendEvictsOldestFirst(t *testing.T) {
	buf := New(5)
	key := TenantKey("t1")
	base := time.Now().UTC()
	for i := 0; i < 8; i++ {
		buf.Append(key, eventAt("t1", i, base.Add(time.Duration(i)*time.Second)))
	}

	got := buf.Drain(key)
	if len(got) != 5 {
		t.Fatalf("want capacity-bounded 5 events, got %d", len(got))
	}
	for i, ev := range got {
		if ev.Payload["seq"] != 3+i {
			t.Fatalf("index %d: want seq %d, got %v (oldest-first order broken)", i, 3+i, ev.Payload["seq"])
		}
	}
}

func TestDrainSinceStrictlyLater(t *testing.T) {
	buf := New(10)
	key := TenantKey("t1")
	base := time.Now().UTC()
	for i := 0; i < 4; i++ {
		buf.Append(key, eventAt("t1", i, base.Add(time.Duration(i)*time.Second)))
	}

	got := buf.DrainSince(key, base.Add(time.Second))
	if len(got) != 2 {
		t.Fatalf("want 2 strictly-later events, got %d", len(got))
	}
	if got[0].Payload["seq"] != 2 || got[1].Payload["seq"] != 3 {
		t.Fatalf("unexpected window: %v", got)
	}
}

func TestDrainUnknownKey(t *testing.T) {
	buf := New(10)
	if got := buf.Drain(UserKey("nobody")); len(got) != 0 {
		t.Fatalf("unknown key should drain empty, got %d", len(got))
	}
}

func TestRecordKeysByScope(t *testing.T) {
	buf := New(10)
	base := time.Now().UTC()

	userScoped := core.Event{Kind: core.KindProgress, TenantID: "t1", UserID: "u1",
		Priority: core.PriorityMedium, CreatedAt: base}
	tenantWide := core.Event{Kind: core.KindTenantUpdate, TenantID: "t1",
		Priority: core.PriorityMedium, CreatedAt: base.Add(time.Second)}

	buf.Record(userScoped)
	buf.Record(tenantWide)

	if buf.Len(UserKey("u1")) != 1 {
		t.Fatal("user-scoped event should land under the user key")
	}
	if buf.Len(TenantKey("t1")) != 1 {
		t.Fatal("tenant-wide event should land under the tenant key")
	}
}

func TestCatchUpMergesAndSorts(t *testing.T) {
	buf := New(10)
	base := time.Now().UTC()

	buf.Append(TenantKey("t1"), eventAt("t1", 0, base))
	buf.Append(UserKey("u1"), eventAt("t1", 1, base.Add(1*time.Second)))
	buf.Append(TenantKey("t1"), eventAt("t1", 2, base.Add(2*time.Second)))
	buf.Append(UserKey("u1"), eventAt("t1", 3, base.Add(3*time.Second)))
	// Another user's buffer must not leak into the merge.
	buf.Append(UserKey("u2"), eventAt("t1", 99, base.Add(4*time.Second)))

	got := buf.CatchUp("u1", "t1", time.Time{})
	if len(got) != 4 {
		t.Fatalf("want 4 merged events, got %d", len(got))
	}
	for i, ev := range got {
		if ev.Payload["seq"] != i {
			t.Fatalf("merge not sorted by created_at: %v", got)
		}
	}

	since := base.Add(1 * time.Second)
	got = buf.CatchUp("u1", "t1", since)
	if len(got) != 2 || got[0].Payload["seq"] != 2 || got[1].Payload["seq"] != 3 {
		t.Fatalf("since filter broken: %v", got)
	}
}

func TestConcurrentAppendDrain(t *testing.T) {
	buf := New(50)
	var wg sync.WaitGroup
	base := time.Now().UTC()
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := TenantKey(core.TenantID(fmt.Sprintf("t%d", i%4)))
			for j := 0; j < 25; j++ {
				buf.Append(key, eventAt("t", j, base.Add(time.Duration(j)*time.Millisecond)))
				buf.Drain(key)
			}
		}(i)
	}
	wg.Wait()
	for i := 0; i < 4; i++ {
		key := TenantKey(core.TenantID(fmt.Sprintf("t%d", i)))
		if n := buf.Len(key); n > 50 {
			t.Fatalf("capacity exceeded for %s: %d", key, n)
		}
	}
}
