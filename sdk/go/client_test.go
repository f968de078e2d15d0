package sdk

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"learnsync/adapters/memory"
	wsadapter "learnsync/adapters/websocket"
	"learnsync/api/httpapi"
	"learnsync/core"
	"learnsync/engine"
	"learnsync/platform"
)

// newTestServer stands up the real API surface so the SDK is tested against
// the actual wire contract, not a hand-rolled fake.
func newTestServer(t *testing.T, opts httpapi.Options) (*httptest.Server, *platform.Platform) {
	t.Helper()
	store := memory.New()
	store.PutTenant(core.Tenant{ID: "t1", Code: "ACME", Name: "Acme", Active: true})
	store.PutUser(core.User{ID: "u1", TenantID: "t1", Name: "Alice", Email: "alice@acme.test", Active: true})
	store.PutUser(core.User{ID: "u2", TenantID: "t1", Name: "Bob", Email: "bob@acme.test", Active: true})
	store.PutProgress(core.UserProgress{UserID: "u1", CompletedModules: 3, AverageScore: 80})

	transport := wsadapter.NewTransport(nil)
	p := platform.New(
		platform.WithUserStore(store),
		platform.WithContentStore(store),
		platform.WithNotificationStore(store),
		platform.WithTransport(transport),
		platform.WithDispatchMode(engine.DispatchSync),
	)
	t.Cleanup(p.Close)

	ws := wsadapter.Handler(wsadapter.Options{
		Registry:  p.Registry,
		Buffer:    p.Buffer,
		Transport: transport,
	})
	srv := httptest.NewServer(httpapi.NewMux(p, ws, opts))
	t.Cleanup(srv.Close)
	return srv, p
}

func TestClient_AuthenticateAndBundle(t *testing.T) {
	srv, _ := newTestServer(t, httpapi.Options{})
	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	res, err := client.Authenticate(ctx, "ACME", "alice@acme.test")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !res.OK || res.User.ID != "u1" || res.Tenant.ID != "t1" {
		t.Fatalf("unexpected auth result: %+v", res)
	}

	rejected, err := client.Authenticate(ctx, "NOPE", "alice@acme.test")
	if err != nil {
		t.Fatalf("rejected auth should not error: %v", err)
	}
	if rejected.OK || rejected.Reason != "tenant not found" {
		t.Fatalf("unexpected rejection: %+v", rejected)
	}

	bundle, err := client.SyncBundle(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("sync bundle: %v", err)
	}
	if bundle.User.ID != "u1" || len(bundle.Leaderboard) != 2 {
		t.Fatalf("unexpected bundle: %+v", bundle)
	}

	if _, err := client.SyncBundle(ctx, "ghost", "t1"); err == nil {
		t.Fatal("unknown user should error")
	}
	if _, err := client.SyncBundle(ctx, "", "t1"); err != ErrEmptyUserID {
		t.Fatalf("want ErrEmptyUserID, got %v", err)
	}
}

func TestClient_PublishReplayLeaderboard(t *testing.T) {
	srv, _ := newTestServer(t, httpapi.Options{})
	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	delivered, err := client.PublishEvent(ctx, core.NewProgressEvent("t1", "u1", nil))
	if err != nil || delivered != 0 {
		t.Fatalf("publish got delivered=%d err=%v", delivered, err)
	}

	events, err := client.Replay(ctx, "u1", "t1", time.Time{})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(events) != 1 || events[0].Kind != core.KindProgress {
		t.Fatalf("unexpected replay: %+v", events)
	}

	future, err := client.Replay(ctx, "u1", "t1", time.Now().UTC().Add(time.Hour))
	if err != nil || len(future) != 0 {
		t.Fatalf("future since should filter everything: %+v err=%v", future, err)
	}

	// The progress broadcast refreshed the live board.
	entries, err := client.Leaderboard(ctx, "t1", 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 1 || entries[0].UserID != "u1" || entries[0].Rank != 1 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestClient_StatsAndHealth(t *testing.T) {
	srv, p := newTestServer(t, httpapi.Options{})
	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	now := time.Now().UTC()
	if err := p.Registry.Add(core.Connection{
		ID: "c1", UserID: "u1", TenantID: "t1", Platform: core.PlatformWeb,
		EstablishedAt: now, LastLivenessAt: now,
	}); err != nil {
		t.Fatalf("seed connection: %v", err)
	}

	stats, err := client.RegistryStats(ctx)
	if err != nil || stats.Total != 1 || stats.ByPlatform["web"] != 1 {
		t.Fatalf("stats: %+v err=%v", stats, err)
	}

	health, err := client.Health(ctx)
	if err != nil || health.Status != "healthy" || health.Connections != 1 {
		t.Fatalf("health: %+v err=%v", health, err)
	}
}

func TestClient_APIKeyHeader(t *testing.T) {
	srv, _ := newTestServer(t, httpapi.Options{APIKeys: []string{"sekrit"}})

	noKey, _ := NewClient(srv.URL)
	if _, err := noKey.Health(context.Background()); err == nil {
		t.Fatal("missing key should error")
	}

	withKey, _ := NewClient(srv.URL, WithAPIKey("sekrit"))
	if _, err := withKey.Health(context.Background()); err != nil {
		t.Fatalf("keyed client should pass: %v", err)
	}
}

func TestClient_StreamEvents(t *testing.T) {
	srv, _ := newTestServer(t, httpapi.Options{})
	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	events, err := client.StreamEvents(ctx, "u1", "t1", core.PlatformWeb, time.Time{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	// Wait for the attach to land before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for {
		stats, err := client.RegistryStats(ctx)
		if err == nil && stats.Total == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("connection never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := client.PublishEvent(ctx, core.NewAssignmentEvent("t1", "u1", nil)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case evt := <-events:
		if evt.Kind != core.KindAssignment {
			t.Fatalf("unexpected event kind: %s", evt.Kind)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}
