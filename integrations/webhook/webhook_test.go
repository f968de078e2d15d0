package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"learnsync/core"
	"learnsync/engine"
)

func TestOnDeliveryPostsToAllEndpoints(t *testing.T) {
	var mu sync.Mutex
	var bodies []payload

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("bad body: %v", err)
		}
		mu.Lock()
		bodies = append(bodies, p)
		mu.Unlock()
	})
	srv1 := httptest.NewServer(handler)
	defer srv1.Close()
	srv2 := httptest.NewServer(handler)
	defer srv2.Close()

	sink := New([]string{srv1.URL, srv2.URL})
	ev := core.NewAssignmentEvent("t1", "", nil)
	sink.OnDelivery(context.Background(), engine.Delivery{
		Event:   ev,
		Targets: []core.Connection{{ID: "c1", UserID: "u1", TenantID: "t1", Platform: core.PlatformWeb}},
	})

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 2 {
		t.Fatalf("want 2 posts, got %d", len(bodies))
	}
	for _, p := range bodies {
		if p.Event.Kind != core.KindAssignment || p.Delivered != 1 {
			t.Fatalf("unexpected payload: %+v", p)
		}
	}
}

func TestDeadEndpointDoesNotBlockOthers(t *testing.T) {
	var mu sync.Mutex
	received := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		received++
		mu.Unlock()
	}))
	defer srv.Close()

	sink := New([]string{"http://127.0.0.1:1/nope", srv.URL})
	sink.OnDelivery(context.Background(), engine.Delivery{Event: core.NewTenantUpdate("t1", nil)})

	mu.Lock()
	defer mu.Unlock()
	if received != 1 {
		t.Fatalf("live endpoint must still receive, got %d", received)
	}
}

func TestBindReceivesBroadcastDeliveries(t *testing.T) {
	var mu sync.Mutex
	var kinds []core.EventKind
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		mu.Lock()
		kinds = append(kinds, p.Event.Kind)
		mu.Unlock()
	}))
	defer srv.Close()

	bus := engine.NewEventBus(engine.DispatchSync)
	defer bus.Close()
	sink := New([]string{srv.URL})
	unbind := sink.Bind(bus)
	defer unbind()

	bus.Publish(context.Background(), engine.Delivery{Event: core.NewProgressEvent("t1", "u1", nil)})
	bus.Publish(context.Background(), engine.Delivery{Event: core.NewLeaderboardRefresh("t1")})

	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != 2 || kinds[0] != core.KindProgress || kinds[1] != core.KindLeaderboardUpdate {
		t.Fatalf("unexpected kinds: %v", kinds)
	}
}

func TestNoEndpointsIsNoop(t *testing.T) {
	sink := New(nil)
	sink.OnDelivery(context.Background(), engine.Delivery{Event: core.NewTenantUpdate("t1", nil)})
}
