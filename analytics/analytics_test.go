package analytics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"learnsync/core"
	"learnsync/engine"
)

func delivery(ev core.Event, targets int) engine.Delivery {
	d := engine.Delivery{Event: ev}
	for i := 0; i < targets; i++ {
		d.Targets = append(d.Targets, core.Connection{
			ID: core.ConnectionID(string(rune('a' + i))), UserID: "u1", TenantID: ev.TenantID,
			Platform: core.PlatformWeb,
		})
	}
	return d
}

func TestMetrics_OnDelivery(t *testing.T) {
	m := NewMetrics()
	day := time.Now().UTC().Format("2006-01-02")

	m.OnDelivery(delivery(core.NewProgressEvent("t1", "u1", nil), 2))
	m.OnDelivery(delivery(core.NewProgressEvent("t1", "u2", nil), 1))
	m.OnDelivery(delivery(core.NewAssignmentEvent("t1", "u1", nil), 0))
	m.OnDelivery(delivery(core.NewTenantUpdate("t2", nil), 0))

	if got := m.GetDailyActiveUsers(day); got != 2 {
		t.Fatalf("want 2 daily active users, got %d", got)
	}
	if got := m.GetEventsByDay(day); got != 4 {
		t.Fatalf("want 4 events, got %d", got)
	}
	if got := m.GetEventsByKind(core.KindProgress); got != 2 {
		t.Fatalf("want 2 progress events, got %d", got)
	}
	if got := m.GetEventsByTenant("t1"); got != 3 {
		t.Fatalf("want 3 events for t1, got %d", got)
	}
	if got := m.GetDeliveredByDay(day); got != 3 {
		t.Fatalf("want 3 deliveries, got %d", got)
	}
	if got := m.GetDeliveredByPlatform(core.PlatformWeb); got != 3 {
		t.Fatalf("want 3 web deliveries, got %d", got)
	}
	if got := m.GetOfflineByDay(day); got != 2 {
		t.Fatalf("want 2 offline events, got %d", got)
	}

	// Assignment is high priority, so the offline one counts as escalated;
	// the tenant update is medium and does not.
	if got := m.GetEscalatedByDay(day); got != 1 {
		t.Fatalf("want 1 escalated event, got %d", got)
	}

	events, delivered, offline := m.GetRealtimeStats()
	if events != 4 || delivered != 3 || offline != 2 {
		t.Fatalf("realtime stats: events=%d delivered=%d offline=%d", events, delivered, offline)
	}
}

func TestMetricsTopTenants(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 3; i++ {
		m.OnDelivery(delivery(core.NewTenantUpdate("busy", nil), 0))
	}
	m.OnDelivery(delivery(core.NewTenantUpdate("quiet", nil), 0))

	top := m.GetTopTenants(1)
	ranked := top["top_tenants_by_events"].([]map[string]interface{})
	if len(ranked) != 1 || ranked[0]["tenant"] != core.TenantID("busy") {
		t.Fatalf("unexpected top tenants: %+v", ranked)
	}
	if top["total_events"].(int64) != 4 {
		t.Fatalf("want 4 total events, got %v", top["total_events"])
	}
}

func TestAggregationEngine(t *testing.T) {
	m := NewMetrics()
	ae := NewAggregationEngine(m, time.Hour)

	ae.OnDelivery(delivery(core.NewProgressEvent("t1", "u1", nil), 1))
	ae.OnDelivery(delivery(core.NewAssignmentEvent("t1", "u2", nil), 0))

	if err := ae.AggregateNow(); err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	day := time.Now().UTC().Format("2006-01-02")
	data, ok := ae.GetAggregatedData(PeriodDaily, day)
	if !ok {
		t.Fatal("missing daily aggregation")
	}
	if data.ActiveUsers != 2 || data.EventsBroadcast != 2 || data.LiveDeliveries != 1 ||
		data.OfflineEvents != 1 || data.EscalatedEvents != 1 {
		t.Fatalf("unexpected daily data: %+v", data)
	}
}

func TestAggregationEngineWeeklyMonthly(t *testing.T) {
	m := NewMetrics()
	ae := NewAggregationEngine(m, time.Hour)

	ae.OnDelivery(delivery(core.NewProgressEvent("t1", "u1", nil), 1))

	if err := ae.AggregateNow(); err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	now := time.Now().UTC()
	weekKey := getWeekKey(now)
	weekly, ok := ae.GetAggregatedData(PeriodWeekly, weekKey)
	if !ok || weekly.EventsBroadcast != 1 || weekly.ActiveUsers != 1 {
		t.Fatalf("unexpected weekly data: %+v ok=%v", weekly, ok)
	}

	monthly, ok := ae.GetAggregatedData(PeriodMonthly, getMonthKey(now))
	if !ok || monthly.EventsBroadcast != 1 || monthly.LiveDeliveries != 1 {
		t.Fatalf("unexpected monthly data: %+v ok=%v", monthly, ok)
	}

	if got := len(ae.GetAllAggregatedData(PeriodDaily)); got != 1 {
		t.Fatalf("want 1 daily aggregation, got %d", got)
	}
}

func TestStreamPublisher(t *testing.T) {
	m := NewMetrics()
	sp := NewStreamPublisher(m)

	sub := NewInMemorySubscriber("test")
	sp.Subscribe("test", sub)

	sp.OnDelivery(delivery(core.NewProgressEvent("t1", "u1", nil), 2))
	sp.OnDelivery(delivery(core.NewAssignmentEvent("t1", "u1", nil), 0))

	events := sub.GetEvents()
	if len(events) != 2 {
		t.Fatalf("want 2 stream events, got %d", len(events))
	}
	if events[0].Kind != core.KindProgress || events[0].Delivered != 2 || events[0].Offline {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if !events[1].Offline {
		t.Fatal("second event should be offline")
	}

	stats := sp.GetRealtimeStats()
	if stats["events_24h"].(int64) != 2 || stats["active_subscribers"].(int) != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	sp.Unsubscribe("test")
	sp.OnDelivery(delivery(core.NewTenantUpdate("t1", nil), 0))
	if len(sub.GetEvents()) != 2 {
		t.Fatal("unsubscribed subscriber must not receive")
	}
}

func TestChannelSubscriber(t *testing.T) {
	cs := NewChannelSubscriber("ch", 4)
	cs.OnStreamEvent(&StreamEvent{Kind: core.KindProgress})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := cs.ReadEvent(ctx)
	if err != nil || ev.Kind != core.KindProgress {
		t.Fatalf("read: %+v err=%v", ev, err)
	}

	_ = cs.Close()
	if _, err := cs.ReadEvent(ctx); err == nil {
		t.Fatal("closed subscriber should error")
	}
}

func TestHTTPExporterBatching(t *testing.T) {
	posts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts++
		if r.Header.Get("Authorization") != "Bearer k1" {
			t.Errorf("missing auth header")
		}
	}))
	defer srv.Close()

	e := NewHTTPExporter(srv.URL, "k1", 2)
	ctx := context.Background()

	if err := e.Export(ctx, &AggregatedData{Period: PeriodDaily, Key: "d1"}); err != nil {
		t.Fatalf("export: %v", err)
	}
	if posts != 0 {
		t.Fatal("should buffer below batch size")
	}
	if err := e.Export(ctx, &AggregatedData{Period: PeriodDaily, Key: "d2"}); err != nil {
		t.Fatalf("export: %v", err)
	}
	if posts != 1 {
		t.Fatalf("want 1 post after batch fill, got %d", posts)
	}

	if err := e.Export(ctx, &AggregatedData{Period: PeriodDaily, Key: "d3"}); err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if posts != 2 {
		t.Fatalf("close must flush the remainder, got %d posts", posts)
	}
}

func TestConsoleExporter(t *testing.T) {
	e := NewConsoleExporter("[TEST]")
	data := &AggregatedData{Period: PeriodDaily, Key: "2024-01-01", ActiveUsers: 3}
	if err := e.Export(context.Background(), data); err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := e.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestServiceBoundToBus(t *testing.T) {
	svc := NewService()

	bus := engine.NewEventBus(engine.DispatchSync)
	defer bus.Close()
	unbind := svc.Bind(bus)
	defer unbind()

	bus.Publish(context.Background(), delivery(core.NewProgressEvent("t1", "u1", nil), 1))
	bus.Publish(context.Background(), delivery(core.NewAssignmentEvent("t1", "u2", nil), 0))

	stats := svc.GetRealtimeStats()
	if stats["events_24h"].(int64) != 2 || stats["deliveries_24h"].(int64) != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if err := svc.ForceAggregation(); err != nil {
		t.Fatalf("aggregate: %v", err)
	}
}

func TestDashboardManager(t *testing.T) {
	m := NewMetrics()
	sp := NewStreamPublisher(m)
	dm := NewDashboardManager(sp, m, 2)

	for i := 0; i < 3; i++ {
		sp.OnDelivery(delivery(core.NewProgressEvent("t1", "u1", nil), 1))
	}

	data := dm.GetDashboardData()
	if len(data.RecentEvents) != 2 {
		t.Fatalf("recent events capped at 2, got %d", len(data.RecentEvents))
	}
	if data.RealtimeStats["events_24h"].(int64) != 3 {
		t.Fatalf("unexpected realtime stats: %+v", data.RealtimeStats)
	}

	raw, err := dm.GetDashboardDataJSON()
	if err != nil || len(raw) == 0 {
		t.Fatalf("dashboard JSON: %v", err)
	}
}

func BenchmarkMetricsOnDelivery(b *testing.B) {
	m := NewMetrics()
	d := delivery(core.NewProgressEvent("t1", "u1", nil), 3)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.OnDelivery(d)
	}
}

func BenchmarkStreamPublisher(b *testing.B) {
	sp := NewStreamPublisher(NewMetrics())
	sp.Subscribe("bench", NewInMemorySubscriber("bench"))
	d := delivery(core.NewProgressEvent("t1", "u1", nil), 1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sp.OnDelivery(d)
	}
}
