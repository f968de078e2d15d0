// Package analytics aggregates delivery KPIs from the broadcast stream:
// active learners, event volume per tenant and kind, fan-out reach, and
// offline rates. It observes deliveries off the critical path and never
// blocks a broadcast.
package analytics

import (
	"fmt"
	"sync"
	"time"

	"learnsync/core"
	"learnsync/engine"
)

// Hook receives broadcast deliveries for KPI aggregation.
type Hook interface {
	OnDelivery(d engine.Delivery)
}

// Metrics provides comprehensive delivery analytics tracking
type Metrics struct {
	mu sync.RWMutex

	// User engagement (from event subjects)
	dailyActiveUsers   map[string]map[core.UserID]struct{}
	weeklyActiveUsers  map[string]map[core.UserID]struct{}
	monthlyActiveUsers map[string]map[core.UserID]struct{}

	// Event volume
	eventsByDay    map[string]int64
	eventsByKind   map[core.EventKind]int64
	eventsByTenant map[core.TenantID]int64

	// Delivery reach
	deliveredByDay      map[string]int64
	deliveredByPlatform map[core.Platform]int64

	// Events that reached no live connection
	offlineByDay map[string]int64

	// High/urgent events that reached nobody and became escalation work
	escalatedByDay map[string]int64

	// Real-time counters (last 24 hours)
	realtimeCounters struct {
		events    int64
		delivered int64
		offline   int64
		lastReset time.Time
	}
}

func NewMetrics() *Metrics {
	now := time.Now()
	return &Metrics{
		dailyActiveUsers:    make(map[string]map[core.UserID]struct{}),
		weeklyActiveUsers:   make(map[string]map[core.UserID]struct{}),
		monthlyActiveUsers:  make(map[string]map[core.UserID]struct{}),
		eventsByDay:         make(map[string]int64),
		eventsByKind:        make(map[core.EventKind]int64),
		eventsByTenant:      make(map[core.TenantID]int64),
		deliveredByDay:      make(map[string]int64),
		deliveredByPlatform: make(map[core.Platform]int64),
		offlineByDay:        make(map[string]int64),
		escalatedByDay:      make(map[string]int64),
		realtimeCounters: struct {
			events    int64
			delivered int64
			offline   int64
			lastReset time.Time
		}{lastReset: now},
	}
}

// OnDelivery folds one broadcast outcome into every rollup.
func (m *Metrics) OnDelivery(d engine.Delivery) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := d.Event
	day := e.CreatedAt.UTC().Format("2006-01-02")
	week := getWeekKey(e.CreatedAt)
	month := getMonthKey(e.CreatedAt)

	// A user-scoped event marks that learner active for the period.
	if e.UserID != "" {
		m.trackUserEngagement(e.UserID, day, week, month)
	}

	m.eventsByDay[day]++
	m.eventsByKind[e.Kind]++
	m.eventsByTenant[e.TenantID]++
	m.realtimeCounters.events++

	reach := int64(len(d.Targets))
	m.deliveredByDay[day] += reach
	m.realtimeCounters.delivered += reach
	for _, conn := range d.Targets {
		m.deliveredByPlatform[conn.Platform]++
	}

	if reach == 0 {
		m.offlineByDay[day]++
		m.realtimeCounters.offline++
		if e.Priority.Escalates() {
			m.escalatedByDay[day]++
		}
	}

	// Reset realtime counters if needed (every 24 hours)
	if time.Since(m.realtimeCounters.lastReset) > 24*time.Hour {
		m.realtimeCounters.events = 0
		m.realtimeCounters.delivered = 0
		m.realtimeCounters.offline = 0
		m.realtimeCounters.lastReset = time.Now()
	}
}

func (m *Metrics) trackUserEngagement(userID core.UserID, day, week, month string) {
	if m.dailyActiveUsers[day] == nil {
		m.dailyActiveUsers[day] = make(map[core.UserID]struct{})
	}
	m.dailyActiveUsers[day][userID] = struct{}{}

	if m.weeklyActiveUsers[week] == nil {
		m.weeklyActiveUsers[week] = make(map[core.UserID]struct{})
	}
	m.weeklyActiveUsers[week][userID] = struct{}{}

	if m.monthlyActiveUsers[month] == nil {
		m.monthlyActiveUsers[month] = make(map[core.UserID]struct{})
	}
	m.monthlyActiveUsers[month][userID] = struct{}{}
}

// GetDailyActiveUsers returns the count of daily active users for a specific day
func (m *Metrics) GetDailyActiveUsers(day string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.dailyActiveUsers[day])
}

// GetWeeklyActiveUsers returns the count of weekly active users for a specific week
func (m *Metrics) GetWeeklyActiveUsers(week string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.weeklyActiveUsers[week])
}

// GetMonthlyActiveUsers returns the count of monthly active users for a specific month
func (m *Metrics) GetMonthlyActiveUsers(month string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.monthlyActiveUsers[month])
}

// GetEventsByDay returns total events broadcast on a specific day
func (m *Metrics) GetEventsByDay(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.eventsByDay[day]
}

// GetEventsByKind returns total events broadcast of a specific kind
func (m *Metrics) GetEventsByKind(kind core.EventKind) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.eventsByKind[kind]
}

// GetEventsByTenant returns total events broadcast for a specific tenant
func (m *Metrics) GetEventsByTenant(tenant core.TenantID) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.eventsByTenant[tenant]
}

// GetDeliveredByDay returns total live deliveries on a specific day
func (m *Metrics) GetDeliveredByDay(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deliveredByDay[day]
}

// GetDeliveredByPlatform returns total live deliveries to a client platform
func (m *Metrics) GetDeliveredByPlatform(platform core.Platform) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deliveredByPlatform[platform]
}

// GetOfflineByDay returns events that reached no live connection on a day
func (m *Metrics) GetOfflineByDay(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.offlineByDay[day]
}

// GetEscalatedByDay returns high/urgent events that missed every live
// connection on a day and were handed to the notification escalator
func (m *Metrics) GetEscalatedByDay(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.escalatedByDay[day]
}

// GetRealtimeStats returns real-time statistics for the last 24 hours
func (m *Metrics) GetRealtimeStats() (events int64, delivered int64, offline int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.realtimeCounters.events,
		m.realtimeCounters.delivered,
		m.realtimeCounters.offline
}

// GetTopTenants returns the busiest tenants by event volume for reporting
func (m *Metrics) GetTopTenants(limit int) map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]interface{})

	top := make([]struct {
		tenant core.TenantID
		events int64
	}, 0, len(m.eventsByTenant))

	for tenant, events := range m.eventsByTenant {
		top = append(top, struct {
			tenant core.TenantID
			events int64
		}{tenant, events})
	}

	// Sort by volume (simple bubble sort for small datasets)
	for i := 0; i < len(top); i++ {
		for j := i + 1; j < len(top); j++ {
			if top[i].events < top[j].events {
				top[i], top[j] = top[j], top[i]
			}
		}
	}

	if len(top) > limit {
		top = top[:limit]
	}

	topData := make([]map[string]interface{}, len(top))
	for i, t := range top {
		topData[i] = map[string]interface{}{
			"tenant": t.tenant,
			"events": t.events,
		}
	}

	result["top_tenants_by_events"] = topData
	result["total_events"] = sumKindValues(m.eventsByKind)
	result["events_by_kind"] = copyKindMap(m.eventsByKind)

	return result
}

// Helper functions
func getWeekKey(t time.Time) string {
	tt := t.UTC()
	year, week := tt.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func getMonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func sumKindValues(m map[core.EventKind]int64) int64 {
	var total int64
	for _, v := range m {
		total += v
	}
	return total
}

func copyKindMap(m map[core.EventKind]int64) map[core.EventKind]int64 {
	out := make(map[core.EventKind]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
