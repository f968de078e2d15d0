package analytics

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"learnsync/core"
	"learnsync/engine"
)

// StreamEvent is the flattened delivery record pushed to dashboard
// subscribers in real time.
type StreamEvent struct {
	Kind      core.EventKind `json:"kind"`
	TenantID  core.TenantID  `json:"tenant_id"`
	UserID    core.UserID    `json:"user_id,omitempty"`
	Priority  core.Priority  `json:"priority"`
	Delivered int            `json:"delivered"`
	Offline   bool           `json:"offline"`
	Timestamp time.Time      `json:"timestamp"`
}

// StreamSubscriber represents a subscriber to real-time analytics events
type StreamSubscriber interface {
	OnStreamEvent(event *StreamEvent)
	Close() error
}

// StreamPublisher manages real-time analytics streaming
type StreamPublisher struct {
	mu          sync.RWMutex
	subscribers map[string]StreamSubscriber
	metrics     *Metrics
}

func NewStreamPublisher(metrics *Metrics) *StreamPublisher {
	return &StreamPublisher{
		subscribers: make(map[string]StreamSubscriber),
		metrics:     metrics,
	}
}

// Subscribe adds a subscriber to receive real-time events
func (sp *StreamPublisher) Subscribe(id string, subscriber StreamSubscriber) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.subscribers[id] = subscriber
}

// Unsubscribe removes a subscriber
func (sp *StreamPublisher) Unsubscribe(id string) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if subscriber, exists := sp.subscribers[id]; exists {
		_ = subscriber.Close()
		delete(sp.subscribers, id)
	}
}

// PublishEvent publishes an event to all subscribers
func (sp *StreamPublisher) PublishEvent(event *StreamEvent) {
	sp.mu.RLock()
	subscribers := make([]StreamSubscriber, 0, len(sp.subscribers))
	for _, subscriber := range sp.subscribers {
		subscribers = append(subscribers, subscriber)
	}
	sp.mu.RUnlock()

	for _, subscriber := range subscribers {
		func(sub StreamSubscriber) {
			defer func() {
				if r := recover(); r != nil {
					// swallow subscriber panic to keep publisher alive
				}
			}()
			sub.OnStreamEvent(event)
		}(subscriber)
	}
}

// OnDelivery processes broadcast outcomes and publishes them as stream events
func (sp *StreamPublisher) OnDelivery(d engine.Delivery) {
	// First, let the metrics system process the delivery
	sp.metrics.OnDelivery(d)

	sp.PublishEvent(convertToStreamEvent(d))
}

func convertToStreamEvent(d engine.Delivery) *StreamEvent {
	return &StreamEvent{
		Kind:      d.Event.Kind,
		TenantID:  d.Event.TenantID,
		UserID:    d.Event.UserID,
		Priority:  d.Event.Priority,
		Delivered: len(d.Targets),
		Offline:   len(d.Targets) == 0,
		Timestamp: d.Event.CreatedAt,
	}
}

// GetRealtimeStats returns current real-time statistics
func (sp *StreamPublisher) GetRealtimeStats() map[string]interface{} {
	events, delivered, offline := sp.metrics.GetRealtimeStats()

	sp.mu.RLock()
	subscribers := len(sp.subscribers)
	sp.mu.RUnlock()

	return map[string]interface{}{
		"events_24h":         events,
		"deliveries_24h":     delivered,
		"offline_events_24h": offline,
		"active_subscribers": subscribers,
		"timestamp":          time.Now(),
	}
}

// ChannelSubscriber streams events over a buffered channel, for bridging to
// an admin dashboard's live feed.
type ChannelSubscriber struct {
	id        string
	sendChan  chan *StreamEvent
	closeChan chan struct{}
}

func NewChannelSubscriber(id string, bufferSize int) *ChannelSubscriber {
	return &ChannelSubscriber{
		id:        id,
		sendChan:  make(chan *StreamEvent, bufferSize),
		closeChan: make(chan struct{}),
	}
}

func (cs *ChannelSubscriber) OnStreamEvent(event *StreamEvent) {
	select {
	case cs.sendChan <- event:
		// Event sent successfully
	case <-cs.closeChan:
		// Subscriber is closing
	default:
		// Channel is full, drop the event
	}
}

// ReadEvent reads an event from the subscriber channel
func (cs *ChannelSubscriber) ReadEvent(ctx context.Context) (*StreamEvent, error) {
	select {
	case event := <-cs.sendChan:
		return event, nil
	case <-cs.closeChan:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (cs *ChannelSubscriber) Close() error {
	select {
	case <-cs.closeChan:
		// Already closed
	default:
		close(cs.closeChan)
	}
	return nil
}

// InMemorySubscriber stores events in memory for testing/debugging
type InMemorySubscriber struct {
	id     string
	events []*StreamEvent
	mu     sync.RWMutex
}

func NewInMemorySubscriber(id string) *InMemorySubscriber {
	return &InMemorySubscriber{
		id:     id,
		events: make([]*StreamEvent, 0),
	}
}

func (ims *InMemorySubscriber) OnStreamEvent(event *StreamEvent) {
	ims.mu.Lock()
	defer ims.mu.Unlock()
	ims.events = append(ims.events, event)
}

func (ims *InMemorySubscriber) GetEvents() []*StreamEvent {
	ims.mu.RLock()
	defer ims.mu.RUnlock()
	result := make([]*StreamEvent, len(ims.events))
	copy(result, ims.events)
	return result
}

func (ims *InMemorySubscriber) ClearEvents() {
	ims.mu.Lock()
	defer ims.mu.Unlock()
	ims.events = ims.events[:0]
}

func (ims *InMemorySubscriber) Close() error {
	return nil
}

// DashboardData represents data for live dashboards
type DashboardData struct {
	RealtimeStats map[string]interface{} `json:"realtime_stats"`
	TopTenants    map[string]interface{} `json:"top_tenants"`
	RecentEvents  []*StreamEvent         `json:"recent_events"`
	Timestamp     time.Time              `json:"timestamp"`
}

// DashboardManager manages dashboard data and updates
type DashboardManager struct {
	publisher    *StreamPublisher
	metrics      *Metrics
	recentEvents []*StreamEvent
	maxEvents    int
	mu           sync.RWMutex
}

// OnStreamEvent implements StreamSubscriber interface
func (dm *DashboardManager) OnStreamEvent(event *StreamEvent) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	dm.recentEvents = append(dm.recentEvents, event)
	if len(dm.recentEvents) > dm.maxEvents {
		dm.recentEvents = dm.recentEvents[1:] // Remove oldest
	}
}

// Close implements StreamSubscriber interface
func (dm *DashboardManager) Close() error {
	return nil
}

func NewDashboardManager(publisher *StreamPublisher, metrics *Metrics, maxEvents int) *DashboardManager {
	dm := &DashboardManager{
		publisher:    publisher,
		metrics:      metrics,
		recentEvents: make([]*StreamEvent, 0, maxEvents),
		maxEvents:    maxEvents,
	}

	// Subscribe to events to maintain recent events list
	publisher.Subscribe("dashboard", dm)

	return dm
}

// GetDashboardData returns current dashboard data
func (dm *DashboardManager) GetDashboardData() *DashboardData {
	dm.mu.RLock()
	recentEvents := make([]*StreamEvent, len(dm.recentEvents))
	copy(recentEvents, dm.recentEvents)
	dm.mu.RUnlock()

	return &DashboardData{
		RealtimeStats: dm.publisher.GetRealtimeStats(),
		TopTenants:    dm.metrics.GetTopTenants(10),
		RecentEvents:  recentEvents,
		Timestamp:     time.Now(),
	}
}

// GetDashboardDataJSON returns dashboard data as JSON
func (dm *DashboardManager) GetDashboardDataJSON() ([]byte, error) {
	data := dm.GetDashboardData()
	return json.Marshal(data)
}
