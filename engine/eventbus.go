package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"learnsync/core"
)

type DispatchMode int

const (
	DispatchSync DispatchMode = iota
	DispatchAsync
)

// Delivery is the post-broadcast envelope: the event together with the
// connections it was actually pushed to. Off-path consumers (escalator,
// webhook sinks, live boards) subscribe to these so they never slow the
// fan-out itself.
type Delivery struct {
	Event   core.Event
	Targets []core.Connection
}

type subscription struct {
	id   int64
	kind core.EventKind
	fn   func(context.Context, Delivery)
}

// EventBus provides thread-safe pub/sub of broadcast deliveries with sync and
// async dispatch.
type EventBus struct {
	mode         DispatchMode
	mu           sync.RWMutex
	subs         map[core.EventKind]map[int64]subscription
	nextID       int64
	asyncQueue   chan Delivery
	asyncWorkers int
	ctx          context.Context
	cancel       context.CancelFunc
	logger       *slog.Logger
}

func NewEventBus(mode DispatchMode) *EventBus {
	ctx, cancel := context.WithCancel(context.Background())
	eb := &EventBus{
		mode:         mode,
		subs:         make(map[core.EventKind]map[int64]subscription),
		asyncQueue:   make(chan Delivery, 2048),
		asyncWorkers: 4,
		ctx:          ctx,
		cancel:       cancel,
		logger:       slog.Default(),
	}
	if mode == DispatchAsync {
		eb.startWorkers()
	}
	return eb
}

func (e *EventBus) startWorkers() {
	for i := 0; i < e.asyncWorkers; i++ {
		go func() {
			for {
				select {
				case d := <-e.asyncQueue:
					e.dispatchSync(context.Background(), d)
				case <-e.ctx.Done():
					return
				}
			}
		}()
	}
}

// Close stops async workers.
func (e *EventBus) Close() {
	e.cancel()
	// allow workers to drain briefly
	time.Sleep(10 * time.Millisecond)
}

// Subscribe registers a handler for one event kind. Returns unsubscribe func.
func (e *EventBus) Subscribe(kind core.EventKind, handler func(context.Context, Delivery)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	if e.subs[kind] == nil {
		e.subs[kind] = make(map[int64]subscription)
	}
	e.subs[kind][id] = subscription{id: id, kind: kind, fn: handler}
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if m := e.subs[kind]; m != nil {
			delete(m, id)
		}
	}
}

// SubscribeAll registers a handler for every event kind. Returns a single
// unsubscribe func covering all of them.
func (e *EventBus) SubscribeAll(handler func(context.Context, Delivery)) func() {
	kinds := core.Kinds()
	unsubs := make([]func(), 0, len(kinds))
	for _, k := range kinds {
		unsubs = append(unsubs, e.Subscribe(k, handler))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// SetLogger replaces the drop logger. Call before serving traffic.
func (e *EventBus) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// Publish sends a delivery to subscribers. In async mode a full queue drops
// low and medium deliveries to preserve broadcast latency; high and urgent
// deliveries wait for queue space instead, since the escalator rides this bus
// and those are exactly the events that must become durable notifications
// when nobody received them live.
func (e *EventBus) Publish(ctx context.Context, d Delivery) {
	if e.mode == DispatchAsync {
		select {
		case e.asyncQueue <- d:
		default:
			if d.Event.Priority.Escalates() {
				select {
				case e.asyncQueue <- d:
				case <-e.ctx.Done():
				}
				return
			}
			e.logger.Warn("async queue full, delivery dropped",
				"kind", d.Event.Kind, "tenant", d.Event.TenantID, "priority", d.Event.Priority)
		}
		return
	}
	e.dispatchSync(ctx, d)
}

func (e *EventBus) dispatchSync(ctx context.Context, d Delivery) {
	e.mu.RLock()
	subs := e.subs[d.Event.Kind]
	// copy to avoid holding lock during callbacks
	handlers := make([]func(context.Context, Delivery), 0, len(subs))
	for _, s := range subs {
		handlers = append(handlers, s.fn)
	}
	e.mu.RUnlock()
	for _, h := range handlers {
		h(ctx, d)
	}
}
