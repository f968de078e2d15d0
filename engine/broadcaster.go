package engine

import (
	"context"
	"log/slog"

	"learnsync/core"
	"learnsync/registry"
	"learnsync/replay"
)

// Broadcaster fans an event out to every matching live connection, records it
// for replay, and publishes the resulting delivery on the bus.
type Broadcaster struct {
	registry  *registry.Registry
	buffer    *replay.Buffer
	transport Transport
	bus       *EventBus
	rules     []core.Rule
	logger    *slog.Logger
}

func NewBroadcaster(reg *registry.Registry, buf *replay.Buffer, transport Transport, bus *EventBus, logger *slog.Logger) *Broadcaster {
	if reg == nil || buf == nil || transport == nil || bus == nil {
		panic("NewBroadcaster requires non-nil registry, buffer, transport, and bus")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		registry:  reg,
		buffer:    buf,
		transport: transport,
		bus:       bus,
		rules:     DefaultRules(),
		logger:    logger,
	}
}

// DefaultRules returns the rule set applied to every broadcast.
func DefaultRules() []core.Rule {
	return []core.Rule{core.LeaderboardRefreshRule{}}
}

// SetRules replaces the broadcast rule set. Call before serving traffic.
func (b *Broadcaster) SetRules(rules []core.Rule) { b.rules = rules }

// Broadcast validates the event, buffers it for replay, and pushes it to every
// connection it matches. A failed push skips that connection, never the whole
// fan-out. Returns the number of connections delivered to.
func (b *Broadcaster) Broadcast(ctx context.Context, ev core.Event) (int, error) {
	if err := ev.Validate(); err != nil {
		return 0, err
	}
	b.buffer.Record(ev)

	targets := b.registry.FindTargets(ev)
	delivered := make([]core.Connection, 0, len(targets))
	for _, conn := range targets {
		if err := b.transport.Deliver(ctx, conn, ev); err != nil {
			b.logger.Warn("event delivery failed",
				"connection", conn.ID, "user", conn.UserID, "kind", ev.Kind, "error", err)
			continue
		}
		delivered = append(delivered, conn)
	}

	b.logger.Debug("event broadcast",
		"kind", ev.Kind, "tenant", ev.TenantID, "targets", len(targets), "delivered", len(delivered))
	b.bus.Publish(ctx, Delivery{Event: ev, Targets: delivered})

	for _, r := range b.rules {
		for _, derived := range r.Evaluate(ctx, ev) {
			if _, err := b.Broadcast(ctx, derived); err != nil {
				b.logger.Warn("derived event broadcast failed", "kind", derived.Kind, "error", err)
			}
		}
	}
	return len(delivered), nil
}
