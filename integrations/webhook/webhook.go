// Package webhook mirrors broadcast deliveries to external HTTP endpoints so
// host-application services (audit trails, analytics pipelines) can observe
// the real-time stream without joining it.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"learnsync/core"
	"learnsync/engine"
)

// Sink posts broadcast deliveries to configured HTTP endpoints.
// It is synchronous for determinism; bind it to an async bus in production.
type Sink struct {
	client    *http.Client
	endpoints []string
	logger    *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithLogger sets the logger for failed posts.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: 2 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// payload is the wire shape posted to endpoints: the event plus how many live
// connections it reached.
type payload struct {
	Event     core.Event `json:"event"`
	Delivered int        `json:"delivered"`
}

// Bind subscribes the sink to every delivery on the bus.
func (s *Sink) Bind(bus *engine.EventBus) func() {
	return bus.SubscribeAll(func(ctx context.Context, d engine.Delivery) {
		s.OnDelivery(ctx, d)
	})
}

// OnDelivery posts the delivery JSON to all endpoints. Failures are logged
// and skipped; a dead endpoint never affects the others.
func (s *Sink) OnDelivery(ctx context.Context, d engine.Delivery) {
	if len(s.endpoints) == 0 {
		return
	}
	body, err := json.Marshal(payload{Event: d.Event, Delivered: len(d.Targets)})
	if err != nil {
		return
	}
	for _, ep := range s.endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep, bytes.NewReader(body))
		if err != nil {
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			s.logger.Warn("webhook post failed", "endpoint", ep, "error", err)
			continue
		}
		_ = resp.Body.Close()
	}
}
