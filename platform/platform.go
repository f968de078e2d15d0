// Package platform assembles the real-time subsystem behind one builder with
// functional options: registry, reaper, broadcaster, replay buffer, escalator,
// live boards, and sync orchestrator.
package platform

import (
	"context"
	"log/slog"
	"time"

	"learnsync/adapters/memory"
	"learnsync/core"
	"learnsync/devicesync"
	"learnsync/engine"
	"learnsync/leaderboard"
	"learnsync/registry"
	"learnsync/replay"
)

// Option configures the platform builder.
type Option func(*config)

type config struct {
	users          engine.UserStore
	content        engine.ContentStore
	notifications  engine.NotificationStore
	transport      engine.Transport
	mode           engine.DispatchMode
	rules          []core.Rule
	logger         *slog.Logger
	bufferCapacity int
	reapInterval   time.Duration
	reapTimeout    time.Duration
}

// WithUserStore sets the tenant/user read adapter.
func WithUserStore(s engine.UserStore) Option { return func(c *config) { c.users = s } }

// WithContentStore sets the module/progress read adapter.
func WithContentStore(s engine.ContentStore) Option { return func(c *config) { c.content = s } }

// WithNotificationStore sets the durable notification adapter.
func WithNotificationStore(s engine.NotificationStore) Option {
	return func(c *config) { c.notifications = s }
}

// WithTransport sets the push delivery transport.
func WithTransport(t engine.Transport) Option { return func(c *config) { c.transport = t } }

// WithDispatchMode selects sync or async bus dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithRules replaces the broadcast rule set.
func WithRules(rules []core.Rule) Option { return func(c *config) { c.rules = rules } }

// WithLogger sets the structured logger for every component.
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// WithBufferCapacity sets the per-key replay window size.
func WithBufferCapacity(n int) Option { return func(c *config) { c.bufferCapacity = n } }

// WithReaperTimings overrides the reap interval and liveness timeout.
func WithReaperTimings(interval, timeout time.Duration) Option {
	return func(c *config) {
		c.reapInterval = interval
		c.reapTimeout = timeout
	}
}

// Platform is the assembled subsystem. Fields are exposed so HTTP handlers
// and host-application glue can reach the individual components.
type Platform struct {
	Registry     *registry.Registry
	Reaper       *registry.Reaper
	Buffer       *replay.Buffer
	Bus          *engine.EventBus
	Broadcaster  *engine.Broadcaster
	Escalator    *engine.Escalator
	Orchestrator *devicesync.Orchestrator
	Boards       *leaderboard.TenantBoards

	content engine.ContentStore
	logger  *slog.Logger
	unbinds []func()
}

// New builds a configured Platform. Defaults: shared in-memory stores, a
// no-op transport, async dispatch, and standard reaper timings. Production
// callers pass explicit stores and the websocket transport.
func New(opts ...Option) *Platform {
	cfg := &config{
		mode:         engine.DispatchAsync,
		rules:        engine.DefaultRules(),
		logger:       slog.Default(),
		reapInterval: registry.DefaultReapInterval,
		reapTimeout:  registry.DefaultLivenessTimeout,
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.users == nil || cfg.content == nil || cfg.notifications == nil {
		fallback := memory.New()
		if cfg.users == nil {
			cfg.users = fallback
		}
		if cfg.content == nil {
			cfg.content = fallback
		}
		if cfg.notifications == nil {
			cfg.notifications = fallback
		}
	}
	if cfg.transport == nil {
		cfg.transport = engine.TransportFunc(func(context.Context, core.Connection, core.Event) error {
			return nil
		})
	}

	reg := registry.New(cfg.logger)
	buf := replay.New(cfg.bufferCapacity)
	bus := engine.NewEventBus(cfg.mode)
	bus.SetLogger(cfg.logger)
	broadcaster := engine.NewBroadcaster(reg, buf, cfg.transport, bus, cfg.logger)
	broadcaster.SetRules(cfg.rules)
	escalator := engine.NewEscalator(cfg.users, cfg.notifications, cfg.logger)

	p := &Platform{
		Registry:     reg,
		Reaper:       registry.NewReaper(reg, cfg.reapInterval, cfg.reapTimeout, cfg.logger),
		Buffer:       buf,
		Bus:          bus,
		Broadcaster:  broadcaster,
		Escalator:    escalator,
		Orchestrator: devicesync.New(cfg.users, cfg.content, cfg.notifications, cfg.logger),
		Boards:       leaderboard.NewTenantBoards(),
		content:      cfg.content,
		logger:       cfg.logger,
	}
	p.unbinds = append(p.unbinds, escalator.Bind(bus))
	p.unbinds = append(p.unbinds, bus.Subscribe(core.KindProgress, p.applyProgress))
	return p
}

// applyProgress keeps the live tenant boards current as progress events flow.
func (p *Platform) applyProgress(ctx context.Context, d engine.Delivery) {
	ev := d.Event
	if ev.UserID == "" {
		return
	}
	progress, err := p.content.UserProgress(ctx, ev.UserID)
	if err != nil {
		p.logger.Warn("live board update skipped", "user", ev.UserID, "error", err)
		return
	}
	p.Boards.Apply(ev.TenantID, progress)
}

// Broadcast is the main entry point for domain-action handlers.
func (p *Platform) Broadcast(ctx context.Context, ev core.Event) (int, error) {
	return p.Broadcaster.Broadcast(ctx, ev)
}

// Start launches the background reaper.
func (p *Platform) Start() {
	p.Reaper.Start()
}

// Close stops the reaper, unbinds bus consumers, and shuts the bus down.
func (p *Platform) Close() {
	p.Reaper.Stop()
	for _, unbind := range p.unbinds {
		unbind()
	}
	p.Bus.Close()
}
