package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultReapInterval is how often the reaper sweeps the registry.
	DefaultReapInterval = 30 * time.Second
	// DefaultLivenessTimeout is the silence after which a connection is stale.
	DefaultLivenessTimeout = 5 * time.Minute
)

// Reaper periodically evicts stale connections from a Registry. It is owned by
// the process lifecycle: Start on init, Stop on shutdown. Tests drive a single
// sweep deterministically through Tick.
type Reaper struct {
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReaper creates a reaper over the given registry. Non-positive interval or
// timeout fall back to the defaults.
func NewReaper(reg *Registry, interval, timeout time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if timeout <= 0 {
		timeout = DefaultLivenessTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{registry: reg, interval: interval, timeout: timeout, logger: logger}
}

// Start launches the periodic sweep. Calling Start on a running reaper is a
// no-op.
func (r *Reaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx, r.done)
}

// Stop cancels the periodic sweep and waits for the loop to exit. Idempotent.
func (r *Reaper) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Reaper) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Time-box each sweep so a long tick is abandoned and retried
			// next interval instead of overlapping.
			tickCtx, cancel := context.WithTimeout(ctx, r.interval)
			r.Tick(tickCtx)
			cancel()
		}
	}
}

// Tick performs one sweep: every connection silent for longer than the timeout
// is evicted. Best-effort and self-healing; anything missed is caught by the
// next tick.
func (r *Reaper) Tick(ctx context.Context) int {
	select {
	case <-ctx.Done():
		return 0
	default:
	}
	evicted := r.registry.Reap(time.Now().UTC(), r.timeout)
	if len(evicted) > 0 {
		r.logger.Info("reaped stale connections", "count", len(evicted))
		for _, conn := range evicted {
			r.logger.Debug("evicted connection",
				"connection_id", conn.ID,
				"user_id", conn.UserID,
				"tenant_id", conn.TenantID,
				"last_liveness_at", conn.LastLivenessAt)
		}
	}
	return len(evicted)
}
