package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"learnsync/core"
)

// Escalator converts undelivered high-priority events into durable
// notifications so offline users catch up on next sync.
type Escalator struct {
	users         UserStore
	notifications NotificationStore
	logger        *slog.Logger
}

func NewEscalator(users UserStore, notifications NotificationStore, logger *slog.Logger) *Escalator {
	if users == nil || notifications == nil {
		panic("NewEscalator requires non-nil user and notification stores")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Escalator{users: users, notifications: notifications, logger: logger}
}

// Bind subscribes the escalator to every delivery on the bus.
func (e *Escalator) Bind(bus *EventBus) func() {
	return bus.SubscribeAll(func(ctx context.Context, d Delivery) {
		if _, err := e.Escalate(ctx, d.Event, d.Targets); err != nil {
			e.logger.Warn("escalation failed", "kind", d.Event.Kind, "tenant", d.Event.TenantID, "error", err)
		}
	})
}

// Escalate persists a notification for each tenant user the event did not
// reach over a live connection. Only high and urgent events escalate.
// Per-user store failures are logged and skipped; the error return covers
// failures that void the whole pass, like the tenant roster being unreadable.
// Returns the number of notifications created.
func (e *Escalator) Escalate(ctx context.Context, ev core.Event, delivered []core.Connection) (int, error) {
	if !ev.Priority.Escalates() {
		return 0, nil
	}

	reached := make(map[core.UserID]bool, len(delivered))
	for _, conn := range delivered {
		reached[conn.UserID] = true
	}

	var candidates []core.User
	if ev.TenantWide() {
		users, err := e.users.TenantUsers(ctx, ev.TenantID)
		if err != nil {
			return 0, fmt.Errorf("list tenant users: %w", err)
		}
		candidates = users
	} else {
		u, err := e.users.User(ctx, ev.UserID)
		if err != nil {
			return 0, fmt.Errorf("load user %s: %w", ev.UserID, err)
		}
		candidates = []core.User{u}
	}

	created := 0
	for _, u := range candidates {
		if !u.Active || u.TenantID != ev.TenantID || reached[u.ID] {
			continue
		}
		n := core.NewEscalatedNotification(uuid.NewString(), ev, u.ID)
		if err := e.notifications.CreateNotification(ctx, n); err != nil {
			e.logger.Warn("notification create failed", "user", u.ID, "kind", ev.Kind, "error", err)
			continue
		}
		created++
	}
	if created > 0 {
		e.logger.Info("event escalated to notifications",
			"kind", ev.Kind, "tenant", ev.TenantID, "priority", ev.Priority, "created", created)
	}
	return created, nil
}
