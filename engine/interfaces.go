package engine

import (
	"context"

	"learnsync/core"
)

// UserStore reads tenants and their users from the host application's
// persistence. Persistent storage itself is outside this subsystem.
type UserStore interface {
	TenantByCode(ctx context.Context, code string) (core.Tenant, error)
	Tenant(ctx context.Context, tenant core.TenantID) (core.Tenant, error)
	TenantUsers(ctx context.Context, tenant core.TenantID) ([]core.User, error)
	User(ctx context.Context, user core.UserID) (core.User, error)
}

// NotificationStore persists durable notifications and serves the pending set
// for a user's sync bundle.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n core.Notification) error
	PendingNotifications(ctx context.Context, user core.UserID) ([]core.Notification, error)
}

// ContentStore reads training modules and learner progress.
type ContentStore interface {
	ModulesForTenant(ctx context.Context, tenant core.TenantID) ([]core.Module, error)
	UserProgress(ctx context.Context, user core.UserID) (core.UserProgress, error)
}

// Transport pushes an event to the client behind one connection. Delivery is
// fire-and-forget per target; a failed push is logged by the broadcaster and
// never aborts the fan-out.
type Transport interface {
	Deliver(ctx context.Context, conn core.Connection, ev core.Event) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, conn core.Connection, ev core.Event) error

func (f TransportFunc) Deliver(ctx context.Context, conn core.Connection, ev core.Event) error {
	return f(ctx, conn, ev)
}
