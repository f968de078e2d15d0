// Package devicesync authenticates devices against a tenant code and user
// email, and assembles the full state snapshot a device loads on session
// start or explicit resync.
package devicesync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"learnsync/core"
	"learnsync/engine"
	"learnsync/leaderboard"
)

// Authentication failure reasons, surfaced to the device as-is.
const (
	ReasonTenantNotFound = "tenant not found"
	ReasonTenantInactive = "tenant inactive"
	ReasonUserNotFound   = "user not found"
	ReasonUserInactive   = "user inactive"
)

// AuthResult is the outcome of device authentication. Failures carry a
// structured reason string, never an error crossing the boundary.
type AuthResult struct {
	OK     bool        `json:"ok"`
	Reason string      `json:"reason,omitempty"`
	User   core.User   `json:"user,omitempty"`
	Tenant core.Tenant `json:"tenant,omitempty"`
}

// Bundle is the point-in-time snapshot composed for a device. The reads are
// independent, so a write racing the composition is acceptable and
// self-corrects on the next sync. Partial marks a bundle where a store was
// unreachable and a sub-step came back empty.
type Bundle struct {
	User          core.User           `json:"user"`
	Tenant        core.Tenant         `json:"tenant"`
	Modules       []core.Module       `json:"modules"`
	Progress      core.UserProgress   `json:"progress"`
	Leaderboard   []leaderboard.Entry `json:"leaderboard"`
	Notifications []core.Notification `json:"notifications"`
	Partial       bool                `json:"partial,omitempty"`
	GeneratedAt   time.Time           `json:"generated_at"`
}

// Orchestrator drives device authentication and sync bundle assembly.
type Orchestrator struct {
	users         engine.UserStore
	content       engine.ContentStore
	notifications engine.NotificationStore
	logger        *slog.Logger
}

func New(users engine.UserStore, content engine.ContentStore, notifications engine.NotificationStore, logger *slog.Logger) *Orchestrator {
	if users == nil || content == nil || notifications == nil {
		panic("devicesync.New requires non-nil stores")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{users: users, content: content, notifications: notifications, logger: logger}
}

// Authenticate walks the device auth state machine: tenant code resolves, the
// tenant is active, the email belongs to one of its users, and that user is
// active. The first failing step decides the reason.
func (o *Orchestrator) Authenticate(ctx context.Context, tenantCode, email string) (AuthResult, error) {
	tenant, err := o.users.TenantByCode(ctx, tenantCode)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return AuthResult{Reason: ReasonTenantNotFound}, nil
		}
		return AuthResult{}, err
	}
	if !tenant.Active {
		return AuthResult{Reason: ReasonTenantInactive}, nil
	}

	normalized, err := core.NormalizeEmail(email)
	if err != nil {
		return AuthResult{Reason: ReasonUserNotFound}, nil
	}
	users, err := o.users.TenantUsers(ctx, tenant.ID)
	if err != nil {
		return AuthResult{}, err
	}
	for _, u := range users {
		candidate, err := core.NormalizeEmail(u.Email)
		if err != nil || candidate != normalized {
			continue
		}
		if !u.Active {
			return AuthResult{Reason: ReasonUserInactive}, nil
		}
		o.logger.Info("device authenticated", "tenant", tenant.ID, "user", u.ID)
		return AuthResult{OK: true, User: u, Tenant: tenant}, nil
	}
	return AuthResult{Reason: ReasonUserNotFound}, nil
}

// SyncBundle composes the device snapshot. Each sub-read that fails with an
// unreachable store degrades to an empty result and flips Partial instead of
// failing the whole bundle.
func (o *Orchestrator) SyncBundle(ctx context.Context, userID core.UserID, tenantID core.TenantID) (Bundle, error) {
	user, err := o.users.User(ctx, userID)
	if err != nil {
		return Bundle{}, err
	}
	tenant, err := o.users.Tenant(ctx, tenantID)
	if err != nil {
		return Bundle{}, err
	}
	if user.TenantID != tenantID {
		return Bundle{}, errors.New("user does not belong to tenant")
	}

	b := Bundle{User: user, Tenant: tenant, GeneratedAt: time.Now().UTC()}

	if mods, err := o.content.ModulesForTenant(ctx, tenantID); err != nil {
		o.degrade(&b, "modules", err)
	} else {
		b.Modules = mods
	}

	if p, err := o.content.UserProgress(ctx, userID); err != nil {
		o.degrade(&b, "progress", err)
	} else {
		b.Progress = p
	}

	b.Leaderboard = o.tenantLeaderboard(ctx, &b, tenantID)

	if pending, err := o.notifications.PendingNotifications(ctx, userID); err != nil {
		o.degrade(&b, "notifications", err)
	} else {
		b.Notifications = pending
	}

	return b, nil
}

// tenantLeaderboard ranks the tenant's active users from their current
// progress. A user whose progress read fails ranks with a zero score.
func (o *Orchestrator) tenantLeaderboard(ctx context.Context, b *Bundle, tenantID core.TenantID) []leaderboard.Entry {
	users, err := o.users.TenantUsers(ctx, tenantID)
	if err != nil {
		o.degrade(b, "leaderboard", err)
		return nil
	}
	progress := make(map[core.UserID]core.UserProgress, len(users))
	for _, u := range users {
		if !u.Active {
			continue
		}
		p, err := o.content.UserProgress(ctx, u.ID)
		if err != nil {
			o.logger.Warn("progress read failed during ranking", "user", u.ID, "error", err)
			continue
		}
		progress[u.ID] = p
	}
	return leaderboard.Rank(users, progress)
}

func (o *Orchestrator) degrade(b *Bundle, step string, err error) {
	b.Partial = true
	o.logger.Warn("sync bundle sub-step degraded", "step", step, "error", err)
}
