package core

import (
	"errors"
	"time"
)

// EventKind enumerates the closed set of real-time event categories.
type EventKind string

const (
	KindProgress          EventKind = "progress"
	KindAssignment        EventKind = "assignment"
	KindNotification      EventKind = "notification"
	KindLeaderboardUpdate EventKind = "leaderboard_update"
	KindTenantUpdate      EventKind = "tenant_update"
	KindSystemMessage     EventKind = "system_message"
)

// Kinds lists every event kind, in a stable order.
func Kinds() []EventKind {
	return []EventKind{
		KindProgress,
		KindAssignment,
		KindNotification,
		KindLeaderboardUpdate,
		KindTenantUpdate,
		KindSystemMessage,
	}
}

// IsValid reports whether the kind is a member of the closed enumeration.
func (k EventKind) IsValid() bool {
	switch k {
	case KindProgress, KindAssignment, KindNotification,
		KindLeaderboardUpdate, KindTenantUpdate, KindSystemMessage:
		return true
	}
	return false
}

// Priority orders events by urgency. High and urgent events escalate to
// durable notifications when they reach no live connection for a user.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsValid reports whether the priority is a member of the closed enumeration.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Escalates reports whether undelivered events of this priority must be
// converted into durable notifications for offline users.
func (p Priority) Escalates() bool {
	return p == PriorityHigh || p == PriorityUrgent
}

// Event is an immutable real-time state-change event. An empty UserID means
// the event is tenant-wide. Events are transient: only the replay buffer
// retains a bounded window of them.
type Event struct {
	Kind      EventKind      `json:"kind"`
	TenantID  TenantID       `json:"tenant_id"`
	UserID    UserID         `json:"user_id,omitempty"`
	Priority  Priority       `json:"priority"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// TenantWide reports whether the event targets every user of the tenant.
func (e Event) TenantWide() bool { return e.UserID == "" }

// Validate checks the invariants an event must hold before broadcasting.
func (e Event) Validate() error {
	if !e.Kind.IsValid() {
		return errors.New("invalid event kind")
	}
	if e.TenantID == "" {
		return errors.New("empty tenant id")
	}
	if !e.Priority.IsValid() {
		return errors.New("invalid event priority")
	}
	return nil
}

func newEvent(kind EventKind, tenant TenantID, user UserID, prio Priority, payload map[string]any) Event {
	return Event{
		Kind:      kind,
		TenantID:  tenant,
		UserID:    user,
		Priority:  prio,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// NewProgressEvent records a learner progress change. Payload flags
// "completed" and "certificate_earned" drive leaderboard refresh derivation.
func NewProgressEvent(tenant TenantID, user UserID, payload map[string]any) Event {
	return newEvent(KindProgress, tenant, user, PriorityMedium, payload)
}

// NewAssignmentEvent announces a module assignment. A zero user makes the
// assignment tenant-wide.
func NewAssignmentEvent(tenant TenantID, user UserID, payload map[string]any) Event {
	return newEvent(KindAssignment, tenant, user, PriorityHigh, payload)
}

// NewLeaderboardRefresh signals that a tenant's leaderboard should be
// refetched. It carries no payload: clients recompute on their side.
func NewLeaderboardRefresh(tenant TenantID) Event {
	return newEvent(KindLeaderboardUpdate, tenant, "", PriorityLow, nil)
}

// NewTenantUpdate announces a change to the tenant's settings.
func NewTenantUpdate(tenant TenantID, payload map[string]any) Event {
	return newEvent(KindTenantUpdate, tenant, "", PriorityMedium, payload)
}

// NewSystemMessage carries an operator-authored broadcast message.
func NewSystemMessage(tenant TenantID, user UserID, prio Priority, message string) Event {
	return newEvent(KindSystemMessage, tenant, user, prio, map[string]any{"message": message})
}

// PayloadBool reads a boolean flag out of an event payload, tolerating both
// typed booleans and the string forms JSON round-trips can produce.
func PayloadBool(payload map[string]any, key string) bool {
	if payload == nil {
		return false
	}
	switch v := payload[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

// PayloadString reads a string value out of an event payload.
func PayloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}
