package core

import "time"

// Notification is the durable record created when a high-priority event could
// not reach a user in real time. This subsystem only ever creates them; marking
// them read belongs to the host application.
type Notification struct {
	ID        string    `json:"id"`
	Type      EventKind `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	UserID    UserID    `json:"user_id"`
	TenantID  TenantID  `json:"tenant_id"`
	Priority  Priority  `json:"priority"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationContent maps an event to the title and message of its escalated
// notification. Total over the kind enum: every kind yields usable content.
func NotificationContent(kind EventKind, payload map[string]any) (title, message string) {
	switch kind {
	case KindProgress:
		return "Progress Update", "Your training progress has been updated"
	case KindAssignment:
		if msg := PayloadString(payload, "message"); msg != "" {
			return "New Module Assigned", msg
		}
		return "New Module Assigned", "You have been assigned a new module"
	case KindLeaderboardUpdate:
		return "Leaderboard Updated", "Check out the updated leaderboard rankings"
	case KindTenantUpdate:
		return "Company Update", "Your company settings have been updated"
	case KindSystemMessage:
		if msg := PayloadString(payload, "message"); msg != "" {
			return "System Notification", msg
		}
		return "System Notification", "New update available"
	case KindNotification:
		title = PayloadString(payload, "title")
		message = PayloadString(payload, "message")
		if title == "" {
			title = "Notification"
		}
		if message == "" {
			message = "You have a new notification"
		}
		return title, message
	}
	// Unreachable for valid events; kept so the function is total.
	return "Notification", "You have a new notification"
}

// NewEscalatedNotification builds the durable notification for a user that an
// escalating event failed to reach.
func NewEscalatedNotification(id string, ev Event, user UserID) Notification {
	title, message := NotificationContent(ev.Kind, ev.Payload)
	return Notification{
		ID:        id,
		Type:      ev.Kind,
		Title:     title,
		Message:   message,
		UserID:    user,
		TenantID:  ev.TenantID,
		Priority:  ev.Priority,
		CreatedAt: time.Now().UTC(),
	}
}
