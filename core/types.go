package core

import (
	"errors"
	"strings"
	"time"
)

// TenantID identifies a company/organization account, the unit of data isolation.
type TenantID string

// UserID uniquely identifies a learner or admin within a tenant.
type UserID string

// ConnectionID uniquely identifies one live client attachment.
type ConnectionID string

// Platform is the kind of client holding a connection.
type Platform string

const (
	PlatformWeb    Platform = "web"
	PlatformMobile Platform = "mobile"
	PlatformAdmin  Platform = "admin"
)

// IsValid reports whether the platform is one of the known client kinds.
func (p Platform) IsValid() bool {
	switch p {
	case PlatformWeb, PlatformMobile, PlatformAdmin:
		return true
	}
	return false
}

// Connection is one live client attachment capable of receiving pushed events.
// The registry is its sole owner: created on attach, liveness-refreshed on each
// ping, destroyed on detach or reaping.
type Connection struct {
	ID             ConnectionID `json:"id"`
	UserID         UserID       `json:"user_id"`
	TenantID       TenantID     `json:"tenant_id"`
	Platform       Platform     `json:"platform"`
	EstablishedAt  time.Time    `json:"established_at"`
	LastLivenessAt time.Time    `json:"last_liveness_at"`
}

// Validate checks the fields required before a connection may be registered.
func (c Connection) Validate() error {
	if strings.TrimSpace(string(c.ID)) == "" {
		return errors.New("empty connection id")
	}
	if strings.TrimSpace(string(c.UserID)) == "" {
		return errors.New("empty user id")
	}
	if strings.TrimSpace(string(c.TenantID)) == "" {
		return errors.New("empty tenant id")
	}
	if !c.Platform.IsValid() {
		return errors.New("invalid platform")
	}
	return nil
}

// Matches reports whether this connection is a delivery target for the event:
// same tenant, and either a tenant-wide event or a matching user.
func (c Connection) Matches(e Event) bool {
	if c.TenantID != e.TenantID {
		return false
	}
	return e.TenantWide() || c.UserID == e.UserID
}

// Tenant is a company account as read from the external user/tenant store.
type Tenant struct {
	ID     TenantID `json:"id"`
	Code   string   `json:"code"`
	Name   string   `json:"name"`
	Active bool     `json:"active"`
}

// User is a learner or admin account as read from the external user store.
type User struct {
	ID       UserID   `json:"id"`
	TenantID TenantID `json:"tenant_id"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Active   bool     `json:"active"`
}

// Module is a training module as read from the external content store.
type Module struct {
	ID       string   `json:"id"`
	TenantID TenantID `json:"tenant_id"`
	Title    string   `json:"title"`
	Category string   `json:"category,omitempty"`
	Active   bool     `json:"active"`
}

// UserProgress is the read-only aggregate used as scoring input.
type UserProgress struct {
	UserID                UserID  `json:"user_id"`
	CompletedModules      int     `json:"completed_modules"`
	AverageScore          float64 `json:"average_score"`
	CertificatesEarned    int     `json:"certificates_earned"`
	TotalTimeSpentMinutes int64   `json:"total_time_spent_minutes"`
	StreakDays            int     `json:"streak_days"`
}

// NormalizeEmail trims and lowercases an email address for comparison.
func NormalizeEmail(email string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(email))
	if s == "" {
		return "", errors.New("empty email")
	}
	if !strings.Contains(s, "@") {
		return "", errors.New("invalid email")
	}
	return s, nil
}

// NormalizeTenantCode canonicalizes a tenant invite code (upper-case, trimmed).
func NormalizeTenantCode(code string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(code))
	if s == "" {
		return "", errors.New("empty tenant code")
	}
	return s, nil
}
