// Package sqlx backs the external-store contracts with a SQL database, the
// system of record for tenants, users, modules, progress, and notifications.
package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	libsqlx "github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"learnsync/core"
	"learnsync/engine"
)

// Driver selects the SQL dialect.
type Driver string

const DriverPostgres Driver = "postgres"

// Config holds SQL connection configuration
type Config struct {
	Driver          Driver        `json:"driver"`
	DSN             string        `json:"dsn"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// DefaultConfig returns sensible defaults for the given driver
func DefaultConfig(driver Driver) Config {
	return Config{
		Driver:          driver,
		DSN:             "",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// NewFromConfig connects using a full configuration.
func NewFromConfig(cfg Config) (*Store, error) {
	db, err := libsqlx.Connect(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return NewWithDB(db, cfg.Driver), nil
}

// Store implements engine.UserStore, engine.ContentStore, and
// engine.NotificationStore over a SQL database.
type Store struct {
	db     *libsqlx.DB
	driver Driver
}

// New connects to the database and verifies the connection.
func New(driver Driver, dsn string) (*Store, error) {
	db, err := libsqlx.Connect(string(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewWithDB(db, driver), nil
}

// NewWithDB creates a Store using an existing connection (useful for testing).
func NewWithDB(db *libsqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

type tenantRow struct {
	ID     string `db:"id"`
	Code   string `db:"code"`
	Name   string `db:"name"`
	Active bool   `db:"active"`
}

func (r tenantRow) toCore() core.Tenant {
	return core.Tenant{ID: core.TenantID(r.ID), Code: r.Code, Name: r.Name, Active: r.Active}
}

type userRow struct {
	ID       string `db:"id"`
	TenantID string `db:"tenant_id"`
	Name     string `db:"name"`
	Email    string `db:"email"`
	Active   bool   `db:"active"`
}

func (r userRow) toCore() core.User {
	return core.User{
		ID: core.UserID(r.ID), TenantID: core.TenantID(r.TenantID),
		Name: r.Name, Email: r.Email, Active: r.Active,
	}
}

type moduleRow struct {
	ID       string `db:"id"`
	TenantID string `db:"tenant_id"`
	Title    string `db:"title"`
	Category string `db:"category"`
	Active   bool   `db:"active"`
}

type progressRow struct {
	UserID                string  `db:"user_id"`
	CompletedModules      int     `db:"completed_modules"`
	AverageScore          float64 `db:"average_score"`
	CertificatesEarned    int     `db:"certificates_earned"`
	TotalTimeSpentMinutes int64   `db:"total_time_spent_minutes"`
	StreakDays            int     `db:"streak_days"`
}

type notificationRow struct {
	ID        string    `db:"id"`
	Type      string    `db:"type"`
	Title     string    `db:"title"`
	Message   string    `db:"message"`
	UserID    string    `db:"user_id"`
	TenantID  string    `db:"tenant_id"`
	Priority  string    `db:"priority"`
	IsRead    bool      `db:"is_read"`
	CreatedAt time.Time `db:"created_at"`
}

func (r notificationRow) toCore() core.Notification {
	return core.Notification{
		ID: r.ID, Type: core.EventKind(r.Type), Title: r.Title, Message: r.Message,
		UserID: core.UserID(r.UserID), TenantID: core.TenantID(r.TenantID),
		Priority: core.Priority(r.Priority), IsRead: r.IsRead, CreatedAt: r.CreatedAt,
	}
}

func (s *Store) TenantByCode(ctx context.Context, code string) (core.Tenant, error) {
	normalized, err := core.NormalizeTenantCode(code)
	if err != nil {
		return core.Tenant{}, fmt.Errorf("tenant code %q: %w", code, core.ErrNotFound)
	}
	var row tenantRow
	query := s.db.Rebind(`SELECT id, code, name, active FROM tenants WHERE code = ?`)
	if err := s.db.GetContext(ctx, &row, query, normalized); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Tenant{}, fmt.Errorf("tenant code %q: %w", code, core.ErrNotFound)
		}
		return core.Tenant{}, fmt.Errorf("failed to load tenant by code: %w", err)
	}
	return row.toCore(), nil
}

func (s *Store) Tenant(ctx context.Context, tenant core.TenantID) (core.Tenant, error) {
	var row tenantRow
	query := s.db.Rebind(`SELECT id, code, name, active FROM tenants WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, query, tenant); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Tenant{}, fmt.Errorf("tenant %s: %w", tenant, core.ErrNotFound)
		}
		return core.Tenant{}, fmt.Errorf("failed to load tenant: %w", err)
	}
	return row.toCore(), nil
}

func (s *Store) TenantUsers(ctx context.Context, tenant core.TenantID) ([]core.User, error) {
	var rows []userRow
	query := s.db.Rebind(`SELECT id, tenant_id, name, email, active FROM users WHERE tenant_id = ? ORDER BY id`)
	if err := s.db.SelectContext(ctx, &rows, query, tenant); err != nil {
		return nil, fmt.Errorf("failed to list tenant users: %w", err)
	}
	out := make([]core.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

func (s *Store) User(ctx context.Context, user core.UserID) (core.User, error) {
	var row userRow
	query := s.db.Rebind(`SELECT id, tenant_id, name, email, active FROM users WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, query, user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.User{}, fmt.Errorf("user %s: %w", user, core.ErrNotFound)
		}
		return core.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	return row.toCore(), nil
}

func (s *Store) ModulesForTenant(ctx context.Context, tenant core.TenantID) ([]core.Module, error) {
	var rows []moduleRow
	query := s.db.Rebind(`SELECT id, tenant_id, title, category, active FROM modules WHERE tenant_id = ? ORDER BY id`)
	if err := s.db.SelectContext(ctx, &rows, query, tenant); err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	out := make([]core.Module, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.Module{
			ID: r.ID, TenantID: core.TenantID(r.TenantID),
			Title: r.Title, Category: r.Category, Active: r.Active,
		})
	}
	return out, nil
}

func (s *Store) UserProgress(ctx context.Context, user core.UserID) (core.UserProgress, error) {
	var row progressRow
	query := s.db.Rebind(`SELECT user_id, completed_modules, average_score, certificates_earned,
		total_time_spent_minutes, streak_days FROM user_progress WHERE user_id = ?`)
	if err := s.db.GetContext(ctx, &row, query, user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// No recorded progress means a fresh learner, not an error.
			return core.UserProgress{UserID: user}, nil
		}
		return core.UserProgress{}, fmt.Errorf("failed to load progress: %w", err)
	}
	return core.UserProgress{
		UserID:                core.UserID(row.UserID),
		CompletedModules:      row.CompletedModules,
		AverageScore:          row.AverageScore,
		CertificatesEarned:    row.CertificatesEarned,
		TotalTimeSpentMinutes: row.TotalTimeSpentMinutes,
		StreakDays:            row.StreakDays,
	}, nil
}

func (s *Store) CreateNotification(ctx context.Context, n core.Notification) error {
	if n.ID == "" {
		return errors.New("notification requires an id")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	query := s.db.Rebind(`INSERT INTO notifications
		(id, type, title, message, user_id, tenant_id, priority, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query,
		n.ID, string(n.Type), n.Title, n.Message, n.UserID, n.TenantID,
		string(n.Priority), n.IsRead, n.CreatedAt); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (s *Store) PendingNotifications(ctx context.Context, user core.UserID) ([]core.Notification, error) {
	var rows []notificationRow
	query := s.db.Rebind(`SELECT id, type, title, message, user_id, tenant_id, priority, is_read, created_at
		FROM notifications WHERE user_id = ? AND is_read = FALSE ORDER BY created_at`)
	if err := s.db.SelectContext(ctx, &rows, query, user); err != nil {
		return nil, fmt.Errorf("failed to list pending notifications: %w", err)
	}
	out := make([]core.Notification, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

// MarkRead flags a notification as read. Unknown ids are a no-op.
func (s *Store) MarkRead(ctx context.Context, user core.UserID, id string) error {
	query := s.db.Rebind(`UPDATE notifications SET is_read = TRUE WHERE id = ? AND user_id = ?`)
	if _, err := s.db.ExecContext(ctx, query, id, user); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

var _ engine.UserStore = (*Store)(nil)
var _ engine.ContentStore = (*Store)(nil)
var _ engine.NotificationStore = (*Store)(nil)
