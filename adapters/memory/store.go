package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"learnsync/core"
	"learnsync/engine"
)

// Store is a concurrent in-memory implementation of the user, content, and
// notification store contracts. It is the default backend for tests, demos,
// and single-process deployments.
type Store struct {
	mu            sync.RWMutex
	tenants       map[core.TenantID]core.Tenant
	tenantsByCode map[string]core.TenantID
	users         map[core.UserID]core.User
	modules       map[core.TenantID][]core.Module
	progress      map[core.UserID]core.UserProgress
	notifications map[core.UserID][]core.Notification
}

func New() *Store {
	return &Store{
		tenants:       make(map[core.TenantID]core.Tenant),
		tenantsByCode: make(map[string]core.TenantID),
		users:         make(map[core.UserID]core.User),
		modules:       make(map[core.TenantID][]core.Module),
		progress:      make(map[core.UserID]core.UserProgress),
		notifications: make(map[core.UserID][]core.Notification),
	}
}

func codeKey(code string) string {
	normalized, err := core.NormalizeTenantCode(code)
	if err != nil {
		return ""
	}
	return normalized
}

// PutTenant seeds or replaces a tenant. The code is normalized before
// indexing so lookups are case-insensitive.
func (s *Store) PutTenant(t core.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.tenants[t.ID]; ok {
		delete(s.tenantsByCode, codeKey(old.Code))
	}
	s.tenants[t.ID] = t
	s.tenantsByCode[codeKey(t.Code)] = t.ID
}

// PutUser seeds or replaces a user.
func (s *Store) PutUser(u core.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// PutModule seeds a training module under its tenant.
func (s *Store) PutModule(m core.Module) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.modules[m.TenantID] {
		if existing.ID == m.ID {
			s.modules[m.TenantID][i] = m
			return
		}
	}
	s.modules[m.TenantID] = append(s.modules[m.TenantID], m)
}

// PutProgress seeds or replaces a user's progress snapshot.
func (s *Store) PutProgress(p core.UserProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[p.UserID] = p
}

func (s *Store) TenantByCode(_ context.Context, code string) (core.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.tenantsByCode[codeKey(code)]
	if !ok {
		return core.Tenant{}, fmt.Errorf("tenant code %q: %w", code, core.ErrNotFound)
	}
	return s.tenants[id], nil
}

func (s *Store) Tenant(_ context.Context, tenant core.TenantID) (core.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenant]
	if !ok {
		return core.Tenant{}, fmt.Errorf("tenant %s: %w", tenant, core.ErrNotFound)
	}
	return t, nil
}

func (s *Store) TenantUsers(_ context.Context, tenant core.TenantID) ([]core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.User
	for _, u := range s.users {
		if u.TenantID == tenant {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) User(_ context.Context, user core.UserID) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[user]
	if !ok {
		return core.User{}, fmt.Errorf("user %s: %w", user, core.ErrNotFound)
	}
	return u, nil
}

func (s *Store) ModulesForTenant(_ context.Context, tenant core.TenantID) ([]core.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mods := s.modules[tenant]
	out := make([]core.Module, len(mods))
	copy(out, mods)
	return out, nil
}

func (s *Store) UserProgress(_ context.Context, user core.UserID) (core.UserProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[user]
	if !ok {
		// A user with no recorded progress is a fresh learner, not an error.
		return core.UserProgress{UserID: user}, nil
	}
	return p, nil
}

func (s *Store) CreateNotification(_ context.Context, n core.Notification) error {
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("notification requires an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.notifications[n.UserID] = append(s.notifications[n.UserID], n)
	return nil
}

func (s *Store) PendingNotifications(_ context.Context, user core.UserID) ([]core.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Notification
	for _, n := range s.notifications[user] {
		if !n.IsRead {
			out = append(out, n)
		}
	}
	return out, nil
}

// MarkRead flags a notification as read. Missing ids are a no-op so repeated
// acknowledgements stay idempotent.
func (s *Store) MarkRead(_ context.Context, user core.UserID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notifications[user] {
		if n.ID == id {
			s.notifications[user][i].IsRead = true
			return nil
		}
	}
	return nil
}

var _ engine.UserStore = (*Store)(nil)
var _ engine.NotificationStore = (*Store)(nil)
var _ engine.ContentStore = (*Store)(nil)
