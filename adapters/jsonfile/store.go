// Package jsonfile backs the stores with JSON files.
// Suitable for demos and small deployments: tenants, users, modules, and
// progress load from a seed fixture; notifications persist across restarts.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"learnsync/adapters/memory"
	"learnsync/core"
	"learnsync/engine"
)

// Seed is the fixture format for the read-only side of the stores.
type Seed struct {
	Tenants  []core.Tenant       `json:"tenants"`
	Users    []core.User         `json:"users"`
	Modules  []core.Module       `json:"modules"`
	Progress []core.UserProgress `json:"progress"`
}

// LoadSeed reads a fixture file.
func LoadSeed(path string) (Seed, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, err
	}
	var seed Seed
	if err := json.Unmarshal(b, &seed); err != nil {
		return Seed{}, err
	}
	return seed, nil
}

// SeedStore loads a fixture file into a fresh in-memory store.
func SeedStore(path string) (*memory.Store, error) {
	seed, err := LoadSeed(path)
	if err != nil {
		return nil, err
	}
	s := memory.New()
	for _, t := range seed.Tenants {
		s.PutTenant(t)
	}
	for _, u := range seed.Users {
		s.PutUser(u)
	}
	for _, m := range seed.Modules {
		s.PutModule(m)
	}
	for _, p := range seed.Progress {
		s.PutProgress(p)
	}
	return s, nil
}

// NotificationStore persists notifications to a single JSON file with an
// in-memory cache for speed.
type NotificationStore struct {
	path string
	mu   sync.Mutex
	data map[string]core.Notification
}

func NewNotificationStore(path string) (*NotificationStore, error) {
	s := &NotificationStore{path: path, data: map[string]core.Notification{}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return s, nil
}

func (s *NotificationStore) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, &s.data)
}

func (s *NotificationStore) persist() error {
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *NotificationStore) CreateNotification(_ context.Context, n core.Notification) error {
	if n.ID == "" {
		return errors.New("notification requires an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.data[n.ID] = n
	return s.persist()
}

func (s *NotificationStore) PendingNotifications(_ context.Context, user core.UserID) ([]core.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Notification
	for _, n := range s.data {
		if n.UserID == user && !n.IsRead {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MarkRead flags a notification as read. Unknown ids are a no-op.
func (s *NotificationStore) MarkRead(_ context.Context, user core.UserID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.data[id]
	if !ok || n.UserID != user {
		return nil
	}
	n.IsRead = true
	s.data[id] = n
	return s.persist()
}

var _ engine.NotificationStore = (*NotificationStore)(nil)
