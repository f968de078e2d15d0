package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"learnsync/core"
)

func TestTenantByCodeNormalizes(t *testing.T) {
	s := New()
	s.PutTenant(core.Tenant{ID: "t1", Code: "ACME", Name: "Acme", Active: true})

	got, err := s.TenantByCode(context.Background(), "  acme ")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.ID != "t1" {
		t.Fatalf("want t1, got %+v", got)
	}

	_, err = s.TenantByCode(context.Background(), "nope")
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestTenantUsersScopedAndSorted(t *testing.T) {
	s := New()
	s.PutUser(core.User{ID: "u2", TenantID: "t1", Active: true})
	s.PutUser(core.User{ID: "u1", TenantID: "t1", Active: true})
	s.PutUser(core.User{ID: "u3", TenantID: "t2", Active: true})

	users, err := s.TenantUsers(context.Background(), "t1")
	if err != nil {
		t.Fatalf("TenantUsers: %v", err)
	}
	if len(users) != 2 || users[0].ID != "u1" || users[1].ID != "u2" {
		t.Fatalf("want [u1 u2], got %+v", users)
	}
}

func TestUserProgressDefaultsToFreshLearner(t *testing.T) {
	s := New()
	p, err := s.UserProgress(context.Background(), "u1")
	if err != nil {
		t.Fatalf("UserProgress: %v", err)
	}
	if p.UserID != "u1" || p.CompletedModules != 0 {
		t.Fatalf("want empty progress for unknown user, got %+v", p)
	}
}

func TestNotificationLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateNotification(ctx, core.Notification{UserID: "u1"}); err == nil {
		t.Fatal("notification without id must be rejected")
	}

	n := core.Notification{
		ID:       "n1",
		Type:     core.KindAssignment,
		Title:    "New Module Assigned",
		UserID:   "u1",
		TenantID: "t1",
		Priority: core.PriorityHigh,
	}
	if err := s.CreateNotification(ctx, n); err != nil {
		t.Fatalf("create: %v", err)
	}

	pending, err := s.PendingNotifications(ctx, "u1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "n1" {
		t.Fatalf("want [n1], got %+v", pending)
	}
	if pending[0].CreatedAt.IsZero() {
		t.Fatal("create must stamp CreatedAt")
	}

	if err := s.MarkRead(ctx, "u1", "n1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := s.MarkRead(ctx, "u1", "n1"); err != nil {
		t.Fatalf("mark read must be idempotent: %v", err)
	}
	pending, _ = s.PendingNotifications(ctx, "u1")
	if len(pending) != 0 {
		t.Fatalf("read notifications must not be pending: %+v", pending)
	}
}

func TestPutModuleReplacesById(t *testing.T) {
	s := New()
	s.PutModule(core.Module{ID: "m1", TenantID: "t1", Title: "Intro"})
	s.PutModule(core.Module{ID: "m1", TenantID: "t1", Title: "Intro v2"})

	mods, err := s.ModulesForTenant(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ModulesForTenant: %v", err)
	}
	if len(mods) != 1 || mods[0].Title != "Intro v2" {
		t.Fatalf("want replaced module, got %+v", mods)
	}
}

func TestConcurrentSeedAndRead(t *testing.T) {
	s := New()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			s.PutProgress(core.UserProgress{UserID: "u1", CompletedModules: i})
		}
	}()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-done:
			p, _ := s.UserProgress(context.Background(), "u1")
			if p.CompletedModules != 499 {
				t.Fatalf("want last write, got %+v", p)
			}
			return
		case <-deadline:
			t.Fatal("writer did not finish")
		default:
			_, _ = s.UserProgress(context.Background(), "u1")
		}
	}
}
