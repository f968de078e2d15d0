package devicesync

import (
	"context"
	"testing"

	"learnsync/adapters/memory"
	"learnsync/core"
	"learnsync/engine"
)

func seededStore() *memory.Store {
	s := memory.New()
	s.PutTenant(core.Tenant{ID: "t1", Code: "ACME", Name: "Acme Corp", Active: true})
	s.PutTenant(core.Tenant{ID: "t2", Code: "DORM", Name: "Dormant Inc", Active: false})
	s.PutUser(core.User{ID: "u1", TenantID: "t1", Name: "Alice", Email: "alice@acme.test", Active: true})
	s.PutUser(core.User{ID: "u2", TenantID: "t1", Name: "Bob", Email: "bob@acme.test", Active: false})
	return s
}

func TestAuthenticateStateMachine(t *testing.T) {
	s := seededStore()
	o := New(s, s, s, nil)
	ctx := context.Background()

	cases := []struct {
		name   string
		code   string
		email  string
		ok     bool
		reason string
	}{
		{"unknown tenant", "BAD-CODE", "alice@acme.test", false, ReasonTenantNotFound},
		{"inactive tenant", "DORM", "alice@acme.test", false, ReasonTenantInactive},
		{"unknown user", "ACME", "unknown@acme.test", false, ReasonUserNotFound},
		{"inactive user", "ACME", "bob@acme.test", false, ReasonUserInactive},
		{"malformed email", "ACME", "not-an-email", false, ReasonUserNotFound},
		{"success", "ACME", "alice@acme.test", true, ""},
		{"success case-insensitive", "acme", " ALICE@Acme.Test ", true, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := o.Authenticate(ctx, tc.code, tc.email)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.OK != tc.ok || res.Reason != tc.reason {
				t.Fatalf("want ok=%v reason=%q, got %+v", tc.ok, tc.reason, res)
			}
			if tc.ok && (res.User.ID != "u1" || res.Tenant.ID != "t1") {
				t.Fatalf("success must return user and tenant records: %+v", res)
			}
		})
	}
}

func TestSyncBundleComposition(t *testing.T) {
	s := seededStore()
	s.PutModule(core.Module{ID: "m1", TenantID: "t1", Title: "Phishing Basics", Active: true})
	s.PutModule(core.Module{ID: "m2", TenantID: "t1", Title: "Password Hygiene", Active: true})
	s.PutProgress(core.UserProgress{UserID: "u1", CompletedModules: 2, AverageScore: 90, CertificatesEarned: 1})
	s.PutUser(core.User{ID: "u3", TenantID: "t1", Name: "Cara", Email: "cara@acme.test", Active: true})
	s.PutProgress(core.UserProgress{UserID: "u3", CompletedModules: 1})
	_ = s.CreateNotification(context.Background(), core.Notification{
		ID: "n1", Type: core.KindAssignment, UserID: "u1", TenantID: "t1", Priority: core.PriorityHigh,
	})

	o := New(s, s, s, nil)
	b, err := o.SyncBundle(context.Background(), "u1", "t1")
	if err != nil {
		t.Fatalf("SyncBundle: %v", err)
	}

	if b.User.ID != "u1" || b.Tenant.ID != "t1" {
		t.Fatalf("bundle identity wrong: %+v", b)
	}
	if len(b.Modules) != 2 {
		t.Fatalf("want 2 modules, got %+v", b.Modules)
	}
	if b.Progress.CompletedModules != 2 {
		t.Fatalf("want u1 progress, got %+v", b.Progress)
	}
	if len(b.Notifications) != 1 || b.Notifications[0].ID != "n1" {
		t.Fatalf("want pending notification n1, got %+v", b.Notifications)
	}
	if b.Partial {
		t.Fatal("fully served bundle must not be partial")
	}
	if b.GeneratedAt.IsZero() {
		t.Fatal("bundle must be timestamped")
	}

	// Inactive u2 does not rank; u1 outranks u3.
	if len(b.Leaderboard) != 2 {
		t.Fatalf("want 2 ranked users, got %+v", b.Leaderboard)
	}
	if b.Leaderboard[0].UserID != "u1" || b.Leaderboard[0].Rank != 1 {
		t.Fatalf("u1 should lead: %+v", b.Leaderboard)
	}
	if b.Leaderboard[1].UserID != "u3" || b.Leaderboard[1].Rank != 2 {
		t.Fatalf("u3 should be second: %+v", b.Leaderboard)
	}
}

func TestSyncBundleRejectsCrossTenant(t *testing.T) {
	s := seededStore()
	s.PutUser(core.User{ID: "u9", TenantID: "t2", Email: "x@y.test", Active: true})
	o := New(s, s, s, nil)

	if _, err := o.SyncBundle(context.Background(), "u9", "t1"); err == nil {
		t.Fatal("cross-tenant bundle must fail")
	}
	if _, err := o.SyncBundle(context.Background(), "missing", "t1"); err == nil {
		t.Fatal("unknown user must fail")
	}
}

type flakyContent struct {
	engine.ContentStore
}

func (f flakyContent) ModulesForTenant(context.Context, core.TenantID) ([]core.Module, error) {
	return nil, core.ErrUnavailable
}

func TestSyncBundlePartialOnUnavailableStore(t *testing.T) {
	s := seededStore()
	s.PutProgress(core.UserProgress{UserID: "u1", CompletedModules: 3})
	o := New(s, flakyContent{ContentStore: s}, s, nil)

	b, err := o.SyncBundle(context.Background(), "u1", "t1")
	if err != nil {
		t.Fatalf("unreachable store must degrade, not fail: %v", err)
	}
	if !b.Partial {
		t.Fatal("bundle must be marked partial")
	}
	if len(b.Modules) != 0 {
		t.Fatalf("degraded sub-step must be empty: %+v", b.Modules)
	}
	if b.Progress.CompletedModules != 3 {
		t.Fatalf("healthy sub-steps still serve: %+v", b.Progress)
	}
}
