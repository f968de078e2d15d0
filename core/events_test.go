package core

import (
	"context"
	"testing"
)

func TestEventValidate(t *testing.T) {
	ev := NewProgressEvent("t1", "u1", nil)
	if err := ev.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ev.Kind = "typo"
	if err := ev.Validate(); err == nil {
		t.Fatal("expected invalid kind error")
	}
	ev = NewTenantUpdate("", nil)
	if err := ev.Validate(); err == nil {
		t.Fatal("expected empty tenant error")
	}
}

func TestPriorityEscalates(t *testing.T) {
	cases := map[Priority]bool{
		PriorityLow:    false,
		PriorityMedium: false,
		PriorityHigh:   true,
		PriorityUrgent: true,
	}
	for p, want := range cases {
		if p.Escalates() != want {
			t.Fatalf("priority %s: escalates=%v want %v", p, p.Escalates(), want)
		}
	}
}

func TestNotificationContentTotal(t *testing.T) {
	for _, kind := range Kinds() {
		title, message := NotificationContent(kind, nil)
		if title == "" || message == "" {
			t.Fatalf("kind %s: empty notification content", kind)
		}
	}
}

func TestNotificationContentPayloadMessage(t *testing.T) {
	_, msg := NotificationContent(KindAssignment, map[string]any{"message": "Safety 101 assigned"})
	if msg != "Safety 101 assigned" {
		t.Fatalf("got %q", msg)
	}
	_, msg = NotificationContent(KindAssignment, nil)
	if msg != "You have been assigned a new module" {
		t.Fatalf("got %q", msg)
	}
	_, msg = NotificationContent(KindSystemMessage, nil)
	if msg != "New update available" {
		t.Fatalf("got %q", msg)
	}
}

func TestLeaderboardRefreshRule(t *testing.T) {
	rule := LeaderboardRefreshRule{}
	ctx := context.Background()

	derived := rule.Evaluate(ctx, NewProgressEvent("t1", "u1", map[string]any{"completed": true}))
	if len(derived) != 1 || derived[0].Kind != KindLeaderboardUpdate {
		t.Fatalf("expected one leaderboard update, got %+v", derived)
	}
	if derived[0].TenantID != "t1" || !derived[0].TenantWide() {
		t.Fatalf("derived event should be tenant-wide for t1: %+v", derived[0])
	}

	derived = rule.Evaluate(ctx, NewProgressEvent("t1", "u1", map[string]any{"score": 88}))
	if len(derived) != 0 {
		t.Fatalf("plain score update should not derive events, got %+v", derived)
	}

	derived = rule.Evaluate(ctx, NewTenantUpdate("t1", nil))
	if len(derived) != 0 {
		t.Fatalf("non-progress events should not derive, got %+v", derived)
	}
}
