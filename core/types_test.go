package core

import (
	"testing"
	"time"
)

func TestConnectionValidate(t *testing.T) {
	conn := Connection{ID: "c1", UserID: "u1", TenantID: "t1", Platform: PlatformWeb}
	if err := conn.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	conn.Platform = "desktop"
	if err := conn.Validate(); err == nil {
		t.Fatal("expected invalid platform error")
	}
	conn = Connection{UserID: "u1", TenantID: "t1", Platform: PlatformWeb}
	if err := conn.Validate(); err == nil {
		t.Fatal("expected empty id error")
	}
}

func TestConnectionMatches(t *testing.T) {
	conn := Connection{ID: "c1", UserID: "u1", TenantID: "t1", Platform: PlatformMobile}

	tenantWide := Event{Kind: KindTenantUpdate, TenantID: "t1", Priority: PriorityMedium}
	if !conn.Matches(tenantWide) {
		t.Fatal("tenant-wide event should match any tenant connection")
	}

	userScoped := Event{Kind: KindProgress, TenantID: "t1", UserID: "u1", Priority: PriorityMedium}
	if !conn.Matches(userScoped) {
		t.Fatal("user-scoped event should match the user's connection")
	}

	otherUser := Event{Kind: KindProgress, TenantID: "t1", UserID: "u2", Priority: PriorityMedium}
	if conn.Matches(otherUser) {
		t.Fatal("event for another user must not match")
	}

	otherTenant := Event{Kind: KindTenantUpdate, TenantID: "t2", Priority: PriorityMedium}
	if conn.Matches(otherTenant) {
		t.Fatal("event for another tenant must not match")
	}
}

func TestNormalizeEmail(t *testing.T) {
	email, err := NormalizeEmail(" Alice@Example.COM ")
	if err != nil || email != "alice@example.com" {
		t.Fatalf("got %q %v", email, err)
	}
	if _, err := NormalizeEmail("   "); err == nil {
		t.Fatal("expected empty email error")
	}
	if _, err := NormalizeEmail("not-an-email"); err == nil {
		t.Fatal("expected invalid email error")
	}
}

func TestNormalizeTenantCode(t *testing.T) {
	code, err := NormalizeTenantCode(" acme-01 ")
	if err != nil || code != "ACME-01" {
		t.Fatalf("got %q %v", code, err)
	}
	if _, err := NormalizeTenantCode(""); err == nil {
		t.Fatal("expected empty code error")
	}
}

func TestConnectionLivenessFields(t *testing.T) {
	now := time.Now().UTC()
	conn := Connection{ID: "c1", UserID: "u1", TenantID: "t1", Platform: PlatformWeb,
		EstablishedAt: now, LastLivenessAt: now}
	if conn.LastLivenessAt.Before(conn.EstablishedAt) {
		t.Fatal("liveness should never precede establishment")
	}
}
