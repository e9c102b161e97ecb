package ctxkeys

import (
	"context"
	"testing"
	"time"

	"github.com/vivars7/skillrelay/internal/auth"
)

func TestClaimsIdentityRoundTrip(t *testing.T) {
	id := auth.NewClaimsIdentity(map[string]string{auth.AudienceClaim: "bot"}, true, auth.BearerAuthType)
	ctx := WithClaimsIdentity(context.Background(), id)

	got, ok := ClaimsIdentityFrom(ctx)
	if !ok {
		t.Fatal("expected ok=true, got false")
	}
	if got != id {
		t.Error("expected same pointer")
	}
}

func TestClaimsIdentityFromEmptyContext(t *testing.T) {
	if _, ok := ClaimsIdentityFrom(context.Background()); ok {
		t.Fatal("expected ok=false for empty context")
	}
	if _, ok := ClaimsIdentityFrom(WithClaimsIdentity(context.Background(), nil)); ok {
		t.Fatal("expected ok=false for nil identity")
	}
}

func TestAuthInfoRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		info AuthInfo
	}{
		{
			name: "verified bearer",
			info: AuthInfo{Scheme: "bearer", Subject: "root-bot", AppID: "root-app", Verified: true},
		},
		{
			name: "unauthenticated",
			info: AuthInfo{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithAuthInfo(context.Background(), tt.info)
			got, ok := AuthInfoFrom(ctx)
			if !ok {
				t.Fatal("expected ok=true, got false")
			}
			if got != tt.info {
				t.Errorf("got %+v, want %+v", got, tt.info)
			}
		})
	}
}

func TestAuditEntryPointerMutation(t *testing.T) {
	entry := &AuditEntry{Status: "pending", StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	ctx := WithAuditEntry(context.Background(), entry)

	// Inner stages mutate through the pointer
	got, _ := AuditEntryFrom(ctx)
	got.SkillID = "weather"
	got.Status = "ok"

	if entry.SkillID != "weather" || entry.Status != "ok" {
		t.Errorf("mutation did not propagate: %+v", entry)
	}
}

func TestAuditEntryFromEmptyContext(t *testing.T) {
	got, ok := AuditEntryFrom(context.Background())
	if ok {
		t.Fatal("expected ok=false for empty context")
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestKeysDontInterfere(t *testing.T) {
	id := auth.NewAppIdentity("bot")
	info := AuthInfo{Scheme: "bearer", Subject: "s", Verified: true}
	entry := &AuditEntry{Route: "messages"}
	meta := RequestMeta{Route: "skills", Method: "POST", Path: "/api/skills/v3/conversations/c/activities"}

	ctx := context.Background()
	ctx = WithClaimsIdentity(ctx, id)
	ctx = WithAuthInfo(ctx, info)
	ctx = WithAuditEntry(ctx, entry)
	ctx = WithRequestMeta(ctx, meta)

	if got, ok := ClaimsIdentityFrom(ctx); !ok || got != id {
		t.Errorf("ClaimsIdentity: got %+v", got)
	}
	if got, ok := AuthInfoFrom(ctx); !ok || got != info {
		t.Errorf("AuthInfo: got %+v, want %+v", got, info)
	}
	if got, ok := AuditEntryFrom(ctx); !ok || got != entry {
		t.Errorf("AuditEntry: got %+v", got)
	}
	if got, ok := RequestMetaFrom(ctx); !ok || got != meta {
		t.Errorf("RequestMeta: got %+v, want %+v", got, meta)
	}
}
