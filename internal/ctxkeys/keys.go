// Package ctxkeys defines context keys for passing data through the request pipeline.
// All context keys are unexported to prevent collisions. Use the With*/From accessor pairs.
package ctxkeys

import (
	"context"
	"time"

	"github.com/vivars7/skillrelay/internal/auth"
)

// ── Key types (unexported, collision-proof) ──

type claimsIdentityKey struct{}
type authInfoKey struct{}
type auditEntryKey struct{}
type requestMetaKey struct{}

// ── Data types ──

// AuthInfo summarizes how the caller authenticated, for logging.
type AuthInfo struct {
	Scheme   string // "bearer" or "" for unauthenticated callers
	Subject  string // sub claim
	AppID    string // caller app id (appid or azp)
	Verified bool   // true only when a token was validated
}

// AuditEntry accumulates audit data while a turn is processed. It is shared
// by pointer so inner stages can fill fields the outer logger reports.
type AuditEntry struct {
	TraceID        string
	Route          string // "messages" or "skills"
	ChannelID      string
	ActivityType   string
	ConversationID string
	CallerID       string
	SkillID        string // set when the turn delegated to a skill
	Status         string // "ok", "rejected", "error"
	StatusCode     int    // HTTP status written to the caller
	Error          string
	StartTime      time.Time
}

// RequestMeta describes the HTTP request a turn arrived on.
type RequestMeta struct {
	Route      string // "messages" or "skills"
	RemoteAddr string
	Method     string
	Path       string
}

// ── Getter/Setter (With*/From pattern) ──

// WithClaimsIdentity stores the caller identity produced by the auth middleware.
func WithClaimsIdentity(ctx context.Context, id *auth.ClaimsIdentity) context.Context {
	return context.WithValue(ctx, claimsIdentityKey{}, id)
}

// ClaimsIdentityFrom retrieves the caller identity.
func ClaimsIdentityFrom(ctx context.Context) (*auth.ClaimsIdentity, bool) {
	id, ok := ctx.Value(claimsIdentityKey{}).(*auth.ClaimsIdentity)
	return id, ok && id != nil
}

// WithAuthInfo stores AuthInfo in the context.
func WithAuthInfo(ctx context.Context, info AuthInfo) context.Context {
	return context.WithValue(ctx, authInfoKey{}, info)
}

// AuthInfoFrom retrieves AuthInfo from the context.
func AuthInfoFrom(ctx context.Context) (AuthInfo, bool) {
	info, ok := ctx.Value(authInfoKey{}).(AuthInfo)
	return info, ok
}

// WithAuditEntry stores an AuditEntry pointer in the context.
func WithAuditEntry(ctx context.Context, entry *AuditEntry) context.Context {
	return context.WithValue(ctx, auditEntryKey{}, entry)
}

// AuditEntryFrom retrieves the AuditEntry pointer from the context.
func AuditEntryFrom(ctx context.Context) (*AuditEntry, bool) {
	entry, ok := ctx.Value(auditEntryKey{}).(*AuditEntry)
	return entry, ok
}

// WithRequestMeta stores RequestMeta in the context.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom retrieves RequestMeta from the context.
func RequestMetaFrom(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta, ok
}
