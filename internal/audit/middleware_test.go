package audit

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vivars7/skillrelay/internal/activity"
	"github.com/vivars7/skillrelay/internal/bot"
	"github.com/vivars7/skillrelay/internal/ctxkeys"
)

// ── HTTP ──

func TestHTTPMiddleware_OpensAndLogsEntry(t *testing.T) {
	m := NewMetrics()
	var seen *ctxkeys.AuditEntry
	var meta ctxkeys.RequestMeta

	output := captureLog(func(logger *slog.Logger) {
		mw := NewHTTPMiddleware("skills", NewLogger(logger, SamplingConfig{Rate: 1, ErrorRate: 1}), m)
		h := mw.Process(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = ctxkeys.AuditEntryFrom(r.Context())
			meta, _ = ctxkeys.RequestMetaFrom(r.Context())
			seen.ConversationID = "skill-conv"
			w.WriteHeader(http.StatusNotFound)
		}))
		req := httptest.NewRequest(http.MethodPost, "/api/skills/v3/conversations/x/activities", nil)
		h.ServeHTTP(httptest.NewRecorder(), req)
	})

	if seen == nil {
		t.Fatal("handler saw no audit entry")
	}
	if seen.Route != "skills" || seen.StartTime.IsZero() {
		t.Errorf("entry = %+v, want route skills with start time", seen)
	}
	if meta.Method != http.MethodPost || meta.Path != "/api/skills/v3/conversations/x/activities" {
		t.Errorf("meta = %+v", meta)
	}
	if seen.Status != StatusRejected || seen.StatusCode != http.StatusNotFound {
		t.Errorf("status = %q/%d, want rejected/404", seen.Status, seen.StatusCode)
	}
	if !strings.Contains(output, `"turn.conversation_id":"skill-conv"`) {
		t.Errorf("log missing conversation id: %s", output)
	}
	assertContains(t, scrape(t, m), `skillrelay_http_requests_total{route="skills",status="404"} 1`)
}

func TestHTTPMiddleware_KeepsInnerStatus(t *testing.T) {
	mw := NewHTTPMiddleware("messages", nil, nil)
	var seen *ctxkeys.AuditEntry
	h := mw.Process(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ctxkeys.AuditEntryFrom(r.Context())
		seen.Status = StatusError
		w.Write([]byte("ok"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/messages", nil))

	if seen.Status != StatusError {
		t.Errorf("Status = %q, want inner stage's %q", seen.Status, StatusError)
	}
	if seen.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", seen.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, StatusOK},
		{202, StatusOK},
		{401, StatusRejected},
		{429, StatusRejected},
		{502, StatusError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.code); got != tt.want {
			t.Errorf("statusFor(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

// ── Turn ──

func turnFor(a *activity.Activity) *bot.TurnContext {
	return bot.NewTurnContext(nil, a)
}

func testActivity() *activity.Activity {
	return &activity.Activity{
		Type:         activity.TypeMessage,
		ChannelID:    "msteams",
		Conversation: &activity.ConversationAccount{ID: "conv-7"},
	}
}

func TestTurnMiddleware_FillsRequestEntry(t *testing.T) {
	m := NewMetrics()
	mws := bot.NewMiddlewareSet(NewTurnMiddleware(nil, m))
	entry := &ctxkeys.AuditEntry{Route: "messages"}
	ctx := ctxkeys.WithAuditEntry(context.Background(), entry)

	boom := errors.New("bot exploded")
	err := mws.ReceiveActivityWithStatus(ctx, turnFor(testActivity()), func(context.Context, *bot.TurnContext) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the bot error passed through", err)
	}

	if entry.ChannelID != "msteams" || entry.ActivityType != "message" || entry.ConversationID != "conv-7" {
		t.Errorf("entry = %+v, want activity fields filled", entry)
	}
	if entry.Status != StatusError || entry.Error != "bot exploded" {
		t.Errorf("entry status = %q error = %q", entry.Status, entry.Error)
	}
	assertContains(t, scrape(t, m), `skillrelay_turns_total{activity_type="message",channel="msteams",status="error"} 1`)
}

func TestTurnMiddleware_CancelledIsNotAnError(t *testing.T) {
	mws := bot.NewMiddlewareSet(NewTurnMiddleware(nil, nil))
	entry := &ctxkeys.AuditEntry{}
	ctx := ctxkeys.WithAuditEntry(context.Background(), entry)

	mws.ReceiveActivityWithStatus(ctx, turnFor(testActivity()), func(context.Context, *bot.TurnContext) error {
		return context.Canceled
	})
	if entry.Status == StatusError {
		t.Error("cancellation marked the entry as an error")
	}
}

func TestTurnMiddleware_LogsProactiveTurns(t *testing.T) {
	output := captureLog(func(logger *slog.Logger) {
		mws := bot.NewMiddlewareSet(NewTurnMiddleware(NewLogger(logger, SamplingConfig{Rate: 1, ErrorRate: 1}), nil))
		a := testActivity()
		a.Type = activity.TypeEvent
		mws.ReceiveActivityWithStatus(context.Background(), turnFor(a), nil)
	})

	m := decodeLog(t, output)
	attrs := m["attributes"].(map[string]any)
	if attrs["turn.route"] != "proactive" || attrs["turn.status"] != StatusOK || attrs["turn.activity_type"] != "event" {
		t.Errorf("attributes = %v", attrs)
	}
}

func TestTurnMiddleware_RequestTurnsNotLoggedTwice(t *testing.T) {
	output := captureLog(func(logger *slog.Logger) {
		mws := bot.NewMiddlewareSet(NewTurnMiddleware(NewLogger(logger, SamplingConfig{Rate: 1, ErrorRate: 1}), nil))
		ctx := ctxkeys.WithAuditEntry(context.Background(), &ctxkeys.AuditEntry{})
		mws.ReceiveActivityWithStatus(ctx, turnFor(testActivity()), nil)
	})
	if output != "" {
		t.Errorf("turn inside a request logged on its own: %s", output)
	}
}
