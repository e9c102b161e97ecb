package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/vivars7/skillrelay/internal/ctxkeys"
)

// captureLog runs fn with a JSON slog logger writing to a buffer and returns the output.
func captureLog(fn func(*slog.Logger)) string {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	fn(logger)
	return buf.String()
}

func makeEntry() *ctxkeys.AuditEntry {
	return &ctxkeys.AuditEntry{
		TraceID:        "trace-abc",
		Route:          "messages",
		ChannelID:      "msteams",
		ActivityType:   "message",
		ConversationID: "conv-1",
		CallerID:       "botToBot:skill-app",
		Status:         "ok",
		StatusCode:     200,
		StartTime:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func fixedLogger(slogger *slog.Logger, sampling SamplingConfig) *Logger {
	l := NewLogger(slogger, sampling)
	l.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, int(250*time.Millisecond), time.UTC) }
	return l
}

func decodeLog(t *testing.T, output string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(output), &m); err != nil {
		t.Fatalf("invalid JSON output: %v\noutput: %s", err, output)
	}
	return m
}

func TestLogRequest_Normal(t *testing.T) {
	ctx := ctxkeys.WithAuditEntry(context.Background(), makeEntry())

	output := captureLog(func(logger *slog.Logger) {
		fixedLogger(logger, SamplingConfig{Rate: 1.0, ErrorRate: 1.0}).LogRequest(ctx)
	})
	if output == "" {
		t.Fatal("expected log output, got empty string")
	}

	m := decodeLog(t, output)
	if m["msg"] != "audit" {
		t.Errorf("msg = %v, want audit", m["msg"])
	}
	if m["trace_id"] != "trace-abc" {
		t.Errorf("trace_id = %v, want trace-abc", m["trace_id"])
	}

	attrs, ok := m["attributes"].(map[string]any)
	if !ok {
		t.Fatal("missing 'attributes' group in log output")
	}
	checks := map[string]any{
		"turn.route":           "messages",
		"turn.channel_id":      "msteams",
		"turn.activity_type":   "message",
		"turn.conversation_id": "conv-1",
		"turn.caller_id":       "botToBot:skill-app",
		"turn.status":          "ok",
		"turn.duration_ms":     float64(250),
		"http.status_code":     float64(200),
	}
	for k, want := range checks {
		if got := attrs[k]; got != want {
			t.Errorf("attribute %q = %v, want %v", k, got, want)
		}
	}
	for _, absent := range []string{"turn.skill_id", "turn.error"} {
		if _, ok := attrs[absent]; ok {
			t.Errorf("attribute %q should be omitted when empty", absent)
		}
	}
}

func TestLogRequest_ErrorEntry(t *testing.T) {
	entry := makeEntry()
	entry.Status = StatusError
	entry.SkillID = "echo"
	entry.Error = "forwarding to skill echo: upstream unavailable"

	output := captureLog(func(logger *slog.Logger) {
		fixedLogger(logger, SamplingConfig{Rate: 0, ErrorRate: 1.0}).Log(context.Background(), entry)
	})

	m := decodeLog(t, output)
	if m["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", m["level"])
	}
	attrs := m["attributes"].(map[string]any)
	if attrs["turn.skill_id"] != "echo" {
		t.Errorf("turn.skill_id = %v, want echo", attrs["turn.skill_id"])
	}
	if !strings.Contains(attrs["turn.error"].(string), "upstream unavailable") {
		t.Errorf("turn.error = %v", attrs["turn.error"])
	}
}

func TestLogRequest_NoEntry(t *testing.T) {
	output := captureLog(func(logger *slog.Logger) {
		NewLogger(logger, SamplingConfig{Rate: 1.0}).LogRequest(context.Background())
	})
	if output != "" {
		t.Errorf("expected no output without an entry, got %s", output)
	}
}

func TestLogRequest_SamplingSkip(t *testing.T) {
	ctx := ctxkeys.WithAuditEntry(context.Background(), makeEntry())

	output := captureLog(func(logger *slog.Logger) {
		// Rate=0.0 means successful turns are never logged.
		NewLogger(logger, SamplingConfig{Rate: 0.0, ErrorRate: 1.0}).LogRequest(ctx)
	})
	if output != "" {
		t.Errorf("expected no log output when sampling skips, got: %s", output)
	}
}

func TestLogRequest_OTelFieldNames(t *testing.T) {
	ctx := ctxkeys.WithAuditEntry(context.Background(), makeEntry())

	output := captureLog(func(logger *slog.Logger) {
		NewLogger(logger, SamplingConfig{Rate: 1.0, ErrorRate: 1.0}).LogRequest(ctx)
	})

	if !strings.Contains(output, `"trace_id"`) {
		t.Errorf("trace_id not found in output: %s", output)
	}
	for _, bad := range []string{"traceId", "traceID", "channelId", "conversationId"} {
		if strings.Contains(output, `"`+bad+`"`) {
			t.Errorf("found non-OTel camelCase field %q in output: %s", bad, output)
		}
	}
	if !strings.Contains(output, `"turn.channel_id"`) {
		t.Errorf("dotted attribute 'turn.channel_id' not found in output: %s", output)
	}
}

func TestNewLogger_NilLogger(t *testing.T) {
	l := NewLogger(nil, SamplingConfig{Rate: 1.0})
	l.Log(context.Background(), makeEntry())
}

// ── Sampling ──

func TestSampling_AlwaysLog(t *testing.T) {
	s := SamplingConfig{Rate: 1.0, ErrorRate: 1.0}
	for i := 0; i < 100; i++ {
		if !s.ShouldLog(StatusOK) {
			t.Fatalf("Rate=1.0 should always log, failed at iteration %d", i)
		}
	}
}

func TestSampling_NeverLog(t *testing.T) {
	s := SamplingConfig{Rate: 0.0, ErrorRate: 0.0}
	for i := 0; i < 100; i++ {
		if s.ShouldLog(StatusOK) || s.ShouldLog(StatusError) {
			t.Fatalf("zero rates should never log, passed at iteration %d", i)
		}
	}
}

func TestSampling_ErrorAlwaysLog(t *testing.T) {
	s := SamplingConfig{Rate: 0.0, ErrorRate: 1.0}
	for i := 0; i < 100; i++ {
		if s.ShouldLog(StatusOK) {
			t.Errorf("Rate=0.0 should never log ok, passed at iteration %d", i)
		}
		if !s.ShouldLog(StatusError) {
			t.Errorf("ErrorRate=1.0 should always log errors, failed at iteration %d", i)
		}
		if !s.ShouldLog(StatusRejected) {
			t.Errorf("ErrorRate=1.0 should always log rejected, failed at iteration %d", i)
		}
	}
}

func TestSampling_HalfRate(t *testing.T) {
	s := SamplingConfig{Rate: 0.5, ErrorRate: 1.0}
	count := 0
	const n = 1000
	for i := 0; i < n; i++ {
		if s.ShouldLog(StatusOK) {
			count++
		}
	}
	// Expect roughly 500, allow 400-600.
	if count < 400 || count > 600 {
		t.Errorf("Rate=0.5: expected 400-600 logs out of 1000, got %d", count)
	}
}
