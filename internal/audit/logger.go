// Package audit records what the relay did: sampled structured audit logs
// for every HTTP request and turn, and Prometheus metrics.
package audit

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/vivars7/skillrelay/internal/ctxkeys"
)

// Audit statuses.
const (
	StatusOK       = "ok"
	StatusRejected = "rejected"
	StatusError    = "error"
)

// Logger writes OpenTelemetry-compatible structured audit records.
type Logger struct {
	slogger  *slog.Logger
	sampling SamplingConfig
	now      func() time.Time
}

// NewLogger creates an audit logger with the given sampling configuration.
func NewLogger(slogger *slog.Logger, sampling SamplingConfig) *Logger {
	if slogger == nil {
		slogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Logger{slogger: slogger, sampling: sampling, now: time.Now}
}

// LogRequest logs the audit entry carried by ctx, if any.
func (l *Logger) LogRequest(ctx context.Context) {
	entry, ok := ctxkeys.AuditEntryFrom(ctx)
	if !ok {
		return
	}
	l.Log(ctx, entry)
}

// Log writes entry subject to sampling. Attribute names follow OTel
// conventions: snake_case top-level ids and dotted attributes.
func (l *Logger) Log(ctx context.Context, entry *ctxkeys.AuditEntry) {
	if !l.sampling.ShouldLog(entry.Status) {
		return
	}

	var elapsed time.Duration
	if !entry.StartTime.IsZero() {
		elapsed = l.now().Sub(entry.StartTime)
	}

	turnAttrs := []any{
		slog.String("turn.route", entry.Route),
		slog.String("turn.channel_id", entry.ChannelID),
		slog.String("turn.activity_type", entry.ActivityType),
		slog.String("turn.conversation_id", entry.ConversationID),
		slog.String("turn.caller_id", entry.CallerID),
		slog.String("turn.status", entry.Status),
		slog.Time("turn.start_time", entry.StartTime),
		slog.Int64("turn.duration_ms", elapsed.Milliseconds()),
	}
	if entry.SkillID != "" {
		turnAttrs = append(turnAttrs, slog.String("turn.skill_id", entry.SkillID))
	}
	if entry.StatusCode != 0 {
		turnAttrs = append(turnAttrs, slog.Int("http.status_code", entry.StatusCode))
	}
	if entry.Error != "" {
		turnAttrs = append(turnAttrs, slog.String("turn.error", entry.Error))
	}

	level := slog.LevelInfo
	if entry.Status == StatusError {
		level = slog.LevelWarn
	}
	l.slogger.LogAttrs(ctx, level, "audit",
		slog.String("trace_id", entry.TraceID),
		slog.Group("attributes", turnAttrs...),
	)
}
