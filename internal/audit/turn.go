package audit

import (
	"context"
	"errors"
	"time"

	"github.com/vivars7/skillrelay/internal/bot"
	"github.com/vivars7/skillrelay/internal/ctxkeys"
)

// TurnMiddleware is the bot-side half of auditing. It times each turn,
// records turn metrics and marks the request's AuditEntry as failed when the
// turn returns an error. Turns that run outside an HTTP request (proactive
// continuations started by the process itself) have no entry, so it logs
// those directly.
type TurnMiddleware struct {
	logger  *Logger
	metrics *Metrics
	now     func() time.Time
}

// NewTurnMiddleware creates a TurnMiddleware. Either argument may be nil.
func NewTurnMiddleware(logger *Logger, metrics *Metrics) *TurnMiddleware {
	return &TurnMiddleware{logger: logger, metrics: metrics, now: time.Now}
}

// OnTurn implements bot.Middleware.
func (m *TurnMiddleware) OnTurn(ctx context.Context, tc *bot.TurnContext, next bot.NextFunc) error {
	start := m.now()
	err := next(ctx)
	elapsed := m.now().Sub(start)

	a := tc.Activity()
	status := StatusOK
	if err != nil && !errors.Is(err, context.Canceled) {
		status = StatusError
	}
	if m.metrics != nil {
		m.metrics.RecordTurn(a.ChannelID, string(a.Type), status, elapsed)
	}

	entry, inRequest := ctxkeys.AuditEntryFrom(ctx)
	if !inRequest {
		entry = &ctxkeys.AuditEntry{Route: "proactive", StartTime: start}
	}
	if entry.ChannelID == "" {
		entry.ChannelID = a.ChannelID
	}
	if entry.ActivityType == "" {
		entry.ActivityType = string(a.Type)
	}
	if entry.ConversationID == "" && a.Conversation != nil {
		entry.ConversationID = a.Conversation.ID
	}
	if err != nil {
		entry.Error = err.Error()
		if status == StatusError {
			entry.Status = status
		}
	}
	if !inRequest && m.logger != nil {
		if entry.Status == "" {
			entry.Status = status
		}
		m.logger.Log(ctx, entry)
	}
	return err
}
