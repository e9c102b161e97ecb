package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vivars7/skillrelay/internal/bot"
)

// Span attribute keys.
const (
	AttrChannelID      = attribute.Key("turn.channel_id")
	AttrActivityType   = attribute.Key("turn.activity_type")
	AttrConversationID = attribute.Key("turn.conversation_id")
	AttrCallerID       = attribute.Key("turn.caller_id")
	AttrResponded      = attribute.Key("turn.responded")
)

// TracingMiddleware wraps each turn in a span named "turn <type>".
type TracingMiddleware struct {
	tracer trace.Tracer
}

// NewTracingMiddleware creates a TracingMiddleware. A nil tracer uses the
// global provider.
func NewTracingMiddleware(tracer trace.Tracer) *TracingMiddleware {
	if tracer == nil {
		tracer = Tracer(nil)
	}
	return &TracingMiddleware{tracer: tracer}
}

// OnTurn implements bot.Middleware.
func (m *TracingMiddleware) OnTurn(ctx context.Context, tc *bot.TurnContext, next bot.NextFunc) error {
	a := tc.Activity()
	attrs := []attribute.KeyValue{
		AttrChannelID.String(a.ChannelID),
		AttrActivityType.String(string(a.Type)),
	}
	if a.Conversation != nil {
		attrs = append(attrs, AttrConversationID.String(a.Conversation.ID))
	}
	if a.CallerID != "" {
		attrs = append(attrs, AttrCallerID.String(a.CallerID))
	}

	ctx, span := m.tracer.Start(ctx, "turn "+string(a.Type),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	err := next(ctx)
	span.SetAttributes(AttrResponded.Bool(tc.Responded()))
	if err != nil && !errors.Is(err, context.Canceled) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
