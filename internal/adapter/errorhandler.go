package adapter

import (
	"context"
	"log/slog"

	"github.com/vivars7/skillrelay/internal/bot"
)

const (
	// TurnErrorMessage is what users see when a turn fails.
	TurnErrorMessage = "The bot encountered an error or bug."

	turnErrorTraceName      = "OnTurnError Trace"
	turnErrorTraceValueType = "https://www.botframework.com/schemas/error"
	turnErrorTraceLabel     = "TurnError"
)

// DefaultTurnErrorHandler logs the fault, tells the user something went
// wrong and sends a trace carrying the error text. Traces are dropped by
// SendActivities everywhere except the emulator.
func DefaultTurnErrorHandler(logger *slog.Logger) TurnErrorHandler {
	return func(ctx context.Context, tc *bot.TurnContext, err error) error {
		act := tc.Activity()
		if logger != nil {
			logger.Error("unhandled turn error",
				"error", err,
				"channel_id", act.ChannelID,
				"activity_type", act.Type,
			)
		}
		if _, serr := tc.SendText(ctx, TurnErrorMessage); serr != nil {
			return serr
		}
		trace := act.CreateTrace(turnErrorTraceName, err.Error(), turnErrorTraceValueType, turnErrorTraceLabel)
		_, serr := tc.SendActivity(ctx, trace)
		return serr
	}
}
