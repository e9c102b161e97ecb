package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/vivars7/skillrelay/internal/activity"
	"github.com/vivars7/skillrelay/internal/bot"
	"github.com/vivars7/skillrelay/internal/connector"
	relayerrors "github.com/vivars7/skillrelay/internal/errors"
)

func connectorFor(tc *bot.TurnContext) (connector.ConnectorClient, error) {
	cc, ok := bot.GetState(tc.TurnState(), bot.ConnectorClientKey)
	if !ok || cc == nil {
		return nil, fmt.Errorf("%w: turn has no connector client", relayerrors.ErrInvalidArgument)
	}
	return cc, nil
}

// SendActivities delivers activities strictly in order, one at a time.
// Delays pause delivery, invoke responses are stashed for ProcessTurnResults,
// and traces only reach the emulator. Slots that produced no channel
// response get a ResourceResponse with an empty id.
func (a *CloudAdapterBase) SendActivities(ctx context.Context, tc *bot.TurnContext, activities []*activity.Activity) ([]*activity.ResourceResponse, error) {
	if tc == nil {
		return nil, fmt.Errorf("%w: turn context is required", relayerrors.ErrInvalidArgument)
	}
	if len(activities) == 0 {
		return nil, fmt.Errorf("%w: at least one activity is required", relayerrors.ErrInvalidArgument)
	}

	responses := make([]*activity.ResourceResponse, len(activities))
	for i, act := range activities {
		if act == nil {
			return nil, fmt.Errorf("%w: activity %d is nil", relayerrors.ErrInvalidArgument, i)
		}
		act.ID = ""

		var (
			resp *activity.ResourceResponse
			err  error
		)
		switch {
		case act.Type == activity.TypeDelay:
			err = sleep(ctx, act)
		case act.Type == activity.TypeInvokeResponse:
			err = bot.SetState(tc.TurnState(), bot.InvokeResponseKey, act)
		case act.Type == activity.TypeTrace && tc.Activity().ChannelID != activity.ChannelEmulator:
			// traces are diagnostics for the emulator only
		default:
			resp, err = a.sendOne(ctx, tc, act)
		}
		if err != nil {
			return nil, err
		}
		if resp == nil {
			resp = &activity.ResourceResponse{}
		}
		responses[i] = resp
	}
	return responses, nil
}

func sleep(ctx context.Context, act *activity.Activity) error {
	d, err := act.DelayDuration()
	if err != nil {
		return fmt.Errorf("%w: %v", relayerrors.ErrInvalidActivity, err)
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *CloudAdapterBase) sendOne(ctx context.Context, tc *bot.TurnContext, act *activity.Activity) (*activity.ResourceResponse, error) {
	if act.Conversation == nil || act.Conversation.ID == "" {
		return nil, fmt.Errorf("%w: outbound activity has no conversation", relayerrors.ErrInvalidActivity)
	}
	cc, err := connectorFor(tc)
	if err != nil {
		return nil, err
	}
	if act.ReplyToID != "" {
		return cc.ReplyToActivity(ctx, act.Conversation.ID, act.ReplyToID, act)
	}
	return cc.SendToConversation(ctx, act.Conversation.ID, act)
}

// UpdateActivity replaces a previously sent activity using the turn's
// connector client.
func (a *CloudAdapterBase) UpdateActivity(ctx context.Context, tc *bot.TurnContext, act *activity.Activity) (*activity.ResourceResponse, error) {
	if act == nil || act.Conversation == nil || act.ID == "" {
		return nil, fmt.Errorf("%w: update needs an activity with id and conversation", relayerrors.ErrInvalidArgument)
	}
	cc, err := connectorFor(tc)
	if err != nil {
		return nil, err
	}
	return cc.UpdateActivity(ctx, act.Conversation.ID, act.ID, act)
}

// DeleteActivity deletes the activity ref points at using the turn's
// connector client.
func (a *CloudAdapterBase) DeleteActivity(ctx context.Context, tc *bot.TurnContext, ref activity.ConversationReference) error {
	if ref.ConversationID() == "" || ref.ActivityID == "" {
		return fmt.Errorf("%w: delete needs a conversation and activity id", relayerrors.ErrInvalidArgument)
	}
	cc, err := connectorFor(tc)
	if err != nil {
		return err
	}
	return cc.DeleteActivity(ctx, ref.ConversationID(), ref.ActivityID)
}
