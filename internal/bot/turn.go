package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vivars7/skillrelay/internal/activity"
)

// SendNext continues a send handler chain.
type SendNext func(ctx context.Context) ([]*activity.ResourceResponse, error)

// SendActivitiesHandler intercepts outbound activities. It may inspect or
// mutate activities, and must call next to let the send proceed.
type SendActivitiesHandler func(ctx context.Context, tc *TurnContext, activities []*activity.Activity, next SendNext) ([]*activity.ResourceResponse, error)

// UpdateNext continues an update handler chain.
type UpdateNext func(ctx context.Context) (*activity.ResourceResponse, error)

// UpdateActivityHandler intercepts activity updates.
type UpdateActivityHandler func(ctx context.Context, tc *TurnContext, a *activity.Activity, next UpdateNext) (*activity.ResourceResponse, error)

// DeleteNext continues a delete handler chain.
type DeleteNext func(ctx context.Context) error

// DeleteActivityHandler intercepts activity deletes.
type DeleteActivityHandler func(ctx context.Context, tc *TurnContext, ref activity.ConversationReference, next DeleteNext) error

// TurnContext carries one activity through one turn.
type TurnContext struct {
	adapter  Adapter
	activity *activity.Activity
	state    *TurnState

	responded atomic.Bool

	mu              sync.Mutex
	sendHandlers    []SendActivitiesHandler
	updateHandlers  []UpdateActivityHandler
	deleteHandlers  []DeleteActivityHandler
	bufferedReplies []*activity.Activity
}

// NewTurnContext creates the context for one turn over a.
func NewTurnContext(adapter Adapter, a *activity.Activity) *TurnContext {
	return &TurnContext{
		adapter:  adapter,
		activity: a,
		state:    NewTurnState(),
	}
}

// Activity returns the inbound activity.
func (tc *TurnContext) Activity() *activity.Activity { return tc.activity }

// Adapter returns the adapter running the turn.
func (tc *TurnContext) Adapter() Adapter { return tc.adapter }

// TurnState returns the turn-scoped registry.
func (tc *TurnContext) TurnState() *TurnState { return tc.state }

// Responded reports whether any send on this turn has succeeded.
func (tc *TurnContext) Responded() bool { return tc.responded.Load() }

// BufferedReplies returns the activities buffered for an expectReplies turn.
func (tc *TurnContext) BufferedReplies() []*activity.Activity {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return append([]*activity.Activity(nil), tc.bufferedReplies...)
}

// OnSendActivities appends a send interceptor. Handlers run in
// registration order.
func (tc *TurnContext) OnSendActivities(h SendActivitiesHandler) *TurnContext {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.sendHandlers = append(tc.sendHandlers, h)
	return tc
}

// OnUpdateActivity appends an update interceptor.
func (tc *TurnContext) OnUpdateActivity(h UpdateActivityHandler) *TurnContext {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.updateHandlers = append(tc.updateHandlers, h)
	return tc
}

// OnDeleteActivity appends a delete interceptor.
func (tc *TurnContext) OnDeleteActivity(h DeleteActivityHandler) *TurnContext {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.deleteHandlers = append(tc.deleteHandlers, h)
	return tc
}

// SendText sends a plain message.
func (tc *TurnContext) SendText(ctx context.Context, text string) (*activity.ResourceResponse, error) {
	return tc.SendActivity(ctx, activity.NewMessage(text))
}

// SendActivity sends a single activity.
func (tc *TurnContext) SendActivity(ctx context.Context, a *activity.Activity) (*activity.ResourceResponse, error) {
	if a == nil {
		return nil, errors.New("activity is required")
	}
	responses, err := tc.SendActivities(ctx, []*activity.Activity{a})
	if err != nil {
		return nil, err
	}
	if len(responses) == 0 {
		return nil, nil
	}
	return responses[0], nil
}

// SendActivities addresses activities to the sender of the inbound activity
// and sends them in order. Callers' activities are not modified.
func (tc *TurnContext) SendActivities(ctx context.Context, activities []*activity.Activity) ([]*activity.ResourceResponse, error) {
	if len(activities) == 0 {
		return nil, errors.New("at least one activity is required")
	}

	ref := tc.activity.GetConversationReference()
	outgoing := make([]*activity.Activity, 0, len(activities))
	for _, a := range activities {
		if a == nil {
			return nil, errors.New("activities must not contain nil")
		}
		out := a.Clone().ApplyConversationReference(ref, false)
		if out.Type == "" {
			out.Type = activity.TypeMessage
		}
		outgoing = append(outgoing, out)
	}

	tc.mu.Lock()
	handlers := append([]SendActivitiesHandler(nil), tc.sendHandlers...)
	tc.mu.Unlock()

	var run func(ctx context.Context, i int) ([]*activity.ResourceResponse, error)
	run = func(ctx context.Context, i int) ([]*activity.ResourceResponse, error) {
		if i == len(handlers) {
			return tc.deliver(ctx, outgoing)
		}
		return handlers[i](ctx, tc, outgoing, func(ctx context.Context) ([]*activity.ResourceResponse, error) {
			return run(ctx, i+1)
		})
	}

	responses, err := run(ctx, 0)
	if err != nil {
		return nil, err
	}
	tc.responded.Store(true)
	return responses, nil
}

// deliver either buffers activities for an expectReplies turn or hands them
// to the adapter.
func (tc *TurnContext) deliver(ctx context.Context, activities []*activity.Activity) ([]*activity.ResourceResponse, error) {
	if tc.activity.DeliveryMode != activity.DeliveryExpectReplies {
		return tc.adapter.SendActivities(ctx, tc, activities)
	}

	responses := make([]*activity.ResourceResponse, len(activities))
	for i, a := range activities {
		if a.Type == activity.TypeInvokeResponse {
			if err := SetState(tc.state, InvokeResponseKey, a); err != nil {
				return nil, err
			}
		} else {
			tc.mu.Lock()
			tc.bufferedReplies = append(tc.bufferedReplies, a)
			tc.mu.Unlock()
		}
		responses[i] = &activity.ResourceResponse{}
	}
	return responses, nil
}

// UpdateActivity replaces a previously sent activity.
func (tc *TurnContext) UpdateActivity(ctx context.Context, a *activity.Activity) (*activity.ResourceResponse, error) {
	if a == nil {
		return nil, errors.New("activity is required")
	}
	out := a.Clone().ApplyConversationReference(tc.activity.GetConversationReference(), false)

	tc.mu.Lock()
	handlers := append([]UpdateActivityHandler(nil), tc.updateHandlers...)
	tc.mu.Unlock()

	var run func(ctx context.Context, i int) (*activity.ResourceResponse, error)
	run = func(ctx context.Context, i int) (*activity.ResourceResponse, error) {
		if i == len(handlers) {
			return tc.adapter.UpdateActivity(ctx, tc, out)
		}
		return handlers[i](ctx, tc, out, func(ctx context.Context) (*activity.ResourceResponse, error) {
			return run(ctx, i+1)
		})
	}
	return run(ctx, 0)
}

// DeleteActivity deletes a previously sent activity in this conversation.
func (tc *TurnContext) DeleteActivity(ctx context.Context, activityID string) error {
	if activityID == "" {
		return errors.New("activity id is required")
	}
	ref := tc.activity.GetConversationReference()
	ref.ActivityID = activityID
	return tc.DeleteActivityByReference(ctx, ref)
}

// DeleteActivityByReference deletes the activity ref points at.
func (tc *TurnContext) DeleteActivityByReference(ctx context.Context, ref activity.ConversationReference) error {
	if ref.ActivityID == "" {
		return fmt.Errorf("conversation reference has no activity id")
	}

	tc.mu.Lock()
	handlers := append([]DeleteActivityHandler(nil), tc.deleteHandlers...)
	tc.mu.Unlock()

	var run func(ctx context.Context, i int) error
	run = func(ctx context.Context, i int) error {
		if i == len(handlers) {
			return tc.adapter.DeleteActivity(ctx, tc, ref)
		}
		return handlers[i](ctx, tc, ref, func(ctx context.Context) error {
			return run(ctx, i+1)
		})
	}
	return run(ctx, 0)
}
