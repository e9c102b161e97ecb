// Package channel is the sending half of skill delegation: it posts
// activities to remote skills with rewritten addressing and bearer auth, and
// keeps the registry of skills this bot may delegate to.
package channel

import (
	"context"
	"time"

	"github.com/vivars7/skillrelay/internal/activity"
	"github.com/vivars7/skillrelay/internal/auth"
)

// ConversationIDHeader carries the skill conversation id on every post.
const ConversationIDHeader = "x-ms-conversation-id"

// HTTPFactoryName is the name skills use to select the HTTP channel factory.
const HTTPFactoryName = "http"

// Channel posts an activity to a skill.
type Channel interface {
	// PostActivity sends a copy of a to endpoint as conversationID. Replies
	// come back on serviceURL. A non-2xx answer is returned as a response
	// carrying its status; only transport failures are errors.
	PostActivity(ctx context.Context, toBotID, toBotResource, endpoint, serviceURL, conversationID string, a *activity.Activity) (*activity.InvokeResponse, error)
}

// Factory builds channels bound to a token provider.
type Factory interface {
	// CreateChannel returns a channel that authenticates with tokens. A
	// positive timeout bounds each post.
	CreateChannel(tokens auth.AccessTokenProvider, timeout time.Duration) Channel
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(tokens auth.AccessTokenProvider, timeout time.Duration) Channel

// CreateChannel calls f.
func (f FactoryFunc) CreateChannel(tokens auth.AccessTokenProvider, timeout time.Duration) Channel {
	return f(tokens, timeout)
}

// PostActivityAs posts a and decodes the response body into T. Bodies of
// failed calls that do not decode leave Body at its zero value.
func PostActivityAs[T any](ctx context.Context, ch Channel, toBotID, toBotResource, endpoint, serviceURL, conversationID string, a *activity.Activity) (*activity.InvokeResponseOf[T], error) {
	resp, err := ch.PostActivity(ctx, toBotID, toBotResource, endpoint, serviceURL, conversationID, a)
	if err != nil {
		return nil, err
	}
	typed, err := activity.DecodeInvokeResponse[T](resp)
	if err != nil {
		if resp.IsSuccessStatusCode() {
			return nil, err
		}
		return &activity.InvokeResponseOf[T]{Status: resp.Status}, nil
	}
	return typed, nil
}
