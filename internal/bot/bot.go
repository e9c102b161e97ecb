// Package bot contains the per-turn machinery: TurnContext, the typed
// TurnState registry, and the middleware pipeline that wraps a bot's turn
// handler.
package bot

import (
	"context"

	"github.com/vivars7/skillrelay/internal/activity"
	"github.com/vivars7/skillrelay/internal/auth"
	"github.com/vivars7/skillrelay/internal/connector"
)

// Callback is the terminal step of a turn pipeline.
type Callback func(ctx context.Context, tc *TurnContext) error

// OnTurn lets a Callback stand in for a Bot.
func (f Callback) OnTurn(ctx context.Context, tc *TurnContext) error {
	return f(ctx, tc)
}

// Bot handles turns.
type Bot interface {
	OnTurn(ctx context.Context, tc *TurnContext) error
}

// Adapter is the part of an adapter a TurnContext delegates outbound
// operations to.
type Adapter interface {
	SendActivities(ctx context.Context, tc *TurnContext, activities []*activity.Activity) ([]*activity.ResourceResponse, error)
	UpdateActivity(ctx context.Context, tc *TurnContext, a *activity.Activity) (*activity.ResourceResponse, error)
	DeleteActivity(ctx context.Context, tc *TurnContext, ref activity.ConversationReference) error
}

// Well-known TurnState keys populated by the adapter.
var (
	ClaimsIdentityKey        = NewStateKey[*auth.ClaimsIdentity]("bot.claimsIdentity")
	ConnectorClientKey       = NewStateKey[connector.ConnectorClient]("bot.connectorClient")
	UserTokenClientKey       = NewStateKey[connector.UserTokenClient]("bot.userTokenClient")
	OAuthScopeKey            = NewStateKey[string]("bot.oauthScope")
	BotCallbackKey           = NewStateKey[Callback]("bot.callback")
	ChannelServiceFactoryKey = NewStateKey[connector.ChannelServiceClientFactory]("bot.channelServiceFactory")
	InvokeResponseKey        = NewStateKey[*activity.Activity]("bot.invokeResponse")
)
