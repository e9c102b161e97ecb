// Package connector holds the clients a turn uses to call back into the
// channel service (activities, conversations, members) and the token service
// (user tokens, sign-in resources), plus the factory that builds them for a
// given caller identity and audience.
package connector

import (
	"context"
	"fmt"

	"github.com/vivars7/skillrelay/internal/activity"
	"github.com/vivars7/skillrelay/internal/auth"
)

// ConnectorClient calls the channel service for one service URL.
type ConnectorClient interface {
	SendToConversation(ctx context.Context, conversationID string, a *activity.Activity) (*activity.ResourceResponse, error)
	ReplyToActivity(ctx context.Context, conversationID, activityID string, a *activity.Activity) (*activity.ResourceResponse, error)
	UpdateActivity(ctx context.Context, conversationID, activityID string, a *activity.Activity) (*activity.ResourceResponse, error)
	DeleteActivity(ctx context.Context, conversationID, activityID string) error
	CreateConversation(ctx context.Context, params *activity.ConversationParameters) (*activity.ConversationResourceResponse, error)
	GetConversationMembers(ctx context.Context, conversationID string) ([]activity.ChannelAccount, error)
	GetConversationMember(ctx context.Context, conversationID, memberID string) (*activity.ChannelAccount, error)
}

// UserTokenClient calls the token service on behalf of the bot.
type UserTokenClient interface {
	// GetUserToken returns nil, nil when the user has no token for the connection.
	GetUserToken(ctx context.Context, userID, connectionName, channelID, magicCode string) (*activity.TokenResponse, error)
	GetSignInResource(ctx context.Context, connectionName string, a *activity.Activity, finalRedirect string) (*activity.SignInResource, error)
	SignOutUser(ctx context.Context, userID, connectionName, channelID string) error
	ExchangeToken(ctx context.Context, userID, connectionName, channelID string, req activity.TokenExchangeRequest) (*activity.TokenResponse, error)
}

// ChannelServiceClientFactory builds clients scoped to a caller identity and
// the audience outbound tokens must target.
type ChannelServiceClientFactory interface {
	CreateConnectorClient(ctx context.Context, serviceURL string, claims *auth.ClaimsIdentity, audience string) (ConnectorClient, error)
	CreateUserTokenClient(ctx context.Context, claims *auth.ClaimsIdentity) (UserTokenClient, error)
}

// HTTPError is a non-2xx answer from the channel or token service.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("channel service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("channel service returned %d: %s", e.StatusCode, e.Body)
}
