package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/vivars7/skillrelay/internal/activity"
	"github.com/vivars7/skillrelay/internal/auth"
	"github.com/vivars7/skillrelay/internal/bot"
	relayerrors "github.com/vivars7/skillrelay/internal/errors"
)

// CreateConversationEvent names the event a CreateConversation turn starts from.
const CreateConversationEvent = "CreateConversation"

// ContinueConversation resumes ref as the bot identified by appID.
func (a *CloudAdapterBase) ContinueConversation(ctx context.Context, appID string, ref activity.ConversationReference, callback bot.Callback) error {
	return a.ContinueConversationWithClaims(ctx, auth.NewAppIdentity(appID), ref, "", callback)
}

// ContinueConversationWithClaims resumes ref on behalf of claims. An empty
// audience is derived from the claims.
func (a *CloudAdapterBase) ContinueConversationWithClaims(ctx context.Context, claims *auth.ClaimsIdentity, ref activity.ConversationReference, audience string, callback bot.Callback) error {
	return a.ContinueConversationActivity(ctx, claims, ref.ContinuationActivity(), audience, callback)
}

// ContinueConversationActivity runs a proactive turn over a ready-made
// continuation activity. callback is the terminal step of the pipeline.
func (a *CloudAdapterBase) ContinueConversationActivity(ctx context.Context, claims *auth.ClaimsIdentity, continuation *activity.Activity, audience string, callback bot.Callback) error {
	if err := validateContinuation(continuation); err != nil {
		return err
	}
	if claims == nil {
		return fmt.Errorf("%w: claims identity is required", relayerrors.ErrInvalidArgument)
	}
	if callback == nil {
		return fmt.Errorf("%w: callback is required", relayerrors.ErrInvalidArgument)
	}
	if audience == "" {
		audience = OutgoingAudience(claims)
	}

	tc := bot.NewTurnContext(a, continuation)
	if err := a.provision(ctx, tc, claims, continuation.ServiceURL, audience, callback); err != nil {
		return err
	}
	return a.RunPipeline(ctx, tc, callback)
}

func validateContinuation(a *activity.Activity) error {
	switch {
	case a == nil:
		return fmt.Errorf("%w: continuation activity is required", relayerrors.ErrInvalidArgument)
	case a.Conversation == nil || a.Conversation.ID == "":
		return fmt.Errorf("%w: continuation activity has no conversation", relayerrors.ErrInvalidArgument)
	case a.ServiceURL == "":
		return fmt.Errorf("%w: continuation activity has no service url", relayerrors.ErrInvalidArgument)
	}
	return nil
}

// CreateConversation asks the channel to start a conversation and then runs
// a turn for it, starting from a CreateConversation event.
func (a *CloudAdapterBase) CreateConversation(ctx context.Context, appID, channelID, serviceURL, audience string, params *activity.ConversationParameters, callback bot.Callback) error {
	if serviceURL == "" {
		return fmt.Errorf("%w: service url is required", relayerrors.ErrInvalidArgument)
	}
	if params == nil {
		return fmt.Errorf("%w: conversation parameters are required", relayerrors.ErrInvalidArgument)
	}
	if callback == nil {
		return fmt.Errorf("%w: callback is required", relayerrors.ErrInvalidArgument)
	}

	claims := auth.NewAppIdentity(appID)
	if audience == "" {
		audience = auth.ChannelAudience
	}
	cc, err := a.factory.CreateConnectorClient(ctx, serviceURL, claims, audience)
	if err != nil {
		return fmt.Errorf("creating connector client: %w", err)
	}
	created, err := cc.CreateConversation(ctx, params)
	if err != nil {
		return fmt.Errorf("creating conversation: %w", err)
	}

	now := time.Now().UTC()
	event := &activity.Activity{
		Type:         activity.TypeEvent,
		Name:         CreateConversationEvent,
		ID:           created.ActivityID,
		Timestamp:    &now,
		ChannelID:    channelID,
		ServiceURL:   serviceURL,
		Conversation: &activity.ConversationAccount{ID: created.ID, TenantID: params.TenantID, IsGroup: params.IsGroup},
		Recipient:    params.Bot,
		ChannelData:  params.ChannelData,
	}
	if event.ID == "" {
		event.ID = activity.NewID()
	}
	if created.ServiceURL != "" {
		event.ServiceURL = created.ServiceURL
	}

	return a.ContinueConversationActivity(ctx, claims, event, audience, callback)
}
