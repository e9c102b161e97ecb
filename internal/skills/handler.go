package skills

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/vivars7/skillrelay/internal/activity"
	"github.com/vivars7/skillrelay/internal/auth"
	"github.com/vivars7/skillrelay/internal/bot"
	relayerrors "github.com/vivars7/skillrelay/internal/errors"
)

// ConversationReferenceKey holds the resolved mapping during a skill callback turn.
var ConversationReferenceKey = bot.NewStateKey[BotConversationReference]("skills.conversationReference")

// applicationCommandPrefix marks command activities that are return values
// for the channel rather than input for the bot.
const applicationCommandPrefix = "application/"

// ContinuationAdapter runs proactive turns. *adapter.CloudAdapterBase
// satisfies it.
type ContinuationAdapter interface {
	ContinueConversationWithClaims(ctx context.Context, claims *auth.ClaimsIdentity, ref activity.ConversationReference, audience string, callback bot.Callback) error
}

// Handler serves the channel-service operations a skill calls back on. Each
// operation resolves the skill conversation id and continues the caller's
// original conversation with its addressing restored.
type Handler struct {
	adapter ContinuationAdapter
	bot     bot.Bot
	ids     ConversationIDFactory
	logger  *slog.Logger
}

// NewHandler creates a Handler that forwards skill traffic to b.
func NewHandler(adapter ContinuationAdapter, b bot.Bot, ids ConversationIDFactory, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{adapter: adapter, bot: b, ids: ids, logger: logger}
}

// OnSendToConversation handles a skill sending an activity into the
// conversation.
func (h *Handler) OnSendToConversation(ctx context.Context, claims *auth.ClaimsIdentity, conversationID string, a *activity.Activity) (*activity.ResourceResponse, error) {
	return h.processActivity(ctx, claims, conversationID, "", a)
}

// OnReplyToActivity handles a skill replying to an activity.
func (h *Handler) OnReplyToActivity(ctx context.Context, claims *auth.ClaimsIdentity, conversationID, activityID string, a *activity.Activity) (*activity.ResourceResponse, error) {
	return h.processActivity(ctx, claims, conversationID, activityID, a)
}

// OnUpdateActivity updates an activity the skill sent earlier.
func (h *Handler) OnUpdateActivity(ctx context.Context, claims *auth.ClaimsIdentity, conversationID, activityID string, a *activity.Activity) (*activity.ResourceResponse, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: activity is required", relayerrors.ErrInvalidArgument)
	}
	var resp *activity.ResourceResponse
	err := h.continueTurn(ctx, claims, conversationID, func(ctx context.Context, tc *bot.TurnContext, ref BotConversationReference) error {
		tc.Activity().ID = activityID
		update := a.Clone()
		update.ID = activityID
		var err error
		resp, err = tc.UpdateActivity(ctx, update)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// OnDeleteActivity deletes an activity the skill sent earlier.
func (h *Handler) OnDeleteActivity(ctx context.Context, claims *auth.ClaimsIdentity, conversationID, activityID string) error {
	if activityID == "" {
		return fmt.Errorf("%w: activity id is required", relayerrors.ErrInvalidArgument)
	}
	return h.continueTurn(ctx, claims, conversationID, func(ctx context.Context, tc *bot.TurnContext, ref BotConversationReference) error {
		return tc.DeleteActivity(ctx, activityID)
	})
}

// OnGetConversationMembers lists the members of the caller's conversation.
func (h *Handler) OnGetConversationMembers(ctx context.Context, claims *auth.ClaimsIdentity, conversationID string) ([]activity.ChannelAccount, error) {
	var members []activity.ChannelAccount
	err := h.continueTurn(ctx, claims, conversationID, func(ctx context.Context, tc *bot.TurnContext, ref BotConversationReference) error {
		cc, ok := bot.GetState(tc.TurnState(), bot.ConnectorClientKey)
		if !ok {
			return fmt.Errorf("%w: turn has no connector client", relayerrors.ErrInvalidArgument)
		}
		var err error
		members, err = cc.GetConversationMembers(ctx, ref.ConversationReference.ConversationID())
		return err
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// OnGetConversationMember looks up one member of the caller's conversation.
func (h *Handler) OnGetConversationMember(ctx context.Context, claims *auth.ClaimsIdentity, conversationID, memberID string) (*activity.ChannelAccount, error) {
	if memberID == "" {
		return nil, fmt.Errorf("%w: member id is required", relayerrors.ErrInvalidArgument)
	}
	var member *activity.ChannelAccount
	err := h.continueTurn(ctx, claims, conversationID, func(ctx context.Context, tc *bot.TurnContext, ref BotConversationReference) error {
		cc, ok := bot.GetState(tc.TurnState(), bot.ConnectorClientKey)
		if !ok {
			return fmt.Errorf("%w: turn has no connector client", relayerrors.ErrInvalidArgument)
		}
		var err error
		member, err = cc.GetConversationMember(ctx, ref.ConversationReference.ConversationID(), memberID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// ── Unsupported operations ──

// Unsupported reports a channel-service operation skills may not use.
func Unsupported(op string) error {
	return fmt.Errorf("%w: %s", relayerrors.ErrNotImplemented, op)
}

// OnCreateConversation is not available to skills.
func (h *Handler) OnCreateConversation(context.Context, *auth.ClaimsIdentity, *activity.ConversationParameters) (*activity.ConversationResourceResponse, error) {
	return nil, Unsupported("create conversation")
}

// OnGetConversations is not available to skills.
func (h *Handler) OnGetConversations(context.Context, *auth.ClaimsIdentity, string) error {
	return Unsupported("get conversations")
}

// OnGetActivityMembers is not available to skills.
func (h *Handler) OnGetActivityMembers(context.Context, *auth.ClaimsIdentity, string, string) ([]activity.ChannelAccount, error) {
	return nil, Unsupported("get activity members")
}

// OnGetConversationPagedMembers is not available to skills.
func (h *Handler) OnGetConversationPagedMembers(context.Context, *auth.ClaimsIdentity, string) error {
	return Unsupported("get paged members")
}

// OnDeleteConversationMember is not available to skills.
func (h *Handler) OnDeleteConversationMember(context.Context, *auth.ClaimsIdentity, string, string) error {
	return Unsupported("delete conversation member")
}

// OnSendConversationHistory is not available to skills.
func (h *Handler) OnSendConversationHistory(context.Context, *auth.ClaimsIdentity, string) error {
	return Unsupported("send conversation history")
}

// OnUploadAttachment is not available to skills.
func (h *Handler) OnUploadAttachment(context.Context, *auth.ClaimsIdentity, string) error {
	return Unsupported("upload attachment")
}

// ── Turn plumbing ──

type skillCallback func(ctx context.Context, tc *bot.TurnContext, ref BotConversationReference) error

// continueTurn resolves conversationID and runs fn in a proactive turn on
// the caller's conversation. A missing mapping is ErrConversationNotFound.
func (h *Handler) continueTurn(ctx context.Context, claims *auth.ClaimsIdentity, conversationID string, fn skillCallback) error {
	if claims == nil {
		return fmt.Errorf("%w: claims identity is required", relayerrors.ErrInvalidArgument)
	}
	ref, found, err := h.ids.GetBotConversationReference(ctx, conversationID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", relayerrors.ErrConversationNotFound, conversationID)
	}

	callback := func(ctx context.Context, tc *bot.TurnContext) error {
		if err := bot.SetState(tc.TurnState(), ConversationReferenceKey, ref); err != nil {
			return err
		}
		tc.Activity().CallerID = activity.CallerIDBotToBotPrefix + claims.AppID()
		return fn(ctx, tc, ref)
	}
	return h.adapter.ContinueConversationWithClaims(ctx, claims, ref.ConversationReference, ref.OAuthScope, callback)
}

func (h *Handler) processActivity(ctx context.Context, claims *auth.ClaimsIdentity, conversationID, replyToActivityID string, a *activity.Activity) (*activity.ResourceResponse, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: activity is required", relayerrors.ErrInvalidArgument)
	}

	var resp *activity.ResourceResponse
	err := h.continueTurn(ctx, claims, conversationID, func(ctx context.Context, tc *bot.TurnContext, ref BotConversationReference) error {
		a.ApplyConversationReference(ref.ConversationReference, false)
		tc.Activity().ID = replyToActivityID

		h.logger.Debug("skill activity received",
			"conversation_id", conversationID,
			"type", a.Type,
			"caller_id", tc.Activity().CallerID,
		)

		switch a.Type {
		case activity.TypeEndOfConversation:
			if err := h.ids.DeleteConversationReference(ctx, conversationID); err != nil {
				return err
			}
			return h.sendToBot(ctx, tc, a)
		case activity.TypeEvent:
			return h.sendToBot(ctx, tc, a)
		case activity.TypeCommand, activity.TypeCommandResult:
			if !strings.HasPrefix(a.Name, applicationCommandPrefix) {
				return h.sendToBot(ctx, tc, a)
			}
		}

		var err error
		resp, err = tc.SendActivity(ctx, a)
		return err
	})
	if err != nil {
		return nil, err
	}

	if resp == nil || resp.ID == "" {
		return &activity.ResourceResponse{ID: uuid.NewString()}, nil
	}
	return resp, nil
}

// sendToBot restores the skill's activity content on the turn and runs the bot.
func (h *Handler) sendToBot(ctx context.Context, tc *bot.TurnContext, a *activity.Activity) error {
	applySkillActivity(tc.Activity(), a)
	return h.bot.OnTurn(ctx, tc)
}

func applySkillActivity(dst, src *activity.Activity) {
	dst.ChannelData = src.ChannelData
	dst.Code = src.Code
	dst.Entities = src.Entities
	dst.Locale = src.Locale
	dst.LocalTimestamp = src.LocalTimestamp
	dst.Name = src.Name
	dst.Extra = src.Extra
	dst.RelatesTo = src.RelatesTo
	dst.ReplyToID = src.ReplyToID
	dst.Timestamp = src.Timestamp
	dst.Text = src.Text
	dst.Type = src.Type
	dst.Value = src.Value
}
