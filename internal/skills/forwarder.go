package skills

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/vivars7/skillrelay/internal/activity"
	"github.com/vivars7/skillrelay/internal/bot"
	"github.com/vivars7/skillrelay/internal/channel"
	"github.com/vivars7/skillrelay/internal/ctxkeys"
)

// Skill post outcomes reported to a Recorder.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Recorder observes skill posts. *audit.Metrics satisfies it.
type Recorder interface {
	RecordSkillPost(skillID, outcome string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordSkillPost(string, string, time.Duration) {}

// ForwardResult describes one delegated activity.
type ForwardResult struct {
	// ConversationID is the skill conversation id used for the post. Pass it
	// back to Forward to keep delegating within the same skill conversation.
	ConversationID string
	// Response is the skill's HTTP answer.
	Response *activity.InvokeResponse
	// Ended is set when the skill conversation is over: an expectReplies
	// answer contained endOfConversation, or a was endOfConversation itself.
	// The mapping has been deleted.
	Ended bool
}

// Forwarder delegates activities from the current turn to skills.
type Forwarder struct {
	host     *channel.Host
	ids      ConversationIDFactory
	recorder Recorder
	logger   *slog.Logger
}

// NewForwarder creates a Forwarder. recorder may be nil.
func NewForwarder(host *channel.Host, ids ConversationIDFactory, recorder Recorder, logger *slog.Logger) *Forwarder {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Forwarder{host: host, ids: ids, recorder: recorder, logger: logger}
}

// Forward posts a to the named skill inside the conversation of tc. convID
// continues an earlier skill conversation; when it is empty or no longer
// mapped, a new skill conversation id is minted that maps back to the turn's
// inbound activity. When a asks for expectReplies the skill's replies are
// relayed into the turn.
func (f *Forwarder) Forward(ctx context.Context, tc *bot.TurnContext, skillID, convID string, a *activity.Activity) (*ForwardResult, error) {
	ch, skill, err := f.host.GetChannel(skillID)
	if err != nil {
		return nil, err
	}
	if entry, ok := ctxkeys.AuditEntryFrom(ctx); ok {
		entry.SkillID = skillID
	}

	convID, err = f.conversationID(ctx, tc, skillID, convID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := ch.PostActivity(ctx, skill.AppID, skill.ResourceURL, skill.Endpoint, f.host.HostEndpoint(), convID, a)
	elapsed := time.Since(start)
	if err != nil {
		f.recorder.RecordSkillPost(skillID, OutcomeError, elapsed)
		if derr := f.ids.DeleteConversationReference(context.WithoutCancel(ctx), convID); derr != nil {
			f.logger.Warn("dropping skill conversation failed", "conversation_id", convID, "error", derr)
		}
		return nil, fmt.Errorf("forwarding to skill %s: %w", skillID, err)
	}

	result := &ForwardResult{ConversationID: convID, Response: resp}
	if !resp.IsSuccessStatusCode() {
		f.recorder.RecordSkillPost(skillID, OutcomeRejected, elapsed)
		return result, nil
	}
	f.recorder.RecordSkillPost(skillID, OutcomeOK, elapsed)

	f.logger.Debug("activity forwarded to skill",
		"skill", skillID,
		"conversation_id", convID,
		"status", resp.Status,
		"duration_ms", elapsed.Milliseconds(),
	)

	if a.Type == activity.TypeEndOfConversation {
		result.Ended = true
		return result, f.ids.DeleteConversationReference(ctx, convID)
	}
	if a.DeliveryMode == activity.DeliveryExpectReplies {
		ended, err := f.relayReplies(ctx, tc, convID, resp)
		if err != nil {
			return result, err
		}
		result.Ended = ended
	}
	return result, nil
}

// conversationID reuses convID while its mapping exists and mints a new one
// otherwise.
func (f *Forwarder) conversationID(ctx context.Context, tc *bot.TurnContext, skillID, convID string) (string, error) {
	if convID != "" {
		_, found, err := f.ids.GetBotConversationReference(ctx, convID)
		if err != nil {
			return "", err
		}
		if found {
			return convID, nil
		}
	}
	scope, _ := bot.GetState(tc.TurnState(), bot.OAuthScopeKey)
	return f.ids.CreateConversationID(ctx, ConversationIDFactoryOptions{
		Activity:   tc.Activity(),
		SkillID:    skillID,
		OAuthScope: scope,
		FromBotID:  f.host.HostAppID(),
	})
}

// relayReplies sends the activities of an expectReplies answer into the
// turn. endOfConversation is not relayed; it ends the skill conversation.
func (f *Forwarder) relayReplies(ctx context.Context, tc *bot.TurnContext, convID string, resp *activity.InvokeResponse) (bool, error) {
	typed, err := activity.DecodeInvokeResponse[activity.ExpectedReplies](resp)
	if err != nil {
		return false, fmt.Errorf("decoding expected replies: %w", err)
	}

	ended := false
	var relay []*activity.Activity
	for _, reply := range typed.Body.Activities {
		if reply == nil {
			continue
		}
		if reply.Type == activity.TypeEndOfConversation {
			ended = true
			continue
		}
		relay = append(relay, reply)
	}

	if len(relay) > 0 {
		if _, err := tc.SendActivities(ctx, relay); err != nil {
			return ended, fmt.Errorf("relaying skill replies: %w", err)
		}
	}
	if ended {
		if err := f.ids.DeleteConversationReference(ctx, convID); err != nil {
			return ended, err
		}
	}
	return ended, nil
}

// SkillIDs lists the registered skills in id order.
func (f *Forwarder) SkillIDs() []string {
	skills := f.host.Skills()
	ids := make([]string, len(skills))
	for i, s := range skills {
		ids[i] = s.ID
	}
	return ids
}
