// Package bots holds the bot logic shipped with the relay.
package bots

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/vivars7/skillrelay/internal/activity"
	"github.com/vivars7/skillrelay/internal/bot"
	relayerrors "github.com/vivars7/skillrelay/internal/errors"
	"github.com/vivars7/skillrelay/internal/oauth"
	"github.com/vivars7/skillrelay/internal/skills"
	"github.com/vivars7/skillrelay/internal/storage"
)

// StateKeyPrefix prefixes the per-conversation documents the root bot keeps.
const StateKeyPrefix = "rootbot/"

// Replies the root bot sends.
const (
	msgHelp           = "Commands: signin, signout, skills, skill <id> <text>, stop. Anything else is echoed."
	msgWelcome        = "Hello and welcome! Type help to see what I can do."
	msgSignedIn       = "You are signed in."
	msgAlreadySignIn  = "You are already signed in."
	msgSignedOut      = "You have been signed out."
	msgSignInTimeout  = "Sign-in timed out. Type signin to try again."
	msgOAuthDisabled  = "Sign-in is not configured for this bot."
	msgSkillsDisabled = "No skills are configured for this bot."
	msgSkillUsage     = "Usage: skill <id> <text>"
)

// SkillForwarder delegates to skills. *skills.Forwarder satisfies it.
type SkillForwarder interface {
	Forward(ctx context.Context, tc *bot.TurnContext, skillID, convID string, a *activity.Activity) (*skills.ForwardResult, error)
	SkillIDs() []string
}

// ConversationState is persisted per channel conversation.
type ConversationState struct {
	// SignInExpires is set while a sign-in prompt is outstanding.
	SignInExpires time.Time `json:"signInExpires,omitzero"`
	// ActiveSkill receives the user's messages until it ends the
	// conversation or the user types stop.
	ActiveSkill string `json:"activeSkill,omitempty"`
	// SkillConversationID is the skill conversation the active skill is
	// reached through.
	SkillConversationID string `json:"skillConversationId,omitempty"`
}

func (s ConversationState) empty() bool {
	return s.SignInExpires.IsZero() && s.ActiveSkill == "" && s.SkillConversationID == ""
}

func (s ConversationState) equal(o ConversationState) bool {
	return s.SignInExpires.Equal(o.SignInExpires) && s.ActiveSkill == o.ActiveSkill &&
		s.SkillConversationID == o.SkillConversationID
}

func (s *ConversationState) releaseSkill() {
	s.ActiveSkill = ""
	s.SkillConversationID = ""
}

// RootBot is the user-facing bot: it echoes, signs users in and out, and
// hands the conversation to a skill on request.
type RootBot struct {
	store     storage.Storage
	flow      *oauth.Flow
	forwarder SkillForwarder
	logger    *slog.Logger
}

// NewRootBot creates the root bot. flow and forwarder may be nil, which
// disables sign-in and skills respectively.
func NewRootBot(store storage.Storage, flow *oauth.Flow, forwarder SkillForwarder, logger *slog.Logger) *RootBot {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RootBot{store: store, flow: flow, forwarder: forwarder, logger: logger}
}

// StateKey returns the storage key for a's conversation.
func StateKey(a *activity.Activity) (string, error) {
	if a.Conversation == nil || a.Conversation.ID == "" {
		return "", fmt.Errorf("%w: activity has no conversation.id", relayerrors.ErrInvalidArgument)
	}
	return StateKeyPrefix + a.ChannelID + "/" + a.Conversation.ID, nil
}

// OnTurn implements bot.Bot.
func (b *RootBot) OnTurn(ctx context.Context, tc *bot.TurnContext) error {
	a := tc.Activity()
	key, err := StateKey(a)
	if err != nil {
		return err
	}
	state, _, err := storage.ReadOne[ConversationState](ctx, b.store, key)
	if err != nil {
		return fmt.Errorf("loading conversation state: %w", err)
	}
	before := state

	if err := b.dispatch(ctx, tc, &state); err != nil {
		return err
	}

	if state.equal(before) {
		return nil
	}
	if state.empty() {
		return b.store.Delete(ctx, []string{key})
	}
	return storage.WriteOne(ctx, b.store, key, state)
}

func (b *RootBot) dispatch(ctx context.Context, tc *bot.TurnContext, state *ConversationState) error {
	a := tc.Activity()

	if !state.SignInExpires.IsZero() && b.flow != nil && oauth.IsFlowActivity(a) {
		done, err := b.continueSignIn(ctx, tc, state)
		if err != nil || done {
			return err
		}
	}

	switch a.Type {
	case activity.TypeMessage:
		if state.ActiveSkill != "" {
			return b.onSkillMessage(ctx, tc, state)
		}
		return b.onMessage(ctx, tc, state)
	case activity.TypeEndOfConversation:
		return b.onSkillEnded(ctx, tc, state)
	case activity.TypeConversationUpdate:
		return b.onMembersAdded(ctx, tc)
	case activity.TypeEvent:
		if strings.HasPrefix(a.CallerID, activity.CallerIDBotToBotPrefix) {
			b.logger.Info("event from skill", "name", a.Name, "caller_id", a.CallerID)
		}
	}
	return nil
}

// continueSignIn feeds a to the pending flow. done reports whether the
// activity was consumed.
func (b *RootBot) continueSignIn(ctx context.Context, tc *bot.TurnContext, state *ConversationState) (bool, error) {
	token, err := b.flow.ContinueFlow(ctx, tc, state.SignInExpires)
	switch {
	case errors.Is(err, oauth.ErrFlowTimeout):
		state.SignInExpires = time.Time{}
		_, err := tc.SendText(ctx, msgSignInTimeout)
		return true, err
	case err != nil:
		return true, fmt.Errorf("continuing sign-in: %w", err)
	case token != nil:
		state.SignInExpires = time.Time{}
		_, err := tc.SendText(ctx, msgSignedIn)
		return true, err
	}
	// Invokes were answered by the flow; messages without a code fall
	// through to the regular commands.
	return tc.Activity().Type != activity.TypeMessage, nil
}

func (b *RootBot) onMessage(ctx context.Context, tc *bot.TurnContext, state *ConversationState) error {
	text := strings.TrimSpace(tc.Activity().Text)
	command, rest, _ := strings.Cut(text, " ")

	switch strings.ToLower(command) {
	case "help":
		_, err := tc.SendText(ctx, msgHelp)
		return err
	case "signin", "login":
		return b.signIn(ctx, tc, state)
	case "signout", "logout":
		return b.signOut(ctx, tc, state)
	case "skills":
		return b.listSkills(ctx, tc)
	case "skill":
		return b.startSkill(ctx, tc, state, strings.TrimSpace(rest))
	}
	_, err := tc.SendText(ctx, "Echo: "+text)
	return err
}

func (b *RootBot) signIn(ctx context.Context, tc *bot.TurnContext, state *ConversationState) error {
	if b.flow == nil {
		_, err := tc.SendText(ctx, msgOAuthDisabled)
		return err
	}
	prompt := activity.NewMessage(b.flow.Settings().Text)
	token, err := b.flow.BeginFlow(ctx, tc, prompt)
	if err != nil {
		return fmt.Errorf("starting sign-in: %w", err)
	}
	if token != nil {
		state.SignInExpires = time.Time{}
		_, err := tc.SendText(ctx, msgAlreadySignIn)
		return err
	}
	state.SignInExpires = b.flow.Expires()
	return nil
}

func (b *RootBot) signOut(ctx context.Context, tc *bot.TurnContext, state *ConversationState) error {
	if b.flow == nil {
		_, err := tc.SendText(ctx, msgOAuthDisabled)
		return err
	}
	if err := b.flow.SignOutUser(ctx, tc); err != nil {
		return fmt.Errorf("signing out: %w", err)
	}
	state.SignInExpires = time.Time{}
	_, err := tc.SendText(ctx, msgSignedOut)
	return err
}

func (b *RootBot) listSkills(ctx context.Context, tc *bot.TurnContext) error {
	if b.forwarder == nil || len(b.forwarder.SkillIDs()) == 0 {
		_, err := tc.SendText(ctx, msgSkillsDisabled)
		return err
	}
	_, err := tc.SendText(ctx, "Skills: "+strings.Join(b.forwarder.SkillIDs(), ", "))
	return err
}

func (b *RootBot) startSkill(ctx context.Context, tc *bot.TurnContext, state *ConversationState, args string) error {
	if b.forwarder == nil {
		_, err := tc.SendText(ctx, msgSkillsDisabled)
		return err
	}
	skillID, text, _ := strings.Cut(args, " ")
	if skillID == "" {
		_, err := tc.SendText(ctx, msgSkillUsage)
		return err
	}

	out := tc.Activity().Clone()
	out.Text = strings.TrimSpace(text)
	if state.ActiveSkill != skillID {
		state.SkillConversationID = ""
	}
	state.ActiveSkill = skillID
	return b.forward(ctx, tc, state, out)
}

func (b *RootBot) onSkillMessage(ctx context.Context, tc *bot.TurnContext, state *ConversationState) error {
	a := tc.Activity()
	if !strings.EqualFold(strings.TrimSpace(a.Text), "stop") {
		return b.forward(ctx, tc, state, a.Clone())
	}

	skillID, convID := state.ActiveSkill, state.SkillConversationID
	state.releaseSkill()
	eoc := a.Clone()
	eoc.Type = activity.TypeEndOfConversation
	eoc.Code = activity.EndCodeUserCancelled
	eoc.Text = ""
	if _, err := b.forwarder.Forward(ctx, tc, skillID, convID, eoc); err != nil {
		b.logger.Warn("ending skill conversation failed", "skill", skillID, "error", err)
	}
	_, err := tc.SendText(ctx, fmt.Sprintf("Stopped %s.", skillID))
	return err
}

// forward delegates out to the active skill. A skill the relay cannot
// reach or that refuses the activity is reported to the user and released.
func (b *RootBot) forward(ctx context.Context, tc *bot.TurnContext, state *ConversationState, out *activity.Activity) error {
	skillID := state.ActiveSkill
	res, err := b.forwarder.Forward(ctx, tc, skillID, state.SkillConversationID, out)
	switch {
	case errors.Is(err, relayerrors.ErrSkillNotFound):
		state.releaseSkill()
		_, err := tc.SendText(ctx, fmt.Sprintf("Unknown skill %q. Type skills to list them.", skillID))
		return err
	case err != nil:
		state.releaseSkill()
		b.logger.Error("skill delegation failed", "skill", skillID, "error", err)
		_, err := tc.SendText(ctx, fmt.Sprintf("%s is unavailable right now.", skillID))
		return err
	case !res.Response.IsSuccessStatusCode():
		state.releaseSkill()
		_, err := tc.SendText(ctx, fmt.Sprintf("%s rejected the request (status %d).", skillID, res.Response.Status))
		return err
	case res.Ended:
		state.releaseSkill()
	default:
		state.SkillConversationID = res.ConversationID
	}
	return nil
}

// onSkillEnded handles endOfConversation sent back by the active skill.
func (b *RootBot) onSkillEnded(ctx context.Context, tc *bot.TurnContext, state *ConversationState) error {
	a := tc.Activity()
	if !strings.HasPrefix(a.CallerID, activity.CallerIDBotToBotPrefix) || state.ActiveSkill == "" {
		return nil
	}
	skillID := state.ActiveSkill
	state.releaseSkill()

	msg := fmt.Sprintf("%s finished.", skillID)
	if a.Code != "" && a.Code != activity.EndCodeCompletedSuccessfully {
		msg = fmt.Sprintf("%s ended (%s).", skillID, a.Code)
	}
	_, err := tc.SendText(ctx, msg)
	return err
}

func (b *RootBot) onMembersAdded(ctx context.Context, tc *bot.TurnContext) error {
	a := tc.Activity()
	for _, m := range a.MembersAdded {
		if a.Recipient != nil && m.ID == a.Recipient.ID {
			continue
		}
		if _, err := tc.SendText(ctx, msgWelcome); err != nil {
			return err
		}
	}
	return nil
}
