// Package oauth implements the sign-in and token-exchange negotiation that
// rides on ordinary turns: prompting with a sign-in card, accepting magic
// codes, token-response events, verify-state and token-exchange invokes.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/vivars7/skillrelay/internal/activity"
	"github.com/vivars7/skillrelay/internal/bot"
	"github.com/vivars7/skillrelay/internal/connector"
	relayerrors "github.com/vivars7/skillrelay/internal/errors"
)

// DefaultTimeout is how long a prompted user has to finish signing in.
const DefaultTimeout = 15 * time.Minute

// ErrFlowTimeout is returned by ContinueFlow once the sign-in window has
// closed. The flow cannot be continued after it.
var ErrFlowTimeout = errors.New("oauth: sign-in flow timed out")

// Failure details sent back on rejected token-exchange invokes.
const (
	detailMissingRequest   = "The bot received an invoke that is missing a token exchange request value."
	detailConnectionChange = "The token exchange request names a connection the active sign-in flow does not expect."
	detailExchangeFailed   = "The bot is unable to exchange token. Proceed with regular login."
)

// Outcome labels reported through Options.OnOutcome.
const (
	OutcomeCached         = "cached"
	OutcomePrompted       = "prompted"
	OutcomeTokenReceived  = "token_received"
	OutcomeTimeout        = "timeout"
	OutcomeVerifyFailed   = "verify_failed"
	OutcomeExchangeFailed = "exchange_failed"
	OutcomeExchangeDenied = "exchange_rejected"
)

var magicCodePattern = regexp.MustCompile(`\d{6}`)

// Settings parameterize one sign-in negotiation.
type Settings struct {
	ConnectionName string
	Title          string
	Text           string
	Timeout        time.Duration
	// ShowSignInLink forces the sign-in link on (true) or off (false). Nil
	// leaves it to the channel.
	ShowSignInLink *bool
}

// Options holds optional collaborators.
type Options struct {
	Logger *slog.Logger
	// OnOutcome is called once per terminal step of the negotiation.
	OnOutcome func(outcome string)
	// Now overrides the clock.
	Now func() time.Time
}

// Flow runs the OAuth negotiation for one connection. It is stateless; the
// caller keeps the expiry returned by Expires between turns.
type Flow struct {
	settings  Settings
	logger    *slog.Logger
	onOutcome func(string)
	now       func() time.Time
}

// NewFlow creates a flow. The connection name is required.
func NewFlow(settings Settings, opts Options) (*Flow, error) {
	if settings.ConnectionName == "" {
		return nil, fmt.Errorf("%w: oauth connection name is required", relayerrors.ErrInvalidArgument)
	}
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}
	f := &Flow{
		settings:  settings,
		logger:    opts.Logger,
		onOutcome: opts.OnOutcome,
		now:       opts.Now,
	}
	if f.logger == nil {
		f.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if f.now == nil {
		f.now = time.Now
	}
	return f, nil
}

// Settings returns the flow's effective settings.
func (f *Flow) Settings() Settings { return f.settings }

// Expires returns when a flow started now stops accepting input.
func (f *Flow) Expires() time.Time {
	return f.now().Add(f.settings.Timeout)
}

func (f *Flow) report(outcome string) {
	if f.onOutcome != nil {
		f.onOutcome(outcome)
	}
}

func tokenClient(tc *bot.TurnContext) (connector.UserTokenClient, error) {
	c, ok := bot.GetState(tc.TurnState(), bot.UserTokenClientKey)
	if !ok || c == nil {
		return nil, fmt.Errorf("%w: turn has no user token client", relayerrors.ErrInvalidArgument)
	}
	return c, nil
}

func userID(tc *bot.TurnContext) (string, error) {
	a := tc.Activity()
	if a.From == nil || a.From.ID == "" {
		return "", fmt.Errorf("%w: activity has no from.id", relayerrors.ErrInvalidArgument)
	}
	return a.From.ID, nil
}

// GetUserToken returns the user's cached token, or nil when there is none.
func (f *Flow) GetUserToken(ctx context.Context, tc *bot.TurnContext, magicCode string) (*activity.TokenResponse, error) {
	client, err := tokenClient(tc)
	if err != nil {
		return nil, err
	}
	uid, err := userID(tc)
	if err != nil {
		return nil, err
	}
	return client.GetUserToken(ctx, uid, f.settings.ConnectionName, tc.Activity().ChannelID, magicCode)
}

// BeginFlow returns the user's token if one is already cached. Otherwise it
// sends prompt with a sign-in card attached and returns nil; the flow is
// then pending until ContinueFlow produces a token. A nil prompt sends a
// bare message.
func (f *Flow) BeginFlow(ctx context.Context, tc *bot.TurnContext, prompt *activity.Activity) (*activity.TokenResponse, error) {
	token, err := f.GetUserToken(ctx, tc, "")
	if err != nil {
		return nil, err
	}
	if token != nil && token.Token != "" {
		f.report(OutcomeCached)
		return token, nil
	}

	client, err := tokenClient(tc)
	if err != nil {
		return nil, err
	}
	resource, err := client.GetSignInResource(ctx, f.settings.ConnectionName, tc.Activity(), "")
	if err != nil {
		return nil, fmt.Errorf("getting sign-in resource: %w", err)
	}

	if prompt == nil {
		prompt = &activity.Activity{Type: activity.TypeMessage}
	} else {
		prompt = prompt.Clone()
	}
	if prompt.InputHint == "" {
		prompt.InputHint = activity.InputHintAcceptingInput
	}
	prompt.Attachments = append(prompt.Attachments, f.signInAttachment(tc, resource))

	if _, err := tc.SendActivity(ctx, prompt); err != nil {
		return nil, fmt.Errorf("sending sign-in prompt: %w", err)
	}
	f.report(OutcomePrompted)
	return nil, nil
}

func (f *Flow) signInAttachment(tc *bot.TurnContext, resource *activity.SignInResource) activity.Attachment {
	channelID := tc.Activity().ChannelID
	if !SupportsOAuthCard(channelID) {
		return activity.NewSigninCardAttachment(&activity.SigninCard{
			Text: f.settings.Text,
			Buttons: []activity.CardAction{{
				Type:  activity.ActionSignin,
				Title: f.settings.Title,
				Value: resource.SignInLink,
			}},
		})
	}

	action := activity.ActionSignin
	link := resource.SignInLink
	claims, _ := bot.GetState(tc.TurnState(), bot.ClaimsIdentityKey)
	switch {
	case claims.IsBotCaller():
		// a skill cannot rely on the channel completing the OAuth dance
		if channelID == activity.ChannelEmulator {
			action = activity.ActionOpenURL
		}
	case !f.showSignInLink(channelID):
		link = ""
	}

	return activity.NewOAuthCardAttachment(&activity.OAuthCard{
		Text:           f.settings.Text,
		ConnectionName: f.settings.ConnectionName,
		Buttons: []activity.CardAction{{
			Type:  action,
			Title: f.settings.Title,
			Text:  f.settings.Text,
			Value: link,
		}},
		TokenExchangeResource: resource.TokenExchangeResource,
		TokenPostResource:     resource.TokenPostResource,
	})
}

func (f *Flow) showSignInLink(channelID string) bool {
	if f.settings.ShowSignInLink != nil {
		return *f.settings.ShowSignInLink
	}
	return RequiresSignInLink(channelID)
}

// ContinueFlow inspects the current activity for a sign-in result. It
// returns the token when this turn produced one and nil while the flow is
// still pending. Once expires has passed, activities that belong to the
// flow fail with ErrFlowTimeout.
func (f *Flow) ContinueFlow(ctx context.Context, tc *bot.TurnContext, expires time.Time) (*activity.TokenResponse, error) {
	a := tc.Activity()

	kind := classify(a)
	if kind == kindNone {
		return nil, nil
	}
	if f.now().After(expires) {
		f.report(OutcomeTimeout)
		return nil, ErrFlowTimeout
	}

	switch kind {
	case kindTokenResponse:
		var token activity.TokenResponse
		if err := a.ValueAs(&token); err != nil {
			return nil, fmt.Errorf("%w: token response event: %v", relayerrors.ErrInvalidActivity, err)
		}
		f.report(OutcomeTokenReceived)
		return &token, nil
	case kindVerifyState:
		return f.verifyState(ctx, tc)
	case kindTokenExchange:
		return f.exchange(ctx, tc)
	case kindMessage:
		code := magicCodePattern.FindString(a.Text)
		if code == "" {
			return nil, nil
		}
		token, err := f.GetUserToken(ctx, tc, code)
		if err != nil {
			return nil, err
		}
		if token != nil {
			f.report(OutcomeTokenReceived)
		}
		return token, nil
	}
	return nil, nil
}

type activityKind int

const (
	kindNone activityKind = iota
	kindMessage
	kindTokenResponse
	kindVerifyState
	kindTokenExchange
)

func classify(a *activity.Activity) activityKind {
	switch {
	case a.Type == activity.TypeMessage:
		return kindMessage
	case a.Type == activity.TypeEvent && a.Name == activity.EventTokenResponse:
		return kindTokenResponse
	case a.Type == activity.TypeInvoke && a.Name == activity.InvokeVerifyState:
		return kindVerifyState
	case a.Type == activity.TypeInvoke && a.Name == activity.InvokeTokenExchange:
		return kindTokenExchange
	}
	return kindNone
}

func (f *Flow) verifyState(ctx context.Context, tc *bot.TurnContext) (*activity.TokenResponse, error) {
	var state activity.VerifyStateValue
	if err := tc.Activity().ValueAs(&state); err != nil || state.State == "" {
		f.report(OutcomeVerifyFailed)
		return nil, f.respond(ctx, tc, http.StatusBadRequest, nil)
	}

	token, err := f.GetUserToken(ctx, tc, state.State)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	switch {
	case err != nil:
		f.logger.Warn("verify state failed", "connection", f.settings.ConnectionName, "error", err)
		f.report(OutcomeVerifyFailed)
		return nil, f.respond(ctx, tc, http.StatusInternalServerError, nil)
	case token == nil || token.Token == "":
		f.report(OutcomeVerifyFailed)
		return nil, f.respond(ctx, tc, http.StatusNotFound, nil)
	}
	if err := f.respond(ctx, tc, http.StatusOK, nil); err != nil {
		return nil, err
	}
	f.report(OutcomeTokenReceived)
	return token, nil
}

func (f *Flow) exchange(ctx context.Context, tc *bot.TurnContext) (*activity.TokenResponse, error) {
	a := tc.Activity()

	var req activity.TokenExchangeInvokeRequest
	if a.Value == nil || a.ValueAs(&req) != nil {
		f.report(OutcomeExchangeDenied)
		return nil, f.respondExchange(ctx, tc, http.StatusBadRequest, "", detailMissingRequest)
	}
	if req.ConnectionName != f.settings.ConnectionName {
		f.report(OutcomeExchangeDenied)
		return nil, f.respondExchange(ctx, tc, http.StatusBadRequest, req.ID, detailConnectionChange)
	}

	client, err := tokenClient(tc)
	if err != nil {
		return nil, err
	}
	uid, err := userID(tc)
	if err != nil {
		return nil, err
	}
	token, err := client.ExchangeToken(ctx, uid, f.settings.ConnectionName, a.ChannelID, activity.TokenExchangeRequest{Token: req.Token})
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil || token == nil || token.Token == "" {
		if err != nil {
			f.logger.Warn("token exchange failed", "connection", f.settings.ConnectionName, "error", err)
		}
		f.report(OutcomeExchangeFailed)
		return nil, f.respondExchange(ctx, tc, http.StatusPreconditionFailed, req.ID, detailExchangeFailed)
	}

	if err := f.respond(ctx, tc, http.StatusOK, &activity.TokenExchangeInvokeResponse{
		ID:             req.ID,
		ConnectionName: f.settings.ConnectionName,
	}); err != nil {
		return nil, err
	}
	f.report(OutcomeTokenReceived)
	return &activity.TokenResponse{
		ChannelID:      token.ChannelID,
		ConnectionName: token.ConnectionName,
		Token:          token.Token,
		Expiration:     token.Expiration,
	}, nil
}

func (f *Flow) respondExchange(ctx context.Context, tc *bot.TurnContext, status int, id, detail string) error {
	return f.respond(ctx, tc, status, &activity.TokenExchangeInvokeResponse{
		ID:             id,
		ConnectionName: f.settings.ConnectionName,
		FailureDetail:  &detail,
	})
}

func (f *Flow) respond(ctx context.Context, tc *bot.TurnContext, status int, body any) error {
	_, err := tc.SendActivity(ctx, activity.NewInvokeResponse(status, body))
	return err
}

// SignOutUser signs the turn's user out of the flow's connection.
func (f *Flow) SignOutUser(ctx context.Context, tc *bot.TurnContext) error {
	client, err := tokenClient(tc)
	if err != nil {
		return err
	}
	uid, err := userID(tc)
	if err != nil {
		return err
	}
	return client.SignOutUser(ctx, uid, f.settings.ConnectionName, tc.Activity().ChannelID)
}

// IsFlowActivity reports whether a carries input for a pending sign-in.
func IsFlowActivity(a *activity.Activity) bool {
	return classify(a) != kindNone
}
