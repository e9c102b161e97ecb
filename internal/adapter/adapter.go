// Package adapter drives turns: it turns an authenticated inbound activity
// (or a stored conversation reference) into a fully provisioned TurnContext,
// runs the middleware pipeline around the bot, and delivers outbound
// activities through the channel service.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vivars7/skillrelay/internal/activity"
	"github.com/vivars7/skillrelay/internal/auth"
	"github.com/vivars7/skillrelay/internal/bot"
	"github.com/vivars7/skillrelay/internal/connector"
	relayerrors "github.com/vivars7/skillrelay/internal/errors"
)

// TurnErrorHandler receives errors that escaped the pipeline. Returning nil
// marks the turn as handled.
type TurnErrorHandler func(ctx context.Context, tc *bot.TurnContext, err error) error

// Options configures a CloudAdapterBase.
type Options struct {
	// AllowAnonymousEmulator lets unauthenticated emulator calls through on
	// an anonymous identity whose outbound calls carry no token.
	AllowAnonymousEmulator bool
	// OnTurnError handles pipeline errors. Nil means errors are returned to
	// the caller of ProcessActivity.
	OnTurnError TurnErrorHandler
	Logger      *slog.Logger
}

// CloudAdapterBase is the turn orchestrator. It holds no per-conversation
// state, so concurrent turns need no locking here.
type CloudAdapterBase struct {
	factory                connector.ChannelServiceClientFactory
	middleware             *bot.MiddlewareSet
	onTurnError            TurnErrorHandler
	allowAnonymousEmulator bool
	logger                 *slog.Logger
}

// NewCloudAdapterBase creates an adapter that provisions clients from factory.
func NewCloudAdapterBase(factory connector.ChannelServiceClientFactory, opts Options) *CloudAdapterBase {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CloudAdapterBase{
		factory:                factory,
		middleware:             bot.NewMiddlewareSet(),
		onTurnError:            opts.OnTurnError,
		allowAnonymousEmulator: opts.AllowAnonymousEmulator,
		logger:                 logger,
	}
}

// Use appends middleware to the adapter's pipeline.
func (a *CloudAdapterBase) Use(mws ...bot.Middleware) *CloudAdapterBase {
	a.middleware.Use(mws...)
	return a
}

// SetOnTurnError replaces the turn error handler. Call before serving.
func (a *CloudAdapterBase) SetOnTurnError(h TurnErrorHandler) {
	a.onTurnError = h
}

// OutgoingAudience returns the audience replies must target for a caller.
// Another bot is answered with tokens for its own app id; everything else
// goes to the channel service.
func OutgoingAudience(claims *auth.ClaimsIdentity) string {
	if claims.IsBotCaller() {
		return claims.AppID()
	}
	return auth.ChannelAudience
}

// ProcessActivity runs a reactive turn for an authenticated inbound activity
// and returns the synchronous response body, if any.
func (a *CloudAdapterBase) ProcessActivity(ctx context.Context, claims *auth.ClaimsIdentity, act *activity.Activity, callback bot.Callback) (*activity.InvokeResponse, error) {
	if act == nil {
		return nil, fmt.Errorf("%w: activity is required", relayerrors.ErrInvalidArgument)
	}

	if claims == nil || !claims.IsAuthenticated {
		if act.ChannelID == activity.ChannelEmulator && a.allowAnonymousEmulator {
			claims = auth.NewAnonymousSkillIdentity()
		} else if claims == nil {
			claims = auth.NewClaimsIdentity(nil, false, "")
		}
	}

	audience := OutgoingAudience(claims)
	if claims.IsBotCaller() {
		act.CallerID = activity.CallerIDBotToBotPrefix + claims.AppID()
	}

	tc := bot.NewTurnContext(a, act)
	if err := a.provision(ctx, tc, claims, act.ServiceURL, audience, callback); err != nil {
		return nil, err
	}

	a.logger.Debug("processing activity",
		"type", act.Type,
		"channel_id", act.ChannelID,
		"skill_caller", claims.IsBotCaller(),
	)

	if err := a.RunPipeline(ctx, tc, callback); err != nil {
		return nil, err
	}
	return a.ProcessTurnResults(tc), nil
}

// provision fills the well-known TurnState entries for one turn.
func (a *CloudAdapterBase) provision(ctx context.Context, tc *bot.TurnContext, claims *auth.ClaimsIdentity, serviceURL, audience string, callback bot.Callback) error {
	cc, err := a.factory.CreateConnectorClient(ctx, serviceURL, claims, audience)
	if err != nil {
		return fmt.Errorf("creating connector client: %w", err)
	}
	utc, err := a.factory.CreateUserTokenClient(ctx, claims)
	if err != nil {
		return fmt.Errorf("creating user token client: %w", err)
	}

	state := tc.TurnState()
	return errors.Join(
		bot.SetState(state, bot.ClaimsIdentityKey, claims),
		bot.SetState(state, bot.ConnectorClientKey, cc),
		bot.SetState(state, bot.UserTokenClientKey, utc),
		bot.SetState(state, bot.OAuthScopeKey, audience),
		bot.SetState(state, bot.BotCallbackKey, callback),
		bot.SetState(state, bot.ChannelServiceFactoryKey, a.factory),
	)
}

// RunPipeline runs middleware and callback. Errors go to the turn error
// handler when one is installed; cancellation always propagates.
func (a *CloudAdapterBase) RunPipeline(ctx context.Context, tc *bot.TurnContext, callback bot.Callback) error {
	err := a.middleware.ReceiveActivityWithStatus(ctx, tc, callback)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}
	if a.onTurnError == nil {
		return err
	}

	a.logger.Warn("turn failed, invoking error handler", "error", err)
	if herr := a.onTurnError(ctx, tc, err); herr != nil {
		return fmt.Errorf("turn error handler: %w", herr)
	}
	return nil
}

// ProcessTurnResults derives the synchronous response for a finished turn:
// buffered replies for expectReplies, the stashed invoke response (or 501)
// for invokes, and nil otherwise.
func (a *CloudAdapterBase) ProcessTurnResults(tc *bot.TurnContext) *activity.InvokeResponse {
	act := tc.Activity()

	if act.DeliveryMode == activity.DeliveryExpectReplies {
		replies := tc.BufferedReplies()
		if replies == nil {
			replies = []*activity.Activity{}
		}
		return &activity.InvokeResponse{
			Status: http.StatusOK,
			Body:   activity.ExpectedReplies{Activities: replies},
		}
	}

	if act.Type == activity.TypeInvoke {
		stashed, ok := bot.GetState(tc.TurnState(), bot.InvokeResponseKey)
		if !ok || stashed == nil {
			return &activity.InvokeResponse{Status: http.StatusNotImplemented}
		}
		if ir, ok := stashed.Value.(*activity.InvokeResponse); ok {
			return ir
		}
		var ir activity.InvokeResponse
		if err := stashed.ValueAs(&ir); err != nil {
			a.logger.Error("stashed invoke response is malformed", "error", err)
			return &activity.InvokeResponse{Status: http.StatusInternalServerError}
		}
		return &ir
	}

	return nil
}
