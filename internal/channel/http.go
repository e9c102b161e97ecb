package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vivars7/skillrelay/internal/activity"
	"github.com/vivars7/skillrelay/internal/auth"
	relayerrors "github.com/vivars7/skillrelay/internal/errors"
	"github.com/vivars7/skillrelay/internal/transport"
)

// maxLoggedBody bounds how much of a failed response body is logged.
const maxLoggedBody = 512

// HTTPBotChannel posts activities to skills as JSON over HTTP.
type HTTPBotChannel struct {
	client  *http.Client
	tokens  auth.AccessTokenProvider
	timeout time.Duration
	logger  *slog.Logger
}

// NewHTTPBotChannel creates a channel. A nil client gets a traced default
// and a nil token provider sends no Authorization header.
func NewHTTPBotChannel(client *http.Client, tokens auth.AccessTokenProvider, timeout time.Duration, logger *slog.Logger) *HTTPBotChannel {
	if client == nil {
		client = transport.NewClient(0)
	}
	if tokens == nil {
		tokens = auth.AnonymousTokenProvider{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HTTPBotChannel{client: client, tokens: tokens, timeout: timeout, logger: logger}
}

// PostActivity implements Channel. The caller's activity is never modified:
// a clone is posted whose relatesTo records the original addressing and
// whose conversation id and service url point at this host.
func (c *HTTPBotChannel) PostActivity(ctx context.Context, toBotID, toBotResource, endpoint, serviceURL, conversationID string, a *activity.Activity) (*activity.InvokeResponse, error) {
	switch {
	case endpoint == "":
		return nil, fmt.Errorf("%w: skill endpoint is required", relayerrors.ErrInvalidArgument)
	case serviceURL == "":
		return nil, fmt.Errorf("%w: service url is required", relayerrors.ErrInvalidArgument)
	case conversationID == "":
		return nil, fmt.Errorf("%w: conversation id is required", relayerrors.ErrInvalidArgument)
	case a == nil:
		return nil, fmt.Errorf("%w: activity is required", relayerrors.ErrInvalidArgument)
	}

	token := ""
	if toBotID != "" {
		var err error
		token, err = c.tokens.GetAccessToken(ctx, toBotResource, []string{auth.ScopeFor(toBotID)})
		if err != nil {
			return nil, fmt.Errorf("acquiring token for skill %s: %w", toBotID, err)
		}
	}

	out := rewriteForSkill(a, serviceURL, conversationID)

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := transport.Do(callCtx, c.client, transport.Request{
		Method: http.MethodPost,
		URL:    endpoint,
		Token:  token,
		Header: http.Header{ConversationIDHeader: []string{conversationID}},
		Body:   out,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("posting to skill: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: posting to %s: %v", relayerrors.ErrUpstreamUnavailable, endpoint, err)
	}

	if !resp.IsSuccess() {
		c.logger.Error("skill returned an error",
			"endpoint", endpoint,
			"status", resp.StatusCode,
			"conversation_id", conversationID,
			"body", truncate(resp.Body, maxLoggedBody),
		)
	}

	return &activity.InvokeResponse{Status: resp.StatusCode, Body: responseBody(resp.Body)}, nil
}

// rewriteForSkill clones a and readdresses the clone for a skill.
func rewriteForSkill(a *activity.Activity, serviceURL, conversationID string) *activity.Activity {
	rel := &activity.ConversationReference{
		ServiceURL: a.ServiceURL,
		ActivityID: a.ID,
		ChannelID:  a.ChannelID,
		Locale:     a.Locale,
	}
	if a.Conversation != nil {
		conv := *a.Conversation
		rel.Conversation = &conv
	}

	out := a.Clone()
	out.RelatesTo = rel
	if out.Conversation == nil {
		out.Conversation = &activity.ConversationAccount{}
	}
	out.Conversation.ID = conversationID
	out.ServiceURL = serviceURL
	if out.Recipient == nil {
		out.Recipient = &activity.ChannelAccount{}
	}
	out.Recipient.Role = activity.RoleSkill
	return out
}

// responseBody keeps JSON bodies raw for later typed decoding and passes
// other text through as a string.
func responseBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// HTTPBotChannelFactory creates HTTPBotChannels sharing one HTTP client.
type HTTPBotChannelFactory struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTPBotChannelFactory creates a factory. A nil client gets a traced default.
func NewHTTPBotChannelFactory(client *http.Client, logger *slog.Logger) *HTTPBotChannelFactory {
	if client == nil {
		client = transport.NewClient(0)
	}
	return &HTTPBotChannelFactory{client: client, logger: logger}
}

// CreateChannel implements Factory.
func (f *HTTPBotChannelFactory) CreateChannel(tokens auth.AccessTokenProvider, timeout time.Duration) Channel {
	return NewHTTPBotChannel(f.client, tokens, timeout, f.logger)
}
