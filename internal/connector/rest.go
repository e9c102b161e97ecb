package connector

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/vivars7/skillrelay/internal/activity"
	"github.com/vivars7/skillrelay/internal/auth"
	"github.com/vivars7/skillrelay/internal/transport"
)

// maxErrorBody bounds how much of an error response is kept in HTTPError.
const maxErrorBody = 512

type restBase struct {
	baseURL  string
	client   *http.Client
	tokens   auth.AccessTokenProvider
	audience string
}

func (b *restBase) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	token, err := b.tokens.GetAccessToken(ctx, b.audience, nil)
	if err != nil {
		return fmt.Errorf("acquiring token for %s: %w", b.audience, err)
	}
	u := strings.TrimSuffix(b.baseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	resp, err := transport.Do(ctx, b.client, transport.Request{
		Method: method,
		URL:    u,
		Token:  token,
		Body:   body,
	})
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		msg := string(resp.Body)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return &HTTPError{StatusCode: resp.StatusCode, Body: msg}
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// ── Channel service ──

// RESTConnectorClient is a ConnectorClient for the v3 conversations API.
type RESTConnectorClient struct {
	restBase
}

// NewRESTConnectorClient creates a client for serviceURL whose requests carry
// tokens for audience.
func NewRESTConnectorClient(serviceURL string, client *http.Client, tokens auth.AccessTokenProvider, audience string) *RESTConnectorClient {
	return &RESTConnectorClient{restBase{baseURL: serviceURL, client: client, tokens: tokens, audience: audience}}
}

func conversationPath(conversationID string, rest ...string) string {
	p := "/v3/conversations/" + url.PathEscape(conversationID)
	for _, r := range rest {
		p += "/" + url.PathEscape(r)
	}
	return p
}

// SendToConversation posts a to the end of the conversation.
func (c *RESTConnectorClient) SendToConversation(ctx context.Context, conversationID string, a *activity.Activity) (*activity.ResourceResponse, error) {
	var rr activity.ResourceResponse
	if err := c.call(ctx, http.MethodPost, conversationPath(conversationID)+"/activities", nil, a, &rr); err != nil {
		return nil, err
	}
	return &rr, nil
}

// ReplyToActivity posts a as a reply to activityID.
func (c *RESTConnectorClient) ReplyToActivity(ctx context.Context, conversationID, activityID string, a *activity.Activity) (*activity.ResourceResponse, error) {
	var rr activity.ResourceResponse
	if err := c.call(ctx, http.MethodPost, conversationPath(conversationID, "activities", activityID), nil, a, &rr); err != nil {
		return nil, err
	}
	return &rr, nil
}

// UpdateActivity replaces activityID with a.
func (c *RESTConnectorClient) UpdateActivity(ctx context.Context, conversationID, activityID string, a *activity.Activity) (*activity.ResourceResponse, error) {
	var rr activity.ResourceResponse
	if err := c.call(ctx, http.MethodPut, conversationPath(conversationID, "activities", activityID), nil, a, &rr); err != nil {
		return nil, err
	}
	return &rr, nil
}

// DeleteActivity removes activityID.
func (c *RESTConnectorClient) DeleteActivity(ctx context.Context, conversationID, activityID string) error {
	return c.call(ctx, http.MethodDelete, conversationPath(conversationID, "activities", activityID), nil, nil, nil)
}

// CreateConversation starts a new conversation.
func (c *RESTConnectorClient) CreateConversation(ctx context.Context, params *activity.ConversationParameters) (*activity.ConversationResourceResponse, error) {
	var out activity.ConversationResourceResponse
	if err := c.call(ctx, http.MethodPost, "/v3/conversations", nil, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetConversationMembers lists the members of a conversation.
func (c *RESTConnectorClient) GetConversationMembers(ctx context.Context, conversationID string) ([]activity.ChannelAccount, error) {
	var out []activity.ChannelAccount
	if err := c.call(ctx, http.MethodGet, conversationPath(conversationID, "members"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetConversationMember looks up a single member.
func (c *RESTConnectorClient) GetConversationMember(ctx context.Context, conversationID, memberID string) (*activity.ChannelAccount, error) {
	var out activity.ChannelAccount
	if err := c.call(ctx, http.MethodGet, conversationPath(conversationID, "members", memberID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ── Token service ──

// RESTUserTokenClient is a UserTokenClient for the token service API.
type RESTUserTokenClient struct {
	restBase
	appID string
}

// NewRESTUserTokenClient creates a token-service client for appID.
func NewRESTUserTokenClient(tokenServiceURL, appID string, client *http.Client, tokens auth.AccessTokenProvider) *RESTUserTokenClient {
	return &RESTUserTokenClient{
		restBase: restBase{baseURL: tokenServiceURL, client: client, tokens: tokens, audience: auth.ChannelAudience},
		appID:    appID,
	}
}

// GetUserToken implements UserTokenClient. A 404 from the service means the
// user has not signed in and is reported as nil, nil.
func (c *RESTUserTokenClient) GetUserToken(ctx context.Context, userID, connectionName, channelID, magicCode string) (*activity.TokenResponse, error) {
	if userID == "" || connectionName == "" {
		return nil, fmt.Errorf("user id and connection name are required")
	}
	q := url.Values{"userId": {userID}, "connectionName": {connectionName}, "channelId": {channelID}}
	if magicCode != "" {
		q.Set("code", magicCode)
	}
	var tr activity.TokenResponse
	err := c.call(ctx, http.MethodGet, "/api/usertoken/GetToken", q, nil, &tr)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if tr.Token == "" {
		return nil, nil
	}
	return &tr, nil
}

// tokenExchangeState is the opaque state the token service hands back to the
// bot once the user completes sign-in.
type tokenExchangeState struct {
	ConnectionName string                          `json:"connectionName"`
	Conversation   activity.ConversationReference  `json:"conversation"`
	RelatesTo      *activity.ConversationReference `json:"relatesTo,omitempty"`
	MsAppID        string                          `json:"msAppId"`
}

// GetSignInResource implements UserTokenClient.
func (c *RESTUserTokenClient) GetSignInResource(ctx context.Context, connectionName string, a *activity.Activity, finalRedirect string) (*activity.SignInResource, error) {
	if connectionName == "" || a == nil {
		return nil, fmt.Errorf("connection name and activity are required")
	}
	state, err := json.Marshal(tokenExchangeState{
		ConnectionName: connectionName,
		Conversation:   a.GetConversationReference(),
		RelatesTo:      a.RelatesTo,
		MsAppID:        c.appID,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding sign-in state: %w", err)
	}
	q := url.Values{"state": {base64.StdEncoding.EncodeToString(state)}}
	if finalRedirect != "" {
		q.Set("finalRedirect", finalRedirect)
	}
	var res activity.SignInResource
	if err := c.call(ctx, http.MethodGet, "/api/botsignin/GetSignInResource", q, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SignOutUser implements UserTokenClient.
func (c *RESTUserTokenClient) SignOutUser(ctx context.Context, userID, connectionName, channelID string) error {
	q := url.Values{"userId": {userID}, "connectionName": {connectionName}, "channelId": {channelID}}
	return c.call(ctx, http.MethodDelete, "/api/usertoken/SignOut", q, nil, nil)
}

// ExchangeToken implements UserTokenClient.
func (c *RESTUserTokenClient) ExchangeToken(ctx context.Context, userID, connectionName, channelID string, req activity.TokenExchangeRequest) (*activity.TokenResponse, error) {
	q := url.Values{"userId": {userID}, "connectionName": {connectionName}, "channelId": {channelID}}
	var tr activity.TokenResponse
	if err := c.call(ctx, http.MethodPost, "/api/usertoken/exchange", q, req, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

func isStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == status
}
