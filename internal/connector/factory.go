package connector

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vivars7/skillrelay/internal/auth"
)

// RESTClientFactory builds REST connector and token clients that authenticate
// with the bot's own credentials. Anonymous identities get clients that send
// no Authorization header.
type RESTClientFactory struct {
	appID           string
	tokenServiceURL string
	tokens          auth.AccessTokenProvider
	client          *http.Client
}

// NewRESTClientFactory creates a factory. tokens is the bot's credential;
// client is shared by every client the factory builds.
func NewRESTClientFactory(appID, tokenServiceURL string, tokens auth.AccessTokenProvider, client *http.Client) *RESTClientFactory {
	if tokens == nil {
		tokens = auth.AnonymousTokenProvider{}
	}
	return &RESTClientFactory{
		appID:           appID,
		tokenServiceURL: tokenServiceURL,
		tokens:          tokens,
		client:          client,
	}
}

func (f *RESTClientFactory) providerFor(claims *auth.ClaimsIdentity) auth.AccessTokenProvider {
	if claims.IsAnonymous() {
		return auth.AnonymousTokenProvider{}
	}
	return f.tokens
}

// CreateConnectorClient implements ChannelServiceClientFactory.
func (f *RESTClientFactory) CreateConnectorClient(_ context.Context, serviceURL string, claims *auth.ClaimsIdentity, audience string) (ConnectorClient, error) {
	if serviceURL == "" {
		return nil, fmt.Errorf("service url is required")
	}
	if audience == "" {
		audience = auth.ChannelAudience
	}
	return NewRESTConnectorClient(serviceURL, f.client, f.providerFor(claims), audience), nil
}

// CreateUserTokenClient implements ChannelServiceClientFactory.
func (f *RESTClientFactory) CreateUserTokenClient(_ context.Context, claims *auth.ClaimsIdentity) (UserTokenClient, error) {
	if f.tokenServiceURL == "" {
		return nil, fmt.Errorf("token service url is not configured")
	}
	return NewRESTUserTokenClient(f.tokenServiceURL, f.appID, f.client, f.providerFor(claims)), nil
}
