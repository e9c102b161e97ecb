package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// tokenRefreshBuffer is how long before expiry a cached token is replaced.
const tokenRefreshBuffer = 5 * time.Minute

// AccessTokenProvider issues bearer tokens for outbound calls.
type AccessTokenProvider interface {
	// GetAccessToken returns a token for resource. When scopes is empty the
	// provider requests ScopeFor(resource).
	GetAccessToken(ctx context.Context, resource string, scopes []string) (string, error)
}

// AccessTokenProviderFunc adapts a function to AccessTokenProvider.
type AccessTokenProviderFunc func(ctx context.Context, resource string, scopes []string) (string, error)

// GetAccessToken calls f.
func (f AccessTokenProviderFunc) GetAccessToken(ctx context.Context, resource string, scopes []string) (string, error) {
	return f(ctx, resource, scopes)
}

func scopesFor(resource string, scopes []string) []string {
	if len(scopes) > 0 {
		return scopes
	}
	return []string{ScopeFor(resource)}
}

// ── Azure AD ──

// AzureTokenProvider requests tokens with an Azure AD client-secret
// credential and caches them per scope set.
type AzureTokenProvider struct {
	cred  azcore.TokenCredential
	mu    sync.RWMutex
	cache map[string]azcore.AccessToken
}

// NewAzureTokenProvider builds a provider for a registered application.
func NewAzureTokenProvider(tenantID, clientID, clientSecret string) (*AzureTokenProvider, error) {
	cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	return NewAzureTokenProviderFromCredential(cred), nil
}

// NewAzureTokenProviderFromCredential wraps an existing credential.
func NewAzureTokenProviderFromCredential(cred azcore.TokenCredential) *AzureTokenProvider {
	return &AzureTokenProvider{cred: cred, cache: make(map[string]azcore.AccessToken)}
}

// GetAccessToken implements AccessTokenProvider.
func (p *AzureTokenProvider) GetAccessToken(ctx context.Context, resource string, scopes []string) (string, error) {
	s := scopesFor(resource, scopes)
	key := fmt.Sprint(s)

	p.mu.RLock()
	if tok, ok := p.cache[key]; ok && tok.ExpiresOn.After(time.Now().Add(tokenRefreshBuffer)) {
		p.mu.RUnlock()
		return tok.Token, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock
	if tok, ok := p.cache[key]; ok && tok.ExpiresOn.After(time.Now().Add(tokenRefreshBuffer)) {
		return tok.Token, nil
	}

	tok, err := p.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: s})
	if err != nil {
		return "", fmt.Errorf("acquiring token for %v: %w", s, err)
	}
	p.cache[key] = tok
	return tok.Token, nil
}

// ── OAuth2 client credentials ──

// ClientCredentialsProvider requests tokens from a generic OAuth2 token
// endpoint using the client-credentials grant.
type ClientCredentialsProvider struct {
	clientID     string
	clientSecret string
	tokenURL     string

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// NewClientCredentialsProvider creates a provider for tokenURL.
func NewClientCredentialsProvider(clientID, clientSecret, tokenURL string) *ClientCredentialsProvider {
	return &ClientCredentialsProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     tokenURL,
		sources:      make(map[string]oauth2.TokenSource),
	}
}

// GetAccessToken implements AccessTokenProvider. Token sources are reused per
// scope set so the oauth2 package can cache and refresh tokens.
func (p *ClientCredentialsProvider) GetAccessToken(ctx context.Context, resource string, scopes []string) (string, error) {
	s := scopesFor(resource, scopes)
	key := fmt.Sprint(s)

	p.mu.Lock()
	src, ok := p.sources[key]
	if !ok {
		cfg := &clientcredentials.Config{
			ClientID:     p.clientID,
			ClientSecret: p.clientSecret,
			TokenURL:     p.tokenURL,
			Scopes:       s,
		}
		// The source outlives this call, so it must not capture ctx.
		src = oauth2.ReuseTokenSource(nil, cfg.TokenSource(context.WithoutCancel(ctx)))
		p.sources[key] = src
	}
	p.mu.Unlock()

	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("acquiring token from %s: %w", p.tokenURL, err)
	}
	return tok.AccessToken, nil
}

// ── Static and anonymous ──

// StaticTokenProvider always returns the same token.
type StaticTokenProvider struct {
	Token string
}

// GetAccessToken implements AccessTokenProvider.
func (p StaticTokenProvider) GetAccessToken(context.Context, string, []string) (string, error) {
	if p.Token == "" {
		return "", errors.New("static token provider has no token")
	}
	return p.Token, nil
}

// AnonymousTokenProvider returns an empty token; callers omit the
// Authorization header. Used for the emulator and unauthenticated skills.
type AnonymousTokenProvider struct{}

// GetAccessToken implements AccessTokenProvider.
func (AnonymousTokenProvider) GetAccessToken(context.Context, string, []string) (string, error) {
	return "", nil
}
