package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var (
	// ErrMissingToken is returned when no Authorization header was presented.
	ErrMissingToken = errors.New("missing authorization header")
	// ErrInvalidToken is returned when a token fails parsing or validation.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// JWTConfig configures inbound token validation.
type JWTConfig struct {
	// Issuers lists accepted iss values. Empty accepts any issuer.
	Issuers []string
	// Audience is the expected aud value, normally the bot's app id.
	Audience string
	// JWKSURL is where signing keys are fetched. Empty disables signature
	// verification, which is only acceptable for local development.
	JWKSURL string
	// CacheTTL is the minimum refresh interval of the key cache.
	CacheTTL time.Duration
}

// JWTAuthenticator turns an Authorization header into a ClaimsIdentity.
type JWTAuthenticator struct {
	cfg   JWTConfig
	cache *jwk.Cache
}

// NewJWTAuthenticator creates an authenticator. Start must be called before
// Authenticate when a JWKS URL is configured.
func NewJWTAuthenticator(cfg JWTConfig) *JWTAuthenticator {
	return &JWTAuthenticator{cfg: cfg}
}

// Start registers the JWKS URL with an auto-refreshing key cache that lives
// as long as ctx.
func (a *JWTAuthenticator) Start(ctx context.Context) error {
	if a.cfg.JWKSURL == "" {
		return nil
	}
	c := jwk.NewCache(ctx)
	opts := []jwk.RegisterOption{}
	if a.cfg.CacheTTL > 0 {
		opts = append(opts, jwk.WithMinRefreshInterval(a.cfg.CacheTTL))
	}
	if err := c.Register(a.cfg.JWKSURL, opts...); err != nil {
		return fmt.Errorf("registering JWKS URL %s: %w", a.cfg.JWKSURL, err)
	}
	a.cache = c
	return nil
}

// Authenticate validates a "Bearer <jwt>" header value.
func (a *JWTAuthenticator) Authenticate(ctx context.Context, authHeader string) (*ClaimsIdentity, error) {
	if strings.TrimSpace(authHeader) == "" {
		return nil, ErrMissingToken
	}
	scheme, raw, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || raw == "" {
		return nil, fmt.Errorf("%w: expected bearer scheme", ErrInvalidToken)
	}

	parseOpts := []jwt.ParseOption{jwt.WithValidate(true)}
	if a.cfg.Audience != "" {
		parseOpts = append(parseOpts, jwt.WithAudience(a.cfg.Audience))
	}

	if a.cfg.JWKSURL != "" {
		keySet, err := a.keySet(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		parseOpts = append(parseOpts, jwt.WithKeySet(keySet))
	} else {
		parseOpts = append(parseOpts, jwt.WithVerify(false))
	}

	tok, err := jwt.Parse([]byte(raw), parseOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if len(a.cfg.Issuers) > 0 && !slices.Contains(a.cfg.Issuers, tok.Issuer()) {
		return nil, fmt.Errorf("%w: untrusted issuer %q", ErrInvalidToken, tok.Issuer())
	}

	return NewClaimsIdentity(claimsFromToken(tok), true, BearerAuthType), nil
}

func (a *JWTAuthenticator) keySet(ctx context.Context) (jwk.Set, error) {
	if a.cache != nil {
		return a.cache.Get(ctx, a.cfg.JWKSURL)
	}
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return jwk.Fetch(fetchCtx, a.cfg.JWKSURL)
}

func claimsFromToken(tok jwt.Token) map[string]string {
	claims := map[string]string{
		IssuerClaim:  tok.Issuer(),
		SubjectClaim: tok.Subject(),
	}
	if aud := tok.Audience(); len(aud) > 0 {
		claims[AudienceClaim] = aud[0]
	}
	for k, v := range tok.PrivateClaims() {
		switch val := v.(type) {
		case string:
			claims[k] = val
		case fmt.Stringer:
			claims[k] = val.String()
		}
	}
	return claims
}
