package security

import (
	"context"
	"errors"
	"net/http"

	"github.com/vivars7/skillrelay/internal/activity"
	"github.com/vivars7/skillrelay/internal/auth"
	"github.com/vivars7/skillrelay/internal/ctxkeys"
	relayerrors "github.com/vivars7/skillrelay/internal/errors"
)

// Authenticator validates an Authorization header value.
// *auth.JWTAuthenticator satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, authHeader string) (*auth.ClaimsIdentity, error)
}

// AuthMiddleware authenticates inbound calls and stores the resulting
// ClaimsIdentity and AuthInfo in the request context.
//
// A request without an Authorization header is let through without an
// identity only when unauthenticated access is allowed; the adapter then
// decides whether the anonymous emulator path applies. A header that is
// present but invalid is always rejected.
type AuthMiddleware struct {
	authn                Authenticator
	allowUnauthenticated bool
}

// NewAuthMiddleware creates an AuthMiddleware. A nil authenticator rejects
// every token.
func NewAuthMiddleware(authn Authenticator, allowUnauthenticated bool) *AuthMiddleware {
	return &AuthMiddleware{authn: authn, allowUnauthenticated: allowUnauthenticated}
}

// Process returns an http.Handler that performs authentication checks.
func (a *AuthMiddleware) Process(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")

		if header == "" {
			if !a.allowUnauthenticated {
				relayerrors.WriteHTTPError(w, relayerrors.ErrAuthRequired)
				return
			}
			ctx := ctxkeys.WithAuthInfo(r.Context(), ctxkeys.AuthInfo{})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if a.authn == nil {
			relayerrors.WriteHTTPError(w, relayerrors.ErrAuthInvalid)
			return
		}
		claims, err := a.authn.Authenticate(r.Context(), header)
		if err != nil {
			if errors.Is(err, auth.ErrMissingToken) {
				relayerrors.WriteHTTPError(w, relayerrors.ErrAuthRequired)
				return
			}
			relayerrors.WriteHTTPError(w, relayerrors.ErrAuthInvalid)
			return
		}

		info := ctxkeys.AuthInfo{
			Scheme:   "bearer",
			Subject:  claims.Claim(auth.SubjectClaim),
			AppID:    claims.AppID(),
			Verified: true,
		}
		ctx := ctxkeys.WithClaimsIdentity(r.Context(), claims)
		ctx = ctxkeys.WithAuthInfo(ctx, info)
		if entry, ok := ctxkeys.AuditEntryFrom(ctx); ok && entry.CallerID == "" && claims.IsSkillClaim() {
			entry.CallerID = activity.CallerIDBotToBotPrefix + info.AppID
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Name returns the middleware name.
func (a *AuthMiddleware) Name() string {
	return "auth"
}
