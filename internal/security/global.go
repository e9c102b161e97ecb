package security

import (
	"net/http"

	"golang.org/x/time/rate"

	relayerrors "github.com/vivars7/skillrelay/internal/errors"
)

// GlobalRateLimiter enforces a relay-wide request rate limit using a token bucket.
type GlobalRateLimiter struct {
	limiter  *rate.Limiter
	onReject RejectFunc
}

// NewGlobalRateLimiter creates a global rate limiter.
// rpm is requests per minute; internally converted to per-second.
func NewGlobalRateLimiter(rpm int, onReject RejectFunc) *GlobalRateLimiter {
	limit, burst := perSecond(rpm)
	return &GlobalRateLimiter{
		limiter:  rate.NewLimiter(rate.Limit(limit), burst),
		onReject: onReject,
	}
}

// Process returns an http.Handler that enforces the global rate limit.
func (g *GlobalRateLimiter) Process(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.limiter.Allow() {
			if g.onReject != nil {
				g.onReject(g.Name())
			}
			relayerrors.WriteHTTPError(w, relayerrors.ErrGlobalLimitReached)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Name returns the middleware name for logging and debugging.
func (g *GlobalRateLimiter) Name() string {
	return "global_rate_limiter"
}
