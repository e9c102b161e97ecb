// Package security implements the HTTP ingress pipeline in front of the
// messages and skills endpoints.
//
// Layer 1 (pre-auth): GlobalRateLimiter, IPRateLimiter
// Layer 2 (post-auth): AuthMiddleware, CallerRateLimiter
package security

import (
	"net/http"
	"time"
)

// Middleware is a security processing step in the pipeline.
type Middleware interface {
	Process(next http.Handler) http.Handler
	Name() string
}

// Stopper is implemented by middleware that owns a background goroutine.
type Stopper interface {
	Stop()
}

// RejectFunc observes a request refused by a limiter. layer is the
// middleware name.
type RejectFunc func(layer string)

// PipelineConfig holds what the pipeline needs from configuration.
type PipelineConfig struct {
	// GlobalRateLimit is requests per minute across all callers; 0 disables it.
	GlobalRateLimit int
	// IPRateLimit is requests per minute per client IP; 0 disables it.
	IPRateLimit int
	// CallerRateLimit is requests per minute per caller app id; 0 disables it.
	CallerRateLimit int
	TrustedProxies  []string
	// CleanupInterval is how often idle limiter entries are dropped.
	CleanupInterval time.Duration

	Authenticator        Authenticator
	AllowUnauthenticated bool

	// OnReject is called whenever a limiter refuses a request. May be nil.
	OnReject RejectFunc
}

// DefaultCleanupInterval applies when PipelineConfig.CleanupInterval is zero.
const DefaultCleanupInterval = 5 * time.Minute

// BuildPipeline constructs the ordered security middleware chain.
func BuildPipeline(cfg PipelineConfig) []Middleware {
	cleanup := cfg.CleanupInterval
	if cleanup <= 0 {
		cleanup = DefaultCleanupInterval
	}
	var mws []Middleware

	// Layer 1: pre-auth
	if cfg.GlobalRateLimit > 0 {
		mws = append(mws, NewGlobalRateLimiter(cfg.GlobalRateLimit, cfg.OnReject))
	}
	if cfg.IPRateLimit > 0 {
		mws = append(mws, NewIPRateLimiter(cfg.IPRateLimit, cleanup, cfg.TrustedProxies, cfg.OnReject))
	}

	// Layer 2: post-auth
	mws = append(mws, NewAuthMiddleware(cfg.Authenticator, cfg.AllowUnauthenticated))
	if cfg.CallerRateLimit > 0 {
		mws = append(mws, NewCallerRateLimiter(cfg.CallerRateLimit, cleanup, cfg.OnReject))
	}

	return mws
}

// ApplyPipeline wraps a handler with all middleware in order.
// Apply in reverse order so first middleware executes first.
func ApplyPipeline(handler http.Handler, middlewares []Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i].Process(handler)
	}
	return handler
}

// StopPipeline stops every middleware that runs a background goroutine.
func StopPipeline(middlewares []Middleware) {
	for _, m := range middlewares {
		if s, ok := m.(Stopper); ok {
			s.Stop()
		}
	}
}

// perSecond converts a per-minute rate into a limiter rate and a burst of
// at least one.
func perSecond(perMinute int) (float64, int) {
	burst := perMinute / 60
	if burst < 1 {
		burst = 1
	}
	return float64(perMinute) / 60.0, burst
}
