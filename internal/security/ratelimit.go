package security

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/vivars7/skillrelay/internal/ctxkeys"
	relayerrors "github.com/vivars7/skillrelay/internal/errors"
)

// limiterEntry holds a rate limiter and its last-used timestamp for cleanup.
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // UnixNano
}

// keyedLimiters is a table of token buckets keyed by client IP or caller
// app id. Idle entries are swept every cleanupInterval.
type keyedLimiters struct {
	limiters        sync.Map // key → *limiterEntry
	limit           rate.Limit
	burst           int
	cleanupInterval time.Duration
	cancel          context.CancelFunc
}

func newKeyedLimiters(perMinute int, cleanupInterval time.Duration) *keyedLimiters {
	limit, burst := perSecond(perMinute)
	ctx, cancel := context.WithCancel(context.Background())
	k := &keyedLimiters{
		limit:           rate.Limit(limit),
		burst:           burst,
		cleanupInterval: cleanupInterval,
		cancel:          cancel,
	}
	go k.cleanup(ctx)
	return k
}

// get returns the limiter for key, creating one if needed.
func (k *keyedLimiters) get(key string) *rate.Limiter {
	now := time.Now().UnixNano()

	if v, ok := k.limiters.Load(key); ok {
		entry := v.(*limiterEntry)
		entry.lastSeen.Store(now)
		return entry.limiter
	}

	entry := &limiterEntry{limiter: rate.NewLimiter(k.limit, k.burst)}
	entry.lastSeen.Store(now)
	actual, loaded := k.limiters.LoadOrStore(key, entry)
	if loaded {
		existing := actual.(*limiterEntry)
		existing.lastSeen.Store(now)
		return existing.limiter
	}
	return entry.limiter
}

func (k *keyedLimiters) len() int {
	n := 0
	k.limiters.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (k *keyedLimiters) sweep(cutoff int64) {
	k.limiters.Range(func(key, value any) bool {
		if value.(*limiterEntry).lastSeen.Load() < cutoff {
			k.limiters.Delete(key)
		}
		return true
	})
}

func (k *keyedLimiters) cleanup(ctx context.Context) {
	ticker := time.NewTicker(k.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.sweep(time.Now().Add(-k.cleanupInterval).UnixNano())
		}
	}
}

func (k *keyedLimiters) stop() { k.cancel() }

// ── Per-IP ──

// IPRateLimiter enforces per-client-IP rate limiting before authentication.
type IPRateLimiter struct {
	table          *keyedLimiters
	trustedProxies []string
	onReject       RejectFunc
}

// NewIPRateLimiter creates a per-IP rate limiter. perIP is requests per
// minute per IP.
func NewIPRateLimiter(perIP int, cleanupInterval time.Duration, trustedProxies []string, onReject RejectFunc) *IPRateLimiter {
	return &IPRateLimiter{
		table:          newKeyedLimiters(perIP, cleanupInterval),
		trustedProxies: trustedProxies,
		onReject:       onReject,
	}
}

// Process returns an http.Handler that enforces per-IP rate limiting.
func (rl *IPRateLimiter) Process(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := TrustedClientIP(r.RemoteAddr, r.Header.Get("X-Forwarded-For"), rl.trustedProxies)
		if !rl.table.get(ip).Allow() {
			if rl.onReject != nil {
				rl.onReject(rl.Name())
			}
			relayerrors.WriteHTTPError(w, relayerrors.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Name returns the middleware name.
func (rl *IPRateLimiter) Name() string { return "ip_rate_limiter" }

// Stop stops the cleanup goroutine.
func (rl *IPRateLimiter) Stop() { rl.table.stop() }

// ── Per-caller ──

// CallerRateLimiter enforces per-caller rate limiting after authentication.
// Callers are identified by the AppID of AuthInfo; unauthenticated requests
// are not limited here.
type CallerRateLimiter struct {
	table    *keyedLimiters
	onReject RejectFunc
}

// NewCallerRateLimiter creates a per-caller rate limiter. perCaller is
// requests per minute per app id.
func NewCallerRateLimiter(perCaller int, cleanupInterval time.Duration, onReject RejectFunc) *CallerRateLimiter {
	return &CallerRateLimiter{
		table:    newKeyedLimiters(perCaller, cleanupInterval),
		onReject: onReject,
	}
}

// Process returns an http.Handler that enforces per-caller rate limiting.
func (rl *CallerRateLimiter) Process(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok := ctxkeys.AuthInfoFrom(r.Context())
		if !ok || info.AppID == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !rl.table.get(info.AppID).Allow() {
			if rl.onReject != nil {
				rl.onReject(rl.Name())
			}
			relayerrors.WriteHTTPError(w, relayerrors.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Name returns the middleware name.
func (rl *CallerRateLimiter) Name() string { return "caller_rate_limiter" }

// Stop stops the cleanup goroutine.
func (rl *CallerRateLimiter) Stop() { rl.table.stop() }
