package middleware

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"baton/internal/store"
	"baton/pkg/api"
)

// defaultLimiterTTL bounds how long a cached limiter outlives a change to
// the namespace's configured rate.
const defaultLimiterTTL = 5 * time.Minute

// RateLimiter throttles requests per namespace with the token-bucket rates
// stored on the namespace row. Limiters are cached with a TTL so rate
// changes take effect without a restart.
type RateLimiter struct {
	ttl      time.Duration
	limiters sync.Map // namespace ID -> *cachedLimiter
}

// Option configures a RateLimiter.
type Option func(*RateLimiter)

// WithTTL sets how long a cached limiter is trusted before the namespace's
// configured rate is read again.
func WithTTL(ttl time.Duration) Option {
	return func(rl *RateLimiter) { rl.ttl = ttl }
}

// NewRateLimiter returns a RateLimiter with the given options applied.
func NewRateLimiter(opts ...Option) *RateLimiter {
	rl := &RateLimiter{ttl: defaultLimiterTTL}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Middleware enforces the namespace's rate limit. It must run after
// AuthMiddleware; it keys on the namespace in the request context.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ns, ok := NamespaceFromContext(r.Context())
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(api.ErrorResponse{
					Error: "Unauthorized",
					Code:  "401",
				})
				return
			}

			// RateLimit=0 means unlimited
			if ns.RateLimit > 0 {
				if !rl.limiterFor(ns).Allow() {
					w.Header().Set("Retry-After", "1")
					http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

type cachedLimiter struct {
	limiter   *rate.Limiter
	expiresAt time.Time
}

func (rl *RateLimiter) limiterFor(ns *store.Namespace) *rate.Limiter {
	if v, ok := rl.limiters.Load(ns.ID); ok {
		cached := v.(*cachedLimiter)
		if time.Now().Before(cached.expiresAt) {
			return cached.limiter
		}
		// expired, need to create new
	}

	limiter := rate.NewLimiter(
		rate.Limit(ns.RateLimit),
		ns.RateLimitBurst,
	)
	rl.limiters.Store(ns.ID, &cachedLimiter{
		limiter:   limiter,
		expiresAt: time.Now().Add(rl.ttl),
	})
	return limiter
}
