package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hourledger/hourledger/platform/go/auth"
)

// RateLimiter tracks a token bucket per caller. Authenticated requests are
// keyed by user id, anonymous ones by remote address, so one tenant's burst
// cannot starve another's.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*limiterEntry
	rps      rate.Limit
	burst    int
	lastSeen time.Duration
}

type limiterEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewRateLimiter builds a limiter allowing rps requests per second with the
// given burst per caller.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		buckets:  make(map[string]*limiterEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		lastSeen: 10 * time.Minute,
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, ok := rl.buckets[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = entry
	}
	entry.seen = now

	// Opportunistic sweep of stale buckets.
	if len(rl.buckets) > 1024 {
		for k, e := range rl.buckets {
			if now.Sub(e.seen) > rl.lastSeen {
				delete(rl.buckets, k)
			}
		}
	}

	return entry.limiter
}

// Handler is the HTTP middleware enforcing the per-caller limit.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if p, ok := auth.PrincipalFromContext(r.Context()); ok && p != nil {
			key = p.UserID.String()
		}

		if !rl.limiterFor(key).Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
