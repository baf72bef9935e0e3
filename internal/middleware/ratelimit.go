package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/spredd-labs/developer-api/internal/app/metrics"
	"github.com/spredd-labs/developer-api/pkg/logger"
)

// RateLimiter enforces per-key request and trade allowances with token
// buckets. The limits come from the key's tier, so buckets are created
// lazily per key and bucket type.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	log      *logger.Logger
}

// NewRateLimiter creates an empty limiter store.
func NewRateLimiter(log *logger.Logger) *RateLimiter {
	if log == nil {
		log = logger.NewDefault("ratelimit")
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		log:      log,
	}
}

func (rl *RateLimiter) bucket(keyID, kind string, perMinute int) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cacheKey := keyID + ":" + kind
	limiter, ok := rl.limiters[cacheKey]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
		rl.limiters[cacheKey] = limiter
	}
	return limiter
}

// allow consumes one token, reporting the remaining allowance and the
// seconds until a token frees up.
func (rl *RateLimiter) allow(keyID, kind string, perMinute int) (ok bool, remaining, resetSecs int) {
	limiter := rl.bucket(keyID, kind, perMinute)
	if limiter.Allow() {
		return true, int(limiter.Tokens()), 0
	}
	res := limiter.Reserve()
	delay := res.Delay()
	res.Cancel()
	resetSecs = int(delay / time.Second)
	if resetSecs < 1 {
		resetSecs = 1
	}
	return false, 0, resetSecs
}

// RequestLimit rejects requests beyond the key's per-minute request
// allowance.
func (rl *RateLimiter) RequestLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := KeyFromContext(r.Context())
		if !ok {
			writeAuthError(w, "Missing API key context")
			return
		}

		if ok, remaining, reset := rl.allow(key.ID, "rpm", key.RateRPM); !ok {
			rl.reject(w, "Rate limit exceeded", key.RateRPM, remaining, reset, string(key.Tier))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TradeLimit enforces both the request and the trade allowance: trade
// endpoints consume a token from each bucket.
func (rl *RateLimiter) TradeLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := KeyFromContext(r.Context())
		if !ok {
			writeAuthError(w, "Missing API key context")
			return
		}

		if ok, remaining, reset := rl.allow(key.ID, "rpm", key.RateRPM); !ok {
			rl.reject(w, "Request rate limit exceeded", key.RateRPM, remaining, reset, string(key.Tier))
			return
		}
		if ok, remaining, reset := rl.allow(key.ID, "tpm", key.RateTPM); !ok {
			rl.reject(w, "Trade rate limit exceeded", key.RateTPM, remaining, reset, string(key.Tier))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) reject(w http.ResponseWriter, detail string, limit, remaining, reset int, tier string) {
	metrics.RecordRateLimited(tier)
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"detail":` + quote(detail) + `}`))
}
