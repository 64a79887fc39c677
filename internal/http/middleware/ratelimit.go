// Package middleware contains the Gin middleware shared by the HTTP layer.
//
// This file implements rate limiting. Two limiters share one middleware:
//
//   - TokenBucket: per-key golang.org/x/time/rate buckets held in process,
//     with opportunistic eviction of idle keys.
//   - RedisWindow (redis_limiter.go): a fixed window counted in Redis, for
//     deployments running more than one replica.
//
// Requests that IdempotencyValidator marked as replays skip limiting.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Limiter decides whether key may proceed. retryAfter is a hint for denied
// calls. A non-nil error means the decision could not be made.
type Limiter interface {
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
}

const (
	reasonDenied       = "denied"
	reasonLimiterError = "limiter_error"
)

// KeyFunc selects the bucket identity for a request.
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP keys by authenticated user when present, else by client IP.
// Prefixes keep the two namespaces apart.
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if uid := UserID(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

// RateLimit enforces l per key. Denied requests get 429 with Retry-After;
// limiter errors fail closed with 429 as well.
func RateLimit(l Limiter, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		allowed, retry, err := l.Allow(c.Request.Context(), key(c))
		switch {
		case err != nil:
			LoggerFrom(c).Warn().Err(err).Msg("rate limiter unavailable")
			rateLimited.WithLabelValues(reasonLimiterError).Inc()
		case allowed:
			c.Next()
			return
		default:
			rateLimited.WithLabelValues(reasonDenied).Inc()
		}
		secs := int(retry.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		abortJSON(c, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
	}
}

// IsRateBypass reports whether the request is a marked idempotent replay.
func IsRateBypass(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyRateBypass).(bool)
	return b
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// TokenBucket is an in-process per-key token bucket limiter. Safe for
// concurrent use.
type TokenBucket struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*bucket
	idleTTL time.Duration
	sweepN  int
	now     func() time.Time
}

// NewTokenBucket allows rps sustained with bursts up to burst (min 1).
func NewTokenBucket(rps float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{
		rps:     rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*bucket),
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

// Allow takes one token from key's bucket.
func (tb *TokenBucket) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	lim := tb.get(key)
	r := lim.ReserveN(tb.now(), 1)
	if !r.OK() {
		return false, time.Second, nil
	}
	if d := r.DelayFrom(tb.now()); d > 0 {
		r.CancelAt(tb.now())
		return false, d, nil
	}
	return true, 0, nil
}

// size reports how many keys are currently tracked.
func (tb *TokenBucket) size() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.buckets)
}

func (tb *TokenBucket) get(key string) *rate.Limiter {
	now := tb.now()
	tb.mu.Lock()
	defer tb.mu.Unlock()

	// Sweep before touching key so a stale entry for key is evicted too.
	tb.sweepN++
	if tb.sweepN >= 5000 {
		for k, b := range tb.buckets {
			if now.Sub(b.lastSeen) >= tb.idleTTL {
				delete(tb.buckets, k)
			}
		}
		tb.sweepN = 0
	}
	if b, ok := tb.buckets[key]; ok {
		b.lastSeen = now
		return b.lim
	}
	lim := rate.NewLimiter(tb.rps, tb.burst)
	tb.buckets[key] = &bucket{lim: lim, lastSeen: now}
	return lim
}
