// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements an in-process token-bucket rate limiter for comment
// writes. Buckets are keyed per actor (X-User-ID) or client IP and held in a
// bounded expirable LRU, so idle buckets and floods of distinct keys are both
// evicted. Reads are not limited unless configured.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	defaultMaxVisitors = 100_000
	defaultVisitorTTL  = 10 * time.Minute
)

// KeyFunc maps a request to a bucket identity.
type KeyFunc func(*gin.Context) string

// KeyByActorOrIP prefers the actor id and falls back to the client IP. Keys are
// prefixed so the two namespaces never collide.
func KeyByActorOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if id := ActorID(c); id != "" {
			return "actor:" + id
		}
		return "ip:" + c.ClientIP()
	}
}

// RateLimiter is a per-key token-bucket limiter, safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn KeyFunc

	// WritesOnly skips GET, HEAD and OPTIONS requests.
	WritesOnly bool

	mu       sync.Mutex
	visitors *expirable.LRU[string, *rate.Limiter]
}

// NewRateLimiter builds a limiter refilling rps tokens per second with the
// given burst (coerced to at least 1).
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc) *RateLimiter {
	return newRateLimiter(rps, burst, keyFn, defaultMaxVisitors, defaultVisitorTTL)
}

func newRateLimiter(rps float64, burst int, keyFn KeyFunc, maxVisitors int, ttl time.Duration) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if keyFn == nil {
		keyFn = KeyByActorOrIP()
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: expirable.NewLRU[string, *rate.Limiter](maxVisitors, nil, ttl),
	}
}

// limiter returns the bucket for key. Every lookup re-adds the bucket so its
// expiry counts from the last request rather than the first.
func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	lim, ok := rl.visitors.Get(key)
	if !ok {
		lim = rate.NewLimiter(rl.rps, rl.burst)
	}
	rl.visitors.Add(key, lim)
	return lim
}

// IsRateBypass reports whether IdempotencyValidator exempted this request.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the limit, answering 429 with Retry-After: 1 when a bucket
// is empty. Idempotent replays are never limited.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) || (rl.WritesOnly && isSafeMethod(c.Request.Method)) {
			c.Next()
			return
		}
		if rl.limiter(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}

		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}
