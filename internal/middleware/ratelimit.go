package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/formforge/formforge-backend/internal/response"
)

// KeyFunc derives the bucket key for a request. Respondent routes bucket by
// session id so one noisy client cannot starve others behind the same NAT;
// everything else buckets by IP.
type KeyFunc func(c *gin.Context) string

// KeyByIP buckets requests by client IP.
func KeyByIP(c *gin.Context) string {
	return c.ClientIP()
}

// KeyBySessionParam buckets requests by the :session_id route param,
// falling back to IP when absent.
func KeyBySessionParam(c *gin.Context) string {
	if id := c.Param("session_id"); id != "" {
		return "session:" + id
	}
	return c.ClientIP()
}

// RateLimiter is a token bucket limiter with a fixed refill rate.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	rate     int           // Tokens added per interval
	interval time.Duration // Refill interval
	burst    int           // Bucket capacity
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewRateLimiter creates a limiter granting rate tokens per interval with
// the given burst capacity.
func NewRateLimiter(rate int, interval time.Duration, burst int) *RateLimiter {
	if burst < rate {
		burst = rate
	}
	rl := &RateLimiter{
		buckets:  make(map[string]*bucket),
		rate:     rate,
		interval: interval,
		burst:    burst,
	}

	// Drop idle buckets so the map does not grow with dead sessions.
	go func() {
		for range time.Tick(time.Minute) {
			rl.cleanup()
		}
	}()

	return rl
}

// Middleware returns a Gin middleware enforcing the limit per key.
func (rl *RateLimiter) Middleware(key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(key(c)) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.burst, lastRefill: now}
		rl.buckets[key] = b
	}

	if refill := int(now.Sub(b.lastRefill)/rl.interval) * rl.rate; refill > 0 {
		b.tokens += refill
		if b.tokens > rl.burst {
			b.tokens = rl.burst
		}
		b.lastRefill = now
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.buckets {
		if time.Since(b.lastRefill) > 3*time.Minute {
			delete(rl.buckets, key)
		}
	}
}
