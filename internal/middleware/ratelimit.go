package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// bucketIdleTTL bounds how long an idle caller's bucket survives before the
// sweep reclaims it.
const bucketIdleTTL = 10 * time.Minute

// RateLimiter throttles callers per client IP with a token bucket each. The
// bucket map is swept of idle entries as new callers arrive, so memory stays
// proportional to the active caller set.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	buckets map[string]*callerBucket
}

type callerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter sizes buckets from a requests-per-minute budget. The burst
// admits a few seconds of the budget at once; a zero or negative budget
// disables limiting entirely.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	burst := requestsPerMinute / 12
	if burst < 3 {
		burst = 3
	}
	return &RateLimiter{
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   burst,
		buckets: make(map[string]*callerBucket),
	}
}

// Handler returns the gin middleware. A nil receiver yields a pass-through so
// wiring never has to branch on whether limiting is configured.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		if !r.bucketFor(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many requests. Please slow down.",
			})
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) bucketFor(key string) *rate.Limiter {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.buckets[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	r.sweepLocked(now)
	limiter := rate.NewLimiter(r.limit, r.burst)
	r.buckets[key] = &callerBucket{limiter: limiter, lastSeen: now}
	return limiter
}

func (r *RateLimiter) sweepLocked(now time.Time) {
	for key, entry := range r.buckets {
		if now.Sub(entry.lastSeen) > bucketIdleTTL {
			delete(r.buckets, key)
		}
	}
}
