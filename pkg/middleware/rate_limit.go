package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/contextforge/contextforge/backend/go-services/pkg/logger"
	"github.com/contextforge/contextforge/backend/go-services/pkg/metrics"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more request for key is allowed. retry is a
// hint for the Retry-After header when it is not.
type Limiter interface {
	Allow(ctx context.Context, key string) (ok bool, retry time.Duration, err error)
	Name() string
}

// MemoryLimiter keeps one token bucket per key in process memory.
type MemoryLimiter struct {
	rps   float64
	burst int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func NewMemoryLimiter(rps float64, burst int) *MemoryLimiter {
	return &MemoryLimiter{rps: rps, burst: burst, buckets: make(map[string]*rate.Limiter)}
}

func (m *MemoryLimiter) Name() string { return "memory" }

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	m.mu.Lock()
	lim, ok := m.buckets[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(m.rps), m.burst)
		m.buckets[key] = lim
	}
	m.mu.Unlock()
	if lim.Allow() {
		return true, 0, nil
	}
	return false, time.Second, nil
}

// RateLimitMiddleware rejects requests over the limit with 429. Requests are
// keyed by authenticated subject when present, otherwise by client IP.
func RateLimitMiddleware(l Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if sub := subject(c); sub != "" {
			key = "sub:" + sub
		}
		ok, retry, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			logger.With("limiter", l.Name()).Errorf("rate limit check failed: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Rate limit check failed"})
			return
		}
		if !ok {
			secs := int(retry.Seconds())
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", fmt.Sprintf("%d", secs))
			metrics.RateLimitRejected.WithLabelValues(l.Name()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues(l.Name()).Inc()
		c.Next()
	}
}
