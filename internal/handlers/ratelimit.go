package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter throttles the payment endpoints per client IP.
type RateLimiter struct {
	mu      sync.Mutex
	perIP   map[string]*visitor
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows n requests per window for each client IP.
func NewRateLimiter(n int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		perIP:   map[string]*visitor{},
		limit:   rate.Every(window / time.Duration(n)),
		burst:   n,
		idleTTL: 10 * window,
	}
}

// Allow reports whether key may make another request now.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if len(l.perIP) > 4096 {
		for k, v := range l.perIP {
			if now.Sub(v.lastSeen) > l.idleTTL {
				delete(l.perIP, k)
			}
		}
	}
	v, ok := l.perIP[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.perIP[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many payment requests, please wait a minute before trying again",
			})
			return
		}
		c.Next()
	}
}
