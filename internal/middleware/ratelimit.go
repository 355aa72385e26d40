package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// RateLimiter throttles requests per client IP.
type RateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*clientLimiter
	now     func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows rpm requests per minute per client. A non-positive rpm
// disables limiting and returns nil.
func NewRateLimiter(rpm int) *RateLimiter {
	if rpm <= 0 {
		return nil
	}
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(float64(rpm) / 60),
		burst:   burst,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

// Allow reports whether key may make another request now.
func (l *RateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	now := l.now()
	cl, ok := l.clients[key]
	if !ok {
		l.evictIdle(now)
		cl = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = cl
	}
	cl.lastSeen = now
	l.mu.Unlock()

	return cl.limiter.AllowN(now, 1)
}

// Handler returns the gin middleware.
func (l *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "message": "Too many requests"})
			return
		}
		c.Next()
	}
}

// evictIdle drops limiters not used for limiterIdleTTL. Caller holds l.mu.
func (l *RateLimiter) evictIdle(now time.Time) {
	for key, cl := range l.clients {
		if now.Sub(cl.lastSeen) > limiterIdleTTL {
			delete(l.clients, key)
		}
	}
}
