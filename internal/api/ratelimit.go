package api

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterIdle = 5 * time.Minute

type clientLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// clientLimiters holds one token bucket per client IP
type clientLimiters struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

func newClientLimiters(perMinute int) *clientLimiters {
	return &clientLimiters{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   max(perMinute/2, 1),
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

func (l *clientLimiters) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, cl := range l.clients {
		if now.After(cl.expires) {
			delete(l.clients, k)
		}
	}
	cl, ok := l.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = cl
	}
	cl.expires = now.Add(limiterIdle)
	return cl.limiter.AllowN(now, 1)
}

// rateLimit refuses clients over the configured requests per minute. Zero
// disables it.
func (r *Router) rateLimit() gin.HandlerFunc {
	if r.cfg.Server.RateLimitPerMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiters := newClientLimiters(r.cfg.Server.RateLimitPerMinute)
	return func(c *gin.Context) {
		if !limiters.allow(c.ClientIP()) {
			r.sendError(c, NewError(CodeTooManyRequests, "rate limit exceeded"))
			return
		}
		c.Next()
	}
}
