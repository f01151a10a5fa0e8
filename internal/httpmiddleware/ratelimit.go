package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// TokenBucket is an in-memory per-key rate limiter refilled every minute.
type TokenBucket struct {
	capacity int
	rate     int
	key      KeyFunc
	now      func() time.Time
	mu       sync.Mutex
	state    map[string]*bucket
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewTokenBucket creates a limiter with capacity tokens refilled at perMinute.
// A nil key charges requests to the client IP.
func NewTokenBucket(capacity, perMinute int, key KeyFunc) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	if key == nil {
		key = ClientIP
	}
	return &TokenBucket{
		capacity: capacity,
		rate:     perMinute,
		key:      key,
		now:      time.Now,
		state:    make(map[string]*bucket),
	}
}

// ClientIP keys requests by remote address.
func ClientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return "ip:" + ip
	}
	return "ip:unknown"
}

// SubjectOrIP keys requests by the value subject extracts, falling back to the client IP.
func SubjectOrIP(subject func(c *gin.Context) string) KeyFunc {
	return func(c *gin.Context) string {
		if s := subject(c); s != "" {
			return "sub:" + s
		}
		return ClientIP(c)
	}
}

// GinMiddleware returns a handler rejecting requests over the limit with 429.
func (l *TokenBucket) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(l.key(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

func (l *TokenBucket) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.state[key]
	if !ok {
		l.state[key] = &bucket{tokens: l.capacity - 1, last: now}
		return true
	}
	refill := int(now.Sub(b.last).Minutes() * float64(l.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}
