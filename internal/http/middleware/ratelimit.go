// Per-caller token buckets. Every request draws from the caller's read
// bucket; POST, PUT, PATCH and DELETE also draw from a smaller write bucket.
// Buckets live in process memory. Replays of a completed idempotent request
// are not limited.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys buckets by the authenticated principal and falls back
// to the client IP, so the limiter must run after Authenticate. Keys are
// prefixed ("user:abc", "ip:203.0.113.7") to keep the namespaces apart.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if uid := UserID(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

// RatePolicy is a token bucket refilled at RPS tokens per second up to
// Burst tokens.
type RatePolicy struct {
	RPS   float64
	Burst int
}

func (p RatePolicy) limiter() *rate.Limiter {
	burst := p.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(p.RPS), burst)
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a read policy on every request and a write policy on
// mutating requests. It is safe for concurrent use.
type RateLimiter struct {
	read  RatePolicy
	write *RatePolicy
	keyFn keyFunc

	mu        sync.Mutex
	buckets   map[string]*bucket
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter limits every request to rps tokens per second with the
// given burst. Use WithWritePolicy to add the stricter write bucket.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	return &RateLimiter{
		read:    RatePolicy{RPS: rps, Burst: burst},
		keyFn:   keyFn,
		buckets: make(map[string]*bucket),
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

// WithWritePolicy makes POST, PUT, PATCH and DELETE requests also draw from
// a per-caller bucket governed by p. A zero policy disables it.
func (rl *RateLimiter) WithWritePolicy(p RatePolicy) *RateLimiter {
	if p.RPS > 0 {
		rl.write = &p
	} else {
		rl.write = nil
	}
	return rl
}

// bucketFor returns the limiter for key, creating it from p. Buckets idle
// for longer than idleTTL are swept at most once per idleTTL.
func (rl *RateLimiter) bucketFor(key string, p RatePolicy, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.idleTTL {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: p.limiter()}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// IsRateBypass reports whether IdempotencyValidator marked this request as
// the replay of a completed request.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// Handler returns the Gin middleware. A limited request gets 429 with the
// standard error envelope and a Retry-After header naming the seconds until
// a token is available.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		now := rl.now()
		key := rl.keyFn(c)

		if lim := rl.bucketFor("r|"+key, rl.read, now); !lim.AllowN(now, 1) {
			rl.reject(c, lim, now, "read")
			return
		}
		if rl.write != nil && isWrite(c.Request.Method) {
			if lim := rl.bucketFor("w|"+key, *rl.write, now); !lim.AllowN(now, 1) {
				rl.reject(c, lim, now, "write")
				return
			}
		}
		c.Next()
	}
}

func (rl *RateLimiter) reject(c *gin.Context, lim *rate.Limiter, now time.Time, class string) {
	wait := time.Second
	if r := lim.ReserveN(now, 1); r.OK() {
		wait = r.DelayFrom(now)
		r.CancelAt(now)
	}
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	LoggerFrom(c).Debug().Str("class", class).Int("retry_after", secs).Msg("rate limited")

	c.Header("Retry-After", strconv.Itoa(secs))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"request_id": c.Writer.Header().Get("X-Request-ID"),
		"code":       "too_many_requests",
		"message":    "rate limit exceeded",
	})
}
