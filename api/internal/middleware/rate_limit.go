package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"facility-compliance-system/shared/httpx"
)

// RateLimitMiddleware throttles per caller. Requests naming an actor are keyed by actor so
// clients behind one proxy do not share a bucket; the rest are keyed by client IP.
type RateLimitMiddleware struct {
	Limiter *IPRateLimiter
	Skip    func(*http.Request) bool
}

func rateLimitKey(r *http.Request) string {
	if actor := httpx.Actor(r); actor != "" {
		return "actor:" + actor
	}
	if ip := httpx.ClientIP(r); ip != "" {
		return "ip:" + ip
	}
	return "ip:unknown"
}

func (m RateLimitMiddleware) Wrap(next http.Handler) http.Handler {
	if m.Limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}
		ok, wait := m.Limiter.Take(rateLimitKey(r))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			httpx.WriteError(w, r, http.StatusTooManyRequests, "RESOURCE_EXHAUSTED", "rate limit exceeded",
				map[string]any{"retry_after_ms": wait.Milliseconds()},
			)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IPRateLimiter keeps one token bucket per key and forgets keys idle longer than ttl.
type IPRateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	clients   map[string]*clientLimiter
	lastSweep time.Time
	now       func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewIPRateLimiter(rps float64, burst int, ttl time.Duration) *IPRateLimiter {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(rps*2)))
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &IPRateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		ttl:     ttl,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

func (l *IPRateLimiter) Allow(key string) bool {
	ok, _ := l.Take(key)
	return ok
}

// Take spends one token for key. When none is available it reports how long until one is,
// without consuming it.
func (l *IPRateLimiter) Take(key string) (bool, time.Duration) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.ttl/2 {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > l.ttl {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now

	res := c.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, l.ttl
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}
