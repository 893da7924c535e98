package middleware

import (
	"net/http"
	"sync"
	"time"
)

const visitorIdleEviction = 10 * time.Minute

// visitor is one caller's token bucket.
type visitor struct {
	tokens   float64
	lastSeen time.Time
}

// Limiter applies a token-bucket limit per caller IP. WhatsApp retries
// aggressively on slow webhooks, so the limiter sheds bursts instead of
// queueing them.
type Limiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rate      float64
	burst     float64
	lastSweep time.Time
	now       func() time.Time
}

// NewLimiter allows rate requests per second with the given burst per IP.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		burst:    float64(burst),
		now:      time.Now,
	}
}

// Allow reports whether a request from ip fits the budget.
func (l *Limiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	v, ok := l.visitors[ip]
	if !ok {
		l.visitors[ip] = &visitor{tokens: l.burst - 1, lastSeen: now}
		return true
	}
	v.tokens += now.Sub(v.lastSeen).Seconds() * l.rate
	if v.tokens > l.burst {
		v.tokens = l.burst
	}
	v.lastSeen = now
	if v.tokens < 1 {
		return false
	}
	v.tokens--
	return true
}

// sweep drops buckets idle past the eviction window. Runs inline under the
// lock at most once per window, which keeps the map bounded without a
// background goroutine.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < visitorIdleEviction {
		return
	}
	l.lastSweep = now
	cutoff := now.Add(-visitorIdleEviction)
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
		}
	}
}

// RateLimit rejects requests over the per-IP budget with 429.
func RateLimit(rate float64, burst int) func(http.Handler) http.Handler {
	limiter := NewLimiter(rate, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			// chi's RealIP middleware rewrites RemoteAddr from X-Real-Ip,
			// but keep the header fallback for bare handler tests.
			if xri := r.Header.Get("X-Real-Ip"); xri != "" {
				ip = xri
			}
			if !limiter.Allow(ip) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
