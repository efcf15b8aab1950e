package middleware

import (
	"net/http"
	"sync"
	"time"
)

// visitor is one client's token bucket. Tokens refill continuously at the
// configured rate; a request spends one.
type visitor struct {
	tokens float64
	seen   time.Time
}

type ipLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	perSec   float64
	burst    float64
}

func newIPLimiter(perSec float64, burst int) *ipLimiter {
	if burst < 1 {
		burst = 1
	}
	l := &ipLimiter{
		visitors: make(map[string]*visitor),
		perSec:   perSec,
		burst:    float64(burst),
	}
	go l.evictLoop()
	return l
}

func (l *ipLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{tokens: l.burst, seen: now}
		l.visitors[ip] = v
	}

	v.tokens += now.Sub(v.seen).Seconds() * l.perSec
	if v.tokens > l.burst {
		v.tokens = l.burst
	}
	v.seen = now

	if v.tokens < 1 {
		return false
	}
	v.tokens--
	return true
}

// evictLoop drops buckets idle for 10 minutes so the map stays bounded.
func (l *ipLimiter) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-10 * time.Minute)
		l.mu.Lock()
		for ip, v := range l.visitors {
			if v.seen.Before(cutoff) {
				delete(l.visitors, ip)
			}
		}
		l.mu.Unlock()
	}
}

func clientIP(r *http.Request) string {
	// chi's RealIP middleware runs earlier in the chain and rewrites
	// RemoteAddr from the forwarding headers.
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// RateLimit rejects clients exceeding perSec sustained requests per second
// (with the given burst allowance) with 429 Too Many Requests. The public
// booking and slot endpoints sit behind this; authenticated settlement has
// its own redis-backed velocity guard on top.
func RateLimit(perSec float64, burst int) func(http.Handler) http.Handler {
	limiter := newIPLimiter(perSec, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(clientIP(r), time.Now()) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
