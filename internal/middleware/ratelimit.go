package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"marks-access/internal/config"
)

// RateLimiter allows a fixed number of requests per client IP per window
type RateLimiter struct {
	enabled  bool
	requests int
	duration time.Duration
	visitors *expirable.LRU[string, *visitor]
	mu       sync.Mutex
}

type visitor struct {
	windowStart time.Time
	count       int
}

// NewRateLimiter creates a new rate limiter. A visitor entry expires one window
// after it was created, which starts a fresh window on the next request.
func NewRateLimiter(cfg *config.RateLimitConfig) *RateLimiter {
	maxClients := cfg.MaxClients
	if maxClients <= 0 {
		maxClients = 10000
	}
	duration := cfg.Duration
	if duration <= 0 {
		duration = time.Minute
	}
	return &RateLimiter{
		enabled:  cfg.Enabled,
		requests: cfg.Requests,
		duration: duration,
		visitors: expirable.NewLRU[string, *visitor](maxClients, nil, duration),
	}
}

// allow counts one request for ip and reports whether it is within the limit
func (rl *RateLimiter) allow(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors.Get(ip)
	if !ok {
		rl.visitors.Add(ip, &visitor{windowStart: time.Now(), count: 1})
		return true, 0
	}
	if v.count >= rl.requests {
		return false, rl.duration - time.Since(v.windowStart)
	}
	v.count++
	return true, 0
}

// Limit rate limits requests based on IP address
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.enabled || rl.requests <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ok, retryAfter := rl.allow(getIP(r))
		if !ok {
			if secs := int(retryAfter.Seconds()); secs > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(secs))
			}
			respondWithError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getIP gets the client IP address from the request
func getIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
