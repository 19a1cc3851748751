package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/guildhall-io/guildhall/pkg/contextkeys"
)

// RateLimitConfig defines a token-bucket rate limit
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
	BurstSize         int
}

// DefaultRateLimitConfig limits anonymous traffic
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    time.Minute,
		BurstSize:         10,
	}
}

// PerUserRateLimitConfig limits authenticated traffic
func PerUserRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 600,
		WindowDuration:    time.Minute,
		BurstSize:         30,
	}
}

// BulkActionRateLimitConfig limits bulk admin executions, which fan out
// to many accounts per request.
func BulkActionRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Minute,
		BurstSize:         0,
	}
}

// RateLimiter is an in-memory per-key token bucket
type RateLimiter struct {
	config  *RateLimitConfig
	buckets map[string]*bucket
	mu      sync.Mutex
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
}

// NewRateLimiter creates a rate limiter; a nil config gets the default
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	return &RateLimiter{config: config, buckets: make(map[string]*bucket)}
}

// Allow consumes one token for the key, refilling by elapsed time
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	maxTokens := rl.config.RequestsPerWindow + rl.config.BurstSize
	now := time.Now()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: maxTokens, lastUpdate: now}
		rl.buckets[key] = b
	}

	refill := int(now.Sub(b.lastUpdate).Seconds() *
		float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds())
	if refill > 0 {
		b.tokens += refill
		if b.tokens > maxTokens {
			b.tokens = maxTokens
		}
		b.lastUpdate = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Remaining returns the tokens left for a key
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if b, ok := rl.buckets[key]; ok {
		return b.tokens
	}
	return rl.config.RequestsPerWindow + rl.config.BurstSize
}

// Cleanup drops buckets idle for two windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-2 * rl.config.WindowDuration)
	for key, b := range rl.buckets {
		if b.lastUpdate.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// RateLimitMiddleware applies per-user limits to authenticated requests
// and per-IP limits to anonymous ones.
type RateLimitMiddleware struct {
	userLimiter *RateLimiter
	anonLimiter *RateLimiter
	done        chan struct{}
}

// NewRateLimitMiddleware creates the middleware with the standard tiers
func NewRateLimitMiddleware() *RateLimitMiddleware {
	m := &RateLimitMiddleware{
		userLimiter: NewRateLimiter(PerUserRateLimitConfig()),
		anonLimiter: NewRateLimiter(DefaultRateLimitConfig()),
		done:        make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

func (m *RateLimitMiddleware) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.userLimiter.Cleanup()
			m.anonLimiter.Cleanup()
		case <-m.done:
			return
		}
	}
}

// Close stops the cleanup loop
func (m *RateLimitMiddleware) Close() {
	close(m.done)
}

// Handler wraps next with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var key string
		var limiter *RateLimiter

		if actorID, ok := contextkeys.Actor(r.Context()); ok {
			key = fmt.Sprintf("user:%d", actorID)
			limiter = m.userLimiter
		} else {
			key = "ip:" + clientIP(r)
			limiter = m.anonLimiter
		}

		if !limiter.Allow(key) {
			writeRateLimited(w, limiter.config)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.config.RequestsPerWindow))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", limiter.Remaining(key)))
		next.ServeHTTP(w, r)
	})
}

func writeRateLimited(w http.ResponseWriter, config *RateLimitConfig) {
	retryAfter := fmt.Sprintf("%.0f", config.WindowDuration.Seconds())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", retryAfter)
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", config.RequestsPerWindow))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"rate limit exceeded","retry_after":` + retryAfter + `}`))
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
