package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/origolabs/origo/pkg/httputil"
)

// RateLimitConfig sets per-principal request budgets. Authenticated
// subjects and anonymous IPs get separate budgets so one noisy scraper
// cannot starve logged-in users behind the same NAT.
type RateLimitConfig struct {
	SubjectRequestsPerMinute   int
	AnonymousRequestsPerMinute int
	BurstMultiplier            float64
}

// DefaultRateLimitConfig returns the stock limits.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		SubjectRequestsPerMinute:   300,
		AnonymousRequestsPerMinute: 60,
		BurstMultiplier:            1.5,
	}
}

type tokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func (b *tokenBucket) take(now time.Time) bool {
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RateLimiter is an in-process token-bucket limiter keyed by principal.
// Suitable for single-instance deployments; multi-instance setups use
// DistributedRateLimiter so the budget is shared.
type RateLimiter struct {
	config  RateLimitConfig
	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

// NewRateLimiter creates an in-process rate limiter.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		buckets: make(map[string]*tokenBucket),
	}
	go rl.cleanup()
	return rl
}

// Allow reports whether the principal may proceed, plus the limit and an
// approximate remaining count for response headers.
func (rl *RateLimiter) Allow(key string, perMinute int) (allowed bool, limit, remaining int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, ok := rl.buckets[key]
	if !ok {
		max := float64(perMinute) * rl.config.BurstMultiplier
		bucket = &tokenBucket{
			tokens:     max,
			maxTokens:  max,
			refillRate: float64(perMinute) / 60.0,
			lastRefill: time.Now(),
		}
		rl.buckets[key] = bucket
	}

	allowed = bucket.take(time.Now())
	return allowed, perMinute, int(bucket.tokens)
}

// cleanup drops buckets idle long enough to be full again.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		cutoff := time.Now().Add(-10 * time.Minute)
		for key, bucket := range rl.buckets {
			if bucket.lastRefill.Before(cutoff) {
				delete(rl.buckets, key)
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimitMiddleware applies the limiter. Authenticated requests are
// keyed by subject id, anonymous ones by client IP.
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, perMinute := principalKey(r, limiter.config)

			allowed, limit, remaining := limiter.Allow(key, perMinute)
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

			if !allowed {
				w.Header().Set("Retry-After", "60")
				httputil.WriteTooManyRequests(w, "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// principalKey picks the bucket key and budget for a request.
func principalKey(r *http.Request, config RateLimitConfig) (string, int) {
	if subject := GetSubject(r.Context()); subject != nil {
		return fmt.Sprintf("subject:%d", subject.ID), config.SubjectRequestsPerMinute
	}
	return "ip:" + clientIP(r), config.AnonymousRequestsPerMinute
}

// clientIP extracts the caller address, trusting forwarding headers set
// by the fronting proxy.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
