package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/origolabs/origo/pkg/httputil"
	"github.com/origolabs/origo/pkg/observability"
)

// DistributedRateLimiter shares request budgets across instances through
// Redis fixed windows. When Redis is unreachable it fails open; dropped
// rate limiting degrades service quality, dropped requests break it.
type DistributedRateLimiter struct {
	client *redis.Client
	config RateLimitConfig
	logger *observability.Logger
}

// NewDistributedRateLimiter creates a Redis-backed rate limiter.
func NewDistributedRateLimiter(client *redis.Client, config RateLimitConfig, logger *observability.Logger) *DistributedRateLimiter {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &DistributedRateLimiter{client: client, config: config, logger: logger}
}

// Allow increments the principal's window counter and compares it to the
// budget. limit and remaining feed the response headers; reset is when
// the current window expires.
func (d *DistributedRateLimiter) Allow(ctx context.Context, key string, perMinute int) (allowed bool, limit, remaining int, reset time.Time) {
	window := time.Now().Unix() / 60
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, window)

	pipe := d.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		d.logger.WithError(err).Warn("rate limit backend unavailable, allowing request")
		return true, perMinute, perMinute, time.Now()
	}

	count := int(incr.Val())
	remaining = perMinute - count
	if remaining < 0 {
		remaining = 0
	}
	reset = time.Unix((window+1)*60, 0)
	return count <= perMinute, perMinute, remaining, reset
}

// Middleware applies the distributed limiter with the same keying as the
// in-process one.
func (d *DistributedRateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, perMinute := principalKey(r, d.config)

			allowed, limit, remaining, reset := d.Allow(r.Context(), key, perMinute)
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset.Unix()))

			if !allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(time.Until(reset).Seconds())+1))
				httputil.WriteTooManyRequests(w, "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HealthCheck verifies the Redis backend is reachable.
func (d *DistributedRateLimiter) HealthCheck(ctx context.Context) error {
	if err := d.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("rate limit backend unreachable: %w", err)
	}
	return nil
}
