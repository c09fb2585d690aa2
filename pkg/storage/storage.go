// Package storage opens and supervises the backing connections: the
// PostgreSQL pool the domain stores run on and the Redis client used for
// session pins and distributed rate limiting.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/origolabs/origo/pkg/config"
	"github.com/origolabs/origo/pkg/observability"
)

// OpenPostgres opens the PostgreSQL pool and verifies it answers.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return db, nil
}

// NewRedisClient builds the Redis client. The connection is verified
// lazily; callers that require Redis up front ping it themselves.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		MaxRetries: cfg.MaxRetries,
		PoolSize:   cfg.PoolSize,
	})
}

// ReportPoolStats copies connection-pool gauges into the metrics
// registry on an interval, until ctx is cancelled.
func ReportPoolStats(ctx context.Context, db *sql.DB, rdb *redis.Client, metrics *observability.Metrics, interval time.Duration) {
	if metrics == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if db != nil {
				stats := db.Stats()
				metrics.DBConnectionsActive.Set(float64(stats.InUse))
				metrics.DBConnectionsIdle.Set(float64(stats.Idle))
			}
			if rdb != nil {
				metrics.RedisConnectionsActive.Set(float64(rdb.PoolStats().TotalConns))
			}
		}
	}
}

// ReportPlatformStats copies platform-size gauges (tenant, membership
// and custom-role counts) into the metrics registry on an interval,
// until ctx is cancelled. A failed count read skips the tick; the
// gauges keep their last value.
func ReportPlatformStats(ctx context.Context, db *sql.DB, metrics *observability.Metrics, interval time.Duration) {
	if metrics == nil || db == nil {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var tenantCount, membershipCount, customRoleCount int64
			err := db.QueryRowContext(ctx, `
				SELECT
					(SELECT COUNT(*) FROM tenants),
					(SELECT COUNT(*) FROM memberships),
					(SELECT COUNT(*) FROM custom_roles)`).
				Scan(&tenantCount, &membershipCount, &customRoleCount)
			if err != nil {
				continue
			}
			metrics.TenantsTotal.Set(float64(tenantCount))
			metrics.MembershipsTotal.Set(float64(membershipCount))
			metrics.CustomRolesTotal.Set(float64(customRoleCount))
		}
	}
}
