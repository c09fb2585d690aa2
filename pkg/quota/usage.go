package quota

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/origolabs/origo/pkg/plans"
)

// SQLUsageSource computes usage by counting live rows. Counts are always
// current: deleting content frees quota immediately, with no usage
// counter to drift out of sync.
type SQLUsageSource struct {
	db *sql.DB
}

// NewSQLUsageSource creates a usage source over the content tables.
func NewSQLUsageSource(db *sql.DB) *SQLUsageSource {
	return &SQLUsageSource{db: db}
}

// Usage returns the tenant's current consumption of one resource.
// Storage is reported in megabytes, rounded up so a tenant cannot sit at
// "0 MB" while holding real bytes.
func (s *SQLUsageSource) Usage(ctx context.Context, tenantID int64, resource plans.ResourceType) (int64, error) {
	switch resource {
	case plans.ResourceUsers:
		return s.count(ctx, "SELECT COUNT(*) FROM memberships WHERE tenant_id = $1", tenantID)
	case plans.ResourcePages:
		return s.count(ctx, "SELECT COUNT(*) FROM pages WHERE tenant_id = $1", tenantID)
	case plans.ResourcePosts:
		return s.count(ctx, "SELECT COUNT(*) FROM posts WHERE tenant_id = $1", tenantID)
	case plans.ResourceCourses:
		return s.count(ctx, "SELECT COUNT(*) FROM courses WHERE tenant_id = $1", tenantID)
	case plans.ResourceStorage:
		bytes, err := s.count(ctx, "SELECT COALESCE(SUM(size_bytes), 0) FROM media WHERE tenant_id = $1", tenantID)
		if err != nil {
			return 0, err
		}
		return (bytes + 1024*1024 - 1) / (1024 * 1024), nil
	default:
		return 0, fmt.Errorf("unknown resource type %q", resource)
	}
}

func (s *SQLUsageSource) count(ctx context.Context, query string, tenantID int64) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, query, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return n, nil
}

// Ledger is the transactional alternative to the advisory Guard. Reserve
// runs a guarded update against the tenant_usage table inside the
// caller's transaction, so the reservation commits or rolls back together
// with the row it pays for.
type Ledger struct {
	db *sql.DB
}

// NewLedger creates a quota ledger.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Reserve atomically claims n units of resource for the tenant, failing
// with QuotaExceededError when the claim would pass the limit. The guard
// lives in the WHERE clause, so two concurrent reservations cannot both
// slip under the limit.
func (l *Ledger) Reserve(ctx context.Context, tx *sql.Tx, tenantID int64, resource plans.ResourceType, n, limit int64) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE tenant_usage
		SET used = used + $1
		WHERE tenant_id = $2 AND resource = $3 AND used + $1 <= $4
	`, n, tenantID, string(resource), limit)
	if err != nil {
		return fmt.Errorf("failed to reserve quota: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Either no usage row exists yet or the guard rejected the claim.
	var used int64
	err = tx.QueryRowContext(ctx,
		"SELECT used FROM tenant_usage WHERE tenant_id = $1 AND resource = $2",
		tenantID, string(resource),
	).Scan(&used)
	if err == sql.ErrNoRows {
		if n > limit {
			return &QuotaExceededError{Resource: resource, Current: 0, Limit: limit}
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO tenant_usage (tenant_id, resource, used) VALUES ($1, $2, $3)",
			tenantID, string(resource), n,
		); err != nil {
			return fmt.Errorf("failed to initialize usage row: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read usage row: %w", err)
	}
	return &QuotaExceededError{Resource: resource, Current: used, Limit: limit}
}

// Release returns n units of resource, flooring at zero.
func (l *Ledger) Release(ctx context.Context, tenantID int64, resource plans.ResourceType, n int64) error {
	_, err := l.db.ExecContext(ctx, `
		UPDATE tenant_usage
		SET used = GREATEST(used - $1, 0)
		WHERE tenant_id = $2 AND resource = $3
	`, n, tenantID, string(resource))
	if err != nil {
		return fmt.Errorf("failed to release quota: %w", err)
	}
	return nil
}
