// Package content provides the minimal content surface quota limits
// apply to: pages, posts and courses owned by a tenant.
package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/origolabs/origo/pkg/plans"
	"github.com/origolabs/origo/pkg/quota"
)

// ErrSlugTaken is returned when a slug already exists within the tenant.
var ErrSlugTaken = errors.New("slug already in use")

// ErrNotFound is returned when a content item does not exist.
var ErrNotFound = errors.New("content not found")

// Item is one piece of tenant content.
type Item struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// tableFor maps a countable resource to its table. Only creatable
// content resources appear here.
func tableFor(resource plans.ResourceType) (string, bool) {
	switch resource {
	case plans.ResourcePages:
		return "pages", true
	case plans.ResourcePosts:
		return "posts", true
	case plans.ResourceCourses:
		return "courses", true
	default:
		return "", false
	}
}

// Store persists tenant content. Creation reserves quota and inserts in
// one transaction, so two concurrent creations cannot both squeeze past
// the limit.
type Store struct {
	db     *sql.DB
	ledger *quota.Ledger
	tiers  quota.TierSource
}

// NewStore creates a content store.
func NewStore(db *sql.DB, tiers quota.TierSource) *Store {
	return &Store{db: db, ledger: quota.NewLedger(db), tiers: tiers}
}

// Create inserts one content item under the tenant's quota.
func (s *Store) Create(ctx context.Context, resource plans.ResourceType, item *Item) error {
	table, ok := tableFor(resource)
	if !ok {
		return fmt.Errorf("resource %q is not creatable content", resource)
	}

	tier, err := s.tiers.TenantTier(ctx, item.TenantID)
	if err != nil {
		return err
	}
	limit := plans.ForTier(tier).Limit(resource)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.ledger.Reserve(ctx, tx, item.TenantID, resource, 1, limit); err != nil {
		return err
	}

	var taken int
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE tenant_id = $1 AND slug = $2`, table),
		item.TenantID, item.Slug,
	).Scan(&taken)
	if err != nil {
		return fmt.Errorf("failed to check slug: %w", err)
	}
	if taken > 0 {
		return ErrSlugTaken
	}

	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`
			INSERT INTO %s (tenant_id, title, slug, body)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at, updated_at
		`, table),
		item.TenantID, item.Title, item.Slug, item.Body,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", table, err)
	}

	return tx.Commit()
}

// List returns the tenant's content of one resource, newest first.
func (s *Store) List(ctx context.Context, resource plans.ResourceType, tenantID int64) ([]Item, error) {
	table, ok := tableFor(resource)
	if !ok {
		return nil, fmt.Errorf("resource %q is not creatable content", resource)
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`
			SELECT id, tenant_id, title, slug, COALESCE(body, ''), created_at, updated_at
			FROM %s WHERE tenant_id = $1 ORDER BY created_at DESC, id DESC
		`, table),
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.TenantID, &it.Title, &it.Slug, &it.Body, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Delete removes one content item and releases its quota reservation.
func (s *Store) Delete(ctx context.Context, resource plans.ResourceType, tenantID, id int64) error {
	table, ok := tableFor(resource)
	if !ok {
		return fmt.Errorf("resource %q is not creatable content", resource)
	}

	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND tenant_id = $2`, table),
		id, tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return s.ledger.Release(ctx, tenantID, resource, 1)
}
