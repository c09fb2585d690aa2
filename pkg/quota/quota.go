// Package quota enforces per-tier resource limits for tenants.
package quota

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/origolabs/origo/pkg/observability"
	"github.com/origolabs/origo/pkg/plans"
)

// QuotaExceededError is returned when an operation would exceed quota
type QuotaExceededError struct {
	Resource plans.ResourceType
	Current  int64
	Limit    int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d/%d", e.Resource, e.Current, e.Limit)
}

// IsQuotaExceeded checks if an error is a quota exceeded error
func IsQuotaExceeded(err error) bool {
	var target *QuotaExceededError
	return errors.As(err, &target)
}

// UsageSource reports a tenant's live consumption of one resource.
type UsageSource interface {
	Usage(ctx context.Context, tenantID int64, resource plans.ResourceType) (int64, error)
}

// TierSource reports a tenant's plan tier.
type TierSource interface {
	TenantTier(ctx context.Context, tenantID int64) (plans.Tier, error)
}

// Status is one row of the quota dashboard.
type Status struct {
	Resource plans.ResourceType `json:"resource"`
	Current  int64              `json:"current"`
	Limit    int64              `json:"limit"`
	Percent  float64            `json:"percent"`
}

// Guard answers "may this tenant create one more X". Checks are advisory:
// usage is read outside any transaction, so two concurrent creations can
// both pass at the boundary. Callers that need a hard guarantee reserve
// through a Ledger inside their own transaction instead.
type Guard struct {
	usage   UsageSource
	tiers   TierSource
	metrics *observability.Metrics
}

// NewGuard creates a quota guard. metrics may be nil; checks are then
// not counted.
func NewGuard(usage UsageSource, tiers TierSource, metrics *observability.Metrics) *Guard {
	return &Guard{usage: usage, tiers: tiers, metrics: metrics}
}

// Check reports whether the tenant may create one more unit of resource.
// The comparison is strict: creation is allowed only while current usage
// is below the limit, so usage never passes it through this path.
func (g *Guard) Check(ctx context.Context, tenantID int64, resource plans.ResourceType) error {
	err := g.check(ctx, tenantID, resource)
	if g.metrics != nil {
		outcome := "allowed"
		switch {
		case IsQuotaExceeded(err):
			outcome = "denied"
		case err != nil:
			outcome = "error"
		}
		g.metrics.QuotaChecksTotal.WithLabelValues(string(resource), outcome).Inc()
	}
	return err
}

func (g *Guard) check(ctx context.Context, tenantID int64, resource plans.ResourceType) error {
	if !resource.Valid() {
		return fmt.Errorf("unknown resource type %q", resource)
	}

	tier, err := g.tiers.TenantTier(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to get tenant tier: %w", err)
	}
	limit := plans.ForTier(tier).Limit(resource)

	current, err := g.usage.Usage(ctx, tenantID, resource)
	if err != nil {
		return fmt.Errorf("failed to get usage: %w", err)
	}

	if current >= limit {
		return &QuotaExceededError{Resource: resource, Current: current, Limit: limit}
	}
	return nil
}

// CheckAll builds the full quota dashboard for a tenant, one status per
// resource type. Usage reads fan out concurrently; any failure fails the
// whole call.
func (g *Guard) CheckAll(ctx context.Context, tenantID int64) ([]Status, error) {
	tier, err := g.tiers.TenantTier(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant tier: %w", err)
	}
	limits := plans.ForTier(tier)

	resources := plans.ResourceTypes()
	statuses := make([]Status, len(resources))

	grp, grpCtx := errgroup.WithContext(ctx)
	for i, resource := range resources {
		i, resource := i, resource
		grp.Go(func() error {
			current, err := g.usage.Usage(grpCtx, tenantID, resource)
			if err != nil {
				return fmt.Errorf("failed to get %s usage: %w", resource, err)
			}
			limit := limits.Limit(resource)
			statuses[i] = Status{
				Resource: resource,
				Current:  current,
				Limit:    limit,
				Percent:  percentUsed(current, limit),
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Resource < statuses[j].Resource })
	return statuses, nil
}

// percentUsed returns usage as a whole percentage of the limit, 0 when
// the limit is 0 so a zero-limit resource never renders as a division
// error. Usage above the limit (after a downgrade) reads above 100.
func percentUsed(current, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return math.Round(float64(current) / float64(limit) * 100)
}
