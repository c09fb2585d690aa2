package rbac

import (
	"context"
	"fmt"

	"github.com/origolabs/origo/pkg/auth"
	"github.com/origolabs/origo/pkg/observability"
)

// EngineStore is the persistence surface the engine evaluates against.
type EngineStore interface {
	// SubjectOverride returns the allow/deny override for (subject, tenant,
	// resource, action), or nil when none exists.
	SubjectOverride(ctx context.Context, subjectID, tenantID int64, resource, action string) (*bool, error)

	// MembershipRole returns the subject's role within the tenant.
	MembershipRole(ctx context.Context, subjectID, tenantID int64) (auth.RoleRef, bool, error)

	// CustomRole returns a custom role with its override list.
	CustomRole(ctx context.Context, roleID int64) (*CustomRole, []RoleOverride, error)
}

// Engine answers allow/deny questions. Given the same subject, tenant,
// resource and action against the same stored facts, it always returns the
// same answer: no hidden state, no time dependence.
type Engine struct {
	store   EngineStore
	table   *Table
	metrics *observability.Metrics
}

// NewEngine creates a permission engine over the given store. metrics
// may be nil; decisions are then not counted.
func NewEngine(store EngineStore, metrics *observability.Metrics) *Engine {
	return &Engine{store: store, table: NewTable(), metrics: metrics}
}

// Authorize decides whether the subject may perform action on resource
// inside the tenant. Absence of permission is a normal answer, not an error;
// the error return covers store failures only.
//
// Resolution order, first decisive answer wins:
//  1. superadmin subjects are always allowed
//  2. a subject override answers immediately, in both directions
//  3. a custom role's overrides (exact, then resource.*, then *), falling
//     back to its base system role
//  4. the system-role grant table
//  5. deny
func (e *Engine) Authorize(ctx context.Context, subject *auth.Subject, tenantID int64, resource, action string) (bool, error) {
	allowed, err := e.authorize(ctx, subject, tenantID, resource, action)
	if e.metrics != nil && err == nil {
		decision := "deny"
		if allowed {
			decision = "allow"
		}
		e.metrics.AuthzDecisionsTotal.WithLabelValues(resource, action, decision).Inc()
	}
	return allowed, err
}

func (e *Engine) authorize(ctx context.Context, subject *auth.Subject, tenantID int64, resource, action string) (bool, error) {
	if subject == nil {
		return false, nil
	}
	if subject.IsSuperadmin() {
		return true, nil
	}

	override, err := e.store.SubjectOverride(ctx, subject.ID, tenantID, resource, action)
	if err != nil {
		return false, fmt.Errorf("failed to look up subject override: %w", err)
	}
	if override != nil {
		return *override, nil
	}

	role, ok, err := e.store.MembershipRole(ctx, subject.ID, tenantID)
	if err != nil {
		return false, fmt.Errorf("failed to look up membership role: %w", err)
	}
	if !ok {
		// No membership row carries a role yet; fall back to the subject's
		// global role (single-role accounts predating per-tenant roles).
		role = subject.Role
	}

	switch role.Kind {
	case auth.RoleKindCustom:
		custom, overrides, err := e.store.CustomRole(ctx, role.CustomID)
		if err != nil {
			return false, fmt.Errorf("failed to load custom role %d: %w", role.CustomID, err)
		}
		if decided, allowed := evalOverrides(overrides, resource, action); decided {
			return allowed, nil
		}
		return e.table.Allows(custom.BasedOn, resource, action), nil
	case auth.RoleKindSystem:
		if role.System == auth.RoleSuperadmin {
			return true, nil
		}
		return e.table.Allows(role.System, resource, action), nil
	default:
		return false, nil
	}
}

// Require is Authorize for call sites that want a hard stop: it returns a
// PermissionDeniedError instead of false.
func (e *Engine) Require(ctx context.Context, subject *auth.Subject, tenantID int64, resource, action string) error {
	allowed, err := e.Authorize(ctx, subject, tenantID, resource, action)
	if err != nil {
		return err
	}
	if !allowed {
		return &PermissionDeniedError{Resource: resource, Action: action}
	}
	return nil
}

// evalOverrides walks an override list with exact-beats-wildcard precedence:
// exact (resource, action), then (resource, *), then (*, *). The first match
// is decisive.
func evalOverrides(overrides []RoleOverride, resource, action string) (decided, allowed bool) {
	var resourceWildcard, global *RoleOverride
	for i := range overrides {
		o := &overrides[i]
		switch {
		case o.Resource == resource && o.Action == action:
			return true, o.Allowed
		case o.Resource == resource && o.Action == Wildcard:
			if resourceWildcard == nil {
				resourceWildcard = o
			}
		case o.Resource == Wildcard && o.Action == Wildcard:
			if global == nil {
				global = o
			}
		}
	}
	if resourceWildcard != nil {
		return true, resourceWildcard.Allowed
	}
	if global != nil {
		return true, global.Allowed
	}
	return false, false
}
