package rbac

import (
	"context"
	"fmt"
	"strings"
)

// Registry is the management surface for custom roles: CRUD plus the
// resolved view used by role editors. Evaluation stays in Engine; the
// registry never answers allow/deny questions itself.
type Registry struct {
	store *Store
	table *Table
}

// NewRegistry creates a role registry over the given store.
func NewRegistry(store *Store) *Registry {
	return &Registry{store: store, table: NewTable()}
}

// CreateRole validates and persists a new custom role.
func (r *Registry) CreateRole(ctx context.Context, role *CustomRole) error {
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return fmt.Errorf("role name is required")
	}
	return r.store.CreateRole(ctx, role)
}

// GetRole retrieves a custom role by id.
func (r *Registry) GetRole(ctx context.Context, roleID int64) (*CustomRole, error) {
	return r.store.GetRole(ctx, roleID)
}

// ListRoles lists a tenant's custom roles.
func (r *Registry) ListRoles(ctx context.Context, tenantID int64) ([]CustomRole, error) {
	return r.store.ListRoles(ctx, tenantID)
}

// UpdateRole updates a custom role's name, description and base role.
func (r *Registry) UpdateRole(ctx context.Context, role *CustomRole) error {
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return fmt.Errorf("role name is required")
	}
	return r.store.UpdateRole(ctx, role)
}

// DeleteRole deletes a custom role unless subjects still reference it, in
// which case it returns RoleInUseError with the reference count.
func (r *Registry) DeleteRole(ctx context.Context, roleID int64) error {
	return r.store.DeleteRole(ctx, roleID)
}

// ResolveRole returns the full editing view of a custom role: the grants
// inherited from its base system role plus its override list.
func (r *Registry) ResolveRole(ctx context.Context, roleID int64) (*ResolvedRole, error) {
	role, overrides, err := r.store.CustomRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return &ResolvedRole{
		Role:       *role,
		BaseGrants: r.table.Grants(role.BasedOn),
		Overrides:  overrides,
	}, nil
}

// UpsertPermission adds or updates one allow/deny override on a role.
// Setting the same (resource, action) twice replaces the earlier value.
func (r *Registry) UpsertPermission(ctx context.Context, o *RoleOverride) error {
	if err := validatePermissionTarget(o.Resource, o.Action); err != nil {
		return err
	}
	if _, err := r.store.GetRole(ctx, o.RoleID); err != nil {
		return err
	}
	return r.store.UpsertOverride(ctx, o)
}

// RemovePermission removes one override from a role.
func (r *Registry) RemovePermission(ctx context.Context, roleID int64, resource, action string) error {
	if _, err := r.store.GetRole(ctx, roleID); err != nil {
		return err
	}
	return r.store.DeleteOverride(ctx, roleID, resource, action)
}

// ListPermissions lists a role's overrides.
func (r *Registry) ListPermissions(ctx context.Context, roleID int64) ([]RoleOverride, error) {
	return r.store.ListOverrides(ctx, roleID)
}

// SetSubjectOverride upserts a per-subject override.
func (r *Registry) SetSubjectOverride(ctx context.Context, o *SubjectOverride) error {
	if err := validatePermissionTarget(o.Resource, o.Action); err != nil {
		return err
	}
	return r.store.SetSubjectOverride(ctx, o)
}

// ClearSubjectOverride removes a per-subject override.
func (r *Registry) ClearSubjectOverride(ctx context.Context, subjectID, tenantID int64, resource, action string) error {
	return r.store.DeleteSubjectOverride(ctx, subjectID, tenantID, resource, action)
}

// validatePermissionTarget rejects empty targets and the unsupported
// "*.action" shape: a wildcard resource only pairs with a wildcard action.
func validatePermissionTarget(resource, action string) error {
	if resource == "" || action == "" {
		return fmt.Errorf("resource and action are required")
	}
	if resource == Wildcard && action != Wildcard {
		return fmt.Errorf("wildcard resource requires wildcard action")
	}
	return nil
}
