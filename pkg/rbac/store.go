package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/origolabs/origo/pkg/auth"
)

// Store handles role and override persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new rbac store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SubjectOverride returns the allow/deny override for (subject, tenant,
// resource, action), or nil when none exists.
func (s *Store) SubjectOverride(ctx context.Context, subjectID, tenantID int64, resource, action string) (*bool, error) {
	query := `
		SELECT allowed
		FROM subject_permission_overrides
		WHERE subject_id = $1 AND tenant_id = $2 AND resource = $3 AND action = $4
	`
	var allowed bool
	err := s.db.QueryRowContext(ctx, query, subjectID, tenantID, resource, action).Scan(&allowed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subject override: %w", err)
	}
	return &allowed, nil
}

// SetSubjectOverride upserts a per-subject override.
func (s *Store) SetSubjectOverride(ctx context.Context, o *SubjectOverride) error {
	query := `
		INSERT INTO subject_permission_overrides (subject_id, tenant_id, resource, action, allowed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (subject_id, tenant_id, resource, action)
		DO UPDATE SET allowed = EXCLUDED.allowed
	`
	now := time.Now()
	if _, err := s.db.ExecContext(ctx, query, o.SubjectID, o.TenantID, o.Resource, o.Action, o.Allowed, now); err != nil {
		return fmt.Errorf("failed to set subject override: %w", err)
	}
	o.CreatedAt = now
	return nil
}

// DeleteSubjectOverride removes a per-subject override.
func (s *Store) DeleteSubjectOverride(ctx context.Context, subjectID, tenantID int64, resource, action string) error {
	query := `
		DELETE FROM subject_permission_overrides
		WHERE subject_id = $1 AND tenant_id = $2 AND resource = $3 AND action = $4
	`
	if _, err := s.db.ExecContext(ctx, query, subjectID, tenantID, resource, action); err != nil {
		return fmt.Errorf("failed to delete subject override: %w", err)
	}
	return nil
}

// MembershipRole returns the subject's role within a tenant.
func (s *Store) MembershipRole(ctx context.Context, subjectID, tenantID int64) (auth.RoleRef, bool, error) {
	query := `
		SELECT role_kind, role_name, custom_role_id
		FROM memberships
		WHERE subject_id = $1 AND tenant_id = $2
	`
	var kind, name sql.NullString
	var customID sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, subjectID, tenantID).Scan(&kind, &name, &customID)
	if err == sql.ErrNoRows {
		return auth.RoleRef{}, false, nil
	}
	if err != nil {
		return auth.RoleRef{}, false, fmt.Errorf("failed to get membership role: %w", err)
	}
	return scanRoleRef(kind, name, customID), true, nil
}

// CustomRole returns a custom role with its override list.
func (s *Store) CustomRole(ctx context.Context, roleID int64) (*CustomRole, []RoleOverride, error) {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return nil, nil, err
	}
	overrides, err := s.ListOverrides(ctx, roleID)
	if err != nil {
		return nil, nil, err
	}
	return role, overrides, nil
}

// CreateRole creates a custom role. Name collisions within the tenant are
// reported as RoleNameConflictError (case-sensitive exact match).
func (s *Store) CreateRole(ctx context.Context, role *CustomRole) error {
	if _, err := auth.ParseSystemRole(string(role.BasedOn)); err != nil {
		return fmt.Errorf("invalid base role: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM custom_roles WHERE tenant_id = $1 AND name = $2`,
		role.TenantID, role.Name,
	).Scan(&existing)
	if err != nil {
		return fmt.Errorf("failed to check role name: %w", err)
	}
	if existing > 0 {
		return &RoleNameConflictError{TenantID: role.TenantID, Name: role.Name}
	}

	now := time.Now()
	err = tx.QueryRowContext(ctx, `
		INSERT INTO custom_roles (tenant_id, name, description, based_on, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, role.TenantID, role.Name, role.Description, string(role.BasedOn), now, now).Scan(&role.ID)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role creation: %w", err)
	}
	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// GetRole retrieves a custom role by id.
func (s *Store) GetRole(ctx context.Context, roleID int64) (*CustomRole, error) {
	query := `
		SELECT id, tenant_id, name, description, based_on, created_at, updated_at
		FROM custom_roles
		WHERE id = $1
	`
	var role CustomRole
	var basedOn string
	err := s.db.QueryRowContext(ctx, query, roleID).Scan(
		&role.ID, &role.TenantID, &role.Name, &role.Description, &basedOn,
		&role.CreatedAt, &role.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	role.BasedOn = auth.SystemRole(basedOn)
	return &role, nil
}

// ListRoles lists a tenant's custom roles ordered by name.
func (s *Store) ListRoles(ctx context.Context, tenantID int64) ([]CustomRole, error) {
	query := `
		SELECT id, tenant_id, name, description, based_on, created_at, updated_at
		FROM custom_roles
		WHERE tenant_id = $1
		ORDER BY name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []CustomRole
	for rows.Next() {
		var role CustomRole
		var basedOn string
		if err := rows.Scan(
			&role.ID, &role.TenantID, &role.Name, &role.Description, &basedOn,
			&role.CreatedAt, &role.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		role.BasedOn = auth.SystemRole(basedOn)
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UpdateRole updates a custom role's name, description and base role.
func (s *Store) UpdateRole(ctx context.Context, role *CustomRole) error {
	if _, err := auth.ParseSystemRole(string(role.BasedOn)); err != nil {
		return fmt.Errorf("invalid base role: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM custom_roles WHERE tenant_id = $1 AND name = $2 AND id <> $3`,
		role.TenantID, role.Name, role.ID,
	).Scan(&existing)
	if err != nil {
		return fmt.Errorf("failed to check role name: %w", err)
	}
	if existing > 0 {
		return &RoleNameConflictError{TenantID: role.TenantID, Name: role.Name}
	}

	role.UpdatedAt = time.Now()
	result, err := tx.ExecContext(ctx, `
		UPDATE custom_roles
		SET name = $1, description = $2, based_on = $3, updated_at = $4
		WHERE id = $5
	`, role.Name, role.Description, string(role.BasedOn), role.UpdatedAt, role.ID)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrRoleNotFound
	}

	return tx.Commit()
}

// DeleteRole deletes a custom role. The reference check runs in the same
// transaction as the delete so a concurrent assignment cannot slip between
// check and act.
func (s *Store) DeleteRole(ctx context.Context, roleID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var memberRefs, subjectRefs int64
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memberships WHERE role_kind = $1 AND custom_role_id = $2`,
		string(auth.RoleKindCustom), roleID,
	).Scan(&memberRefs)
	if err != nil {
		return fmt.Errorf("failed to count membership references: %w", err)
	}
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subjects WHERE role_kind = $1 AND custom_role_id = $2`,
		string(auth.RoleKindCustom), roleID,
	).Scan(&subjectRefs)
	if err != nil {
		return fmt.Errorf("failed to count subject references: %w", err)
	}
	if total := memberRefs + subjectRefs; total > 0 {
		return &RoleInUseError{RoleID: roleID, Count: total}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permission_overrides WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to delete role overrides: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM custom_roles WHERE id = $1`, roleID)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrRoleNotFound
	}

	return tx.Commit()
}

// ListOverrides lists a role's overrides.
func (s *Store) ListOverrides(ctx context.Context, roleID int64) ([]RoleOverride, error) {
	query := `
		SELECT id, role_id, resource, action, allowed, created_at, updated_at
		FROM role_permission_overrides
		WHERE role_id = $1
		ORDER BY resource ASC, action ASC
	`
	rows, err := s.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role overrides: %w", err)
	}
	defer rows.Close()

	var overrides []RoleOverride
	for rows.Next() {
		var o RoleOverride
		if err := rows.Scan(&o.ID, &o.RoleID, &o.Resource, &o.Action, &o.Allowed, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role override: %w", err)
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

// UpsertOverride inserts or updates an override keyed by
// (role, resource, action).
func (s *Store) UpsertOverride(ctx context.Context, o *RoleOverride) error {
	query := `
		INSERT INTO role_permission_overrides (role_id, resource, action, allowed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (role_id, resource, action)
		DO UPDATE SET allowed = EXCLUDED.allowed, updated_at = EXCLUDED.updated_at
	`
	now := time.Now()
	if _, err := s.db.ExecContext(ctx, query, o.RoleID, o.Resource, o.Action, o.Allowed, now, now); err != nil {
		return fmt.Errorf("failed to upsert role override: %w", err)
	}
	o.UpdatedAt = now
	return nil
}

// DeleteOverride removes one override from a role.
func (s *Store) DeleteOverride(ctx context.Context, roleID int64, resource, action string) error {
	query := `
		DELETE FROM role_permission_overrides
		WHERE role_id = $1 AND resource = $2 AND action = $3
	`
	if _, err := s.db.ExecContext(ctx, query, roleID, resource, action); err != nil {
		return fmt.Errorf("failed to delete role override: %w", err)
	}
	return nil
}

// scanRoleRef builds a RoleRef from the role columns shared by the
// memberships and subjects tables.
func scanRoleRef(kind, name sql.NullString, customID sql.NullInt64) auth.RoleRef {
	switch auth.RoleKind(kind.String) {
	case auth.RoleKindCustom:
		if customID.Valid {
			return auth.CustomRoleRef(customID.Int64)
		}
	case auth.RoleKindSystem:
		if role, err := auth.ParseSystemRole(name.String); err == nil {
			return auth.SystemRoleRef(role)
		}
	}
	return auth.RoleRef{}
}
