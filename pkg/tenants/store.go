package tenants

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/origolabs/origo/pkg/auth"
	"github.com/origolabs/origo/pkg/plans"
)

// Store handles tenant and membership persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new tenant store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const tenantColumns = `id, name, slug, subdomain, tier, domain, domain_state,
	verification_token, verified_at, last_domain_attempt, created_at, updated_at`

func scanTenant(row interface{ Scan(...interface{}) error }) (*Tenant, error) {
	var t Tenant
	var tier, domain, state, token sql.NullString
	var verifiedAt, lastAttempt sql.NullTime
	err := row.Scan(
		&t.ID, &t.Name, &t.Slug, &t.Subdomain, &tier, &domain, &state,
		&token, &verifiedAt, &lastAttempt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Tier = plans.Tier(tier.String)
	t.Domain = domain.String
	t.DomainState = DomainState(state.String)
	if t.DomainState == "" {
		t.DomainState = DomainUnconfigured
	}
	t.VerificationToken = token.String
	if verifiedAt.Valid {
		t.VerifiedAt = &verifiedAt.Time
	}
	if lastAttempt.Valid {
		t.LastDomainAttempt = &lastAttempt.Time
	}
	return &t, nil
}

// CreateTenant persists a new tenant.
func (s *Store) CreateTenant(ctx context.Context, t *Tenant) error {
	if t.Tier == "" {
		t.Tier = plans.TierFree
	}
	if t.DomainState == "" {
		t.DomainState = DomainUnconfigured
	}
	now := time.Now()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tenants (name, slug, subdomain, tier, domain_state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, t.Name, t.Slug, t.Subdomain, string(t.Tier), string(t.DomainState), now, now).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

// TenantByID retrieves a tenant by id.
func (s *Store) TenantByID(ctx context.Context, id int64) (*Tenant, error) {
	query := fmt.Sprintf("SELECT %s FROM tenants WHERE id = $1", tenantColumns)
	t, err := scanTenant(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// TenantBySlug retrieves a tenant by its slug.
func (s *Store) TenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	query := fmt.Sprintf("SELECT %s FROM tenants WHERE slug = $1", tenantColumns)
	t, err := scanTenant(s.db.QueryRowContext(ctx, query, slug))
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant by slug: %w", err)
	}
	return t, nil
}

// TenantByDomain retrieves the tenant whose verified custom domain matches.
// Pending domains never route traffic.
func (s *Store) TenantByDomain(ctx context.Context, domain string) (*Tenant, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM tenants WHERE domain = $1 AND domain_state = $2", tenantColumns)
	t, err := scanTenant(s.db.QueryRowContext(ctx, query, domain, string(DomainVerified)))
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant by domain: %w", err)
	}
	return t, nil
}

// TenantByDomainAnyState retrieves the tenant holding a custom domain in
// any lifecycle state. Routing uses TenantByDomain; this lookup exists for
// uniqueness checks when a domain is being configured.
func (s *Store) TenantByDomainAnyState(ctx context.Context, domain string) (*Tenant, error) {
	query := fmt.Sprintf("SELECT %s FROM tenants WHERE domain = $1", tenantColumns)
	t, err := scanTenant(s.db.QueryRowContext(ctx, query, domain))
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant by domain: %w", err)
	}
	return t, nil
}

// UpdateDomain persists a tenant's custom domain configuration.
func (s *Store) UpdateDomain(ctx context.Context, t *Tenant) error {
	t.UpdatedAt = time.Now()
	var domain, token sql.NullString
	if t.Domain != "" {
		domain = sql.NullString{String: t.Domain, Valid: true}
	}
	if t.VerificationToken != "" {
		token = sql.NullString{String: t.VerificationToken, Valid: true}
	}
	var verifiedAt, lastAttempt sql.NullTime
	if t.VerifiedAt != nil {
		verifiedAt = sql.NullTime{Time: *t.VerifiedAt, Valid: true}
	}
	if t.LastDomainAttempt != nil {
		lastAttempt = sql.NullTime{Time: *t.LastDomainAttempt, Valid: true}
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE tenants
		SET domain = $1, domain_state = $2, verification_token = $3,
			verified_at = $4, last_domain_attempt = $5, updated_at = $6
		WHERE id = $7
	`, domain, string(t.DomainState), token, verifiedAt, lastAttempt, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update domain: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// ListPendingDomainTenants returns tenants whose custom domain awaits
// verification, oldest attempt first.
func (s *Store) ListPendingDomainTenants(ctx context.Context) ([]Tenant, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tenants
		WHERE domain_state = $1
		ORDER BY last_domain_attempt ASC NULLS FIRST, id ASC
	`, tenantColumns)
	rows, err := s.db.QueryContext(ctx, query, string(DomainPending))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending domains: %w", err)
	}
	defer rows.Close()

	var out []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// TenantBySubdomain retrieves a tenant by its platform subdomain label.
func (s *Store) TenantBySubdomain(ctx context.Context, subdomain string) (*Tenant, error) {
	query := fmt.Sprintf("SELECT %s FROM tenants WHERE subdomain = $1", tenantColumns)
	t, err := scanTenant(s.db.QueryRowContext(ctx, query, subdomain))
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant by subdomain: %w", err)
	}
	return t, nil
}

// TenantTier returns a tenant's plan tier.
func (s *Store) TenantTier(ctx context.Context, tenantID int64) (plans.Tier, error) {
	var tier sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT tier FROM tenants WHERE id = $1", tenantID).Scan(&tier)
	if err == sql.ErrNoRows {
		return "", ErrTenantNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get tenant tier: %w", err)
	}
	if tier.String == "" {
		return plans.TierFree, nil
	}
	return plans.Tier(tier.String), nil
}

// IsMember reports whether the subject belongs to the tenant.
func (s *Store) IsMember(ctx context.Context, subjectID, tenantID int64) (bool, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM memberships WHERE subject_id = $1 AND tenant_id = $2",
		subjectID, tenantID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return count > 0, nil
}

// FirstMembershipTenant returns the tenant of the subject's oldest
// membership. Ordering is by membership creation time with id as the tie
// breaker, so the answer is stable across calls.
func (s *Store) FirstMembershipTenant(ctx context.Context, subjectID int64) (*Tenant, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tenants t
		JOIN memberships m ON m.tenant_id = t.id
		WHERE m.subject_id = $1
		ORDER BY m.created_at ASC, m.id ASC
		LIMIT 1
	`, prefixedTenantColumns("t"))
	t, err := scanTenant(s.db.QueryRowContext(ctx, query, subjectID))
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get first membership tenant: %w", err)
	}
	return t, nil
}

// AddMember creates a membership for a subject in a tenant.
func (s *Store) AddMember(ctx context.Context, m *auth.Membership) error {
	now := time.Now()
	var roleName sql.NullString
	var customID sql.NullInt64
	switch m.Role.Kind {
	case auth.RoleKindSystem:
		roleName = sql.NullString{String: string(m.Role.System), Valid: true}
	case auth.RoleKindCustom:
		customID = sql.NullInt64{Int64: m.Role.CustomID, Valid: true}
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO memberships (subject_id, tenant_id, role_kind, role_name, custom_role_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, m.SubjectID, m.TenantID, string(m.Role.Kind), roleName, customID, now).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	m.CreatedAt = now
	return nil
}

// RemoveMember deletes a subject's membership in a tenant.
func (s *Store) RemoveMember(ctx context.Context, subjectID, tenantID int64) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM memberships WHERE subject_id = $1 AND tenant_id = $2",
		subjectID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}

// ListMembershipTenants returns every tenant the subject belongs to,
// oldest membership first.
func (s *Store) ListMembershipTenants(ctx context.Context, subjectID int64) ([]Tenant, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tenants t
		JOIN memberships m ON m.tenant_id = t.id
		WHERE m.subject_id = $1
		ORDER BY m.created_at ASC, m.id ASC
	`, prefixedTenantColumns("t"))
	rows, err := s.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list membership tenants: %w", err)
	}
	defer rows.Close()

	var out []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func prefixedTenantColumns(alias string) string {
	return fmt.Sprintf(`%[1]s.id, %[1]s.name, %[1]s.slug, %[1]s.subdomain, %[1]s.tier,
		%[1]s.domain, %[1]s.domain_state, %[1]s.verification_token, %[1]s.verified_at,
		%[1]s.last_domain_attempt, %[1]s.created_at, %[1]s.updated_at`, alias)
}
