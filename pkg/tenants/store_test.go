package tenants

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/origolabs/origo/pkg/auth"
	"github.com/origolabs/origo/pkg/plans"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Create minimal tables for testing
	_, err = db.Exec(`
		CREATE TABLE tenants (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			subdomain TEXT NOT NULL UNIQUE,
			tier TEXT NOT NULL DEFAULT 'free',
			domain TEXT,
			domain_state TEXT NOT NULL DEFAULT 'unconfigured',
			verification_token TEXT,
			verified_at TIMESTAMP,
			last_domain_attempt TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE subjects (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			role_kind TEXT,
			role_name TEXT,
			custom_role_id INTEGER,
			is_active INTEGER DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE memberships (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subject_id INTEGER NOT NULL,
			tenant_id INTEGER NOT NULL,
			role_kind TEXT,
			role_name TEXT,
			custom_role_id INTEGER,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(subject_id, tenant_id)
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test tables: %v", err)
	}

	return db
}

func TestStore_CreateAndLookupTenant(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	tenant := &Tenant{Name: "Acme Press", Slug: "acme-press", Subdomain: "acme"}
	if err := store.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("Failed to create tenant: %v", err)
	}
	if tenant.ID == 0 {
		t.Fatal("Expected tenant ID to be populated")
	}
	if tenant.Tier != plans.TierFree {
		t.Errorf("Expected default free tier, got %s", tenant.Tier)
	}

	byID, err := store.TenantByID(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("TenantByID failed: %v", err)
	}
	if byID.Name != "Acme Press" || byID.DomainState != DomainUnconfigured {
		t.Errorf("Unexpected tenant: %+v", byID)
	}

	bySlug, err := store.TenantBySlug(ctx, "acme-press")
	if err != nil {
		t.Fatalf("TenantBySlug failed: %v", err)
	}
	if bySlug.ID != tenant.ID {
		t.Errorf("Expected tenant %d by slug, got %d", tenant.ID, bySlug.ID)
	}

	bySub, err := store.TenantBySubdomain(ctx, "acme")
	if err != nil {
		t.Fatalf("TenantBySubdomain failed: %v", err)
	}
	if bySub.ID != tenant.ID {
		t.Errorf("Expected tenant %d by subdomain, got %d", tenant.ID, bySub.ID)
	}

	if _, err := store.TenantByID(ctx, 9999); !errors.Is(err, ErrTenantNotFound) {
		t.Errorf("Expected ErrTenantNotFound, got %v", err)
	}
}

func TestStore_TenantByDomain_VerifiedOnly(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	tenant := &Tenant{Name: "Acme", Slug: "acme", Subdomain: "acme"}
	if err := store.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("Failed to create tenant: %v", err)
	}

	_, err := db.ExecContext(ctx,
		"UPDATE tenants SET domain = $1, domain_state = $2 WHERE id = $3",
		"www.acme.com", string(DomainPending), tenant.ID)
	if err != nil {
		t.Fatalf("Failed to set domain: %v", err)
	}

	if _, err := store.TenantByDomain(ctx, "www.acme.com"); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("Expected pending domain to not match, got %v", err)
	}

	_, err = db.ExecContext(ctx,
		"UPDATE tenants SET domain_state = $1, verified_at = $2 WHERE id = $3",
		string(DomainVerified), time.Now(), tenant.ID)
	if err != nil {
		t.Fatalf("Failed to verify domain: %v", err)
	}

	got, err := store.TenantByDomain(ctx, "www.acme.com")
	if err != nil {
		t.Fatalf("TenantByDomain failed: %v", err)
	}
	if got.ID != tenant.ID || !got.HasVerifiedDomain() {
		t.Errorf("Unexpected tenant: %+v", got)
	}
}

func TestStore_Memberships(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	first := &Tenant{Name: "First", Slug: "first", Subdomain: "first"}
	second := &Tenant{Name: "Second", Slug: "second", Subdomain: "second"}
	for _, tenant := range []*Tenant{first, second} {
		if err := store.CreateTenant(ctx, tenant); err != nil {
			t.Fatalf("Failed to create tenant: %v", err)
		}
	}

	// Identical created_at timestamps force the id tie breaker.
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, tenantID := range []int64{second.ID, first.ID} {
		_, err := db.ExecContext(ctx,
			"INSERT INTO memberships (subject_id, tenant_id, role_kind, role_name, created_at) VALUES (100, $1, 'system', 'editor', $2)",
			tenantID, ts)
		if err != nil {
			t.Fatalf("Failed to insert membership: %v", err)
		}
	}

	ok, err := store.IsMember(ctx, 100, first.ID)
	if err != nil || !ok {
		t.Fatalf("Expected subject 100 to be a member of %d: ok=%v err=%v", first.ID, ok, err)
	}
	ok, err = store.IsMember(ctx, 200, first.ID)
	if err != nil || ok {
		t.Fatalf("Expected subject 200 to not be a member: ok=%v err=%v", ok, err)
	}

	// Oldest membership by (created_at, id): the row for tenant two was
	// inserted first, so it wins the tie.
	got, err := store.FirstMembershipTenant(ctx, 100)
	if err != nil {
		t.Fatalf("FirstMembershipTenant failed: %v", err)
	}
	if got.ID != second.ID {
		t.Errorf("Expected tenant %d as first membership, got %d", second.ID, got.ID)
	}

	all, err := store.ListMembershipTenants(ctx, 100)
	if err != nil {
		t.Fatalf("ListMembershipTenants failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 membership tenants, got %d", len(all))
	}

	if err := store.RemoveMember(ctx, 100, second.ID); err != nil {
		t.Fatalf("RemoveMember failed: %v", err)
	}
	got, err = store.FirstMembershipTenant(ctx, 100)
	if err != nil {
		t.Fatalf("FirstMembershipTenant failed: %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("Expected remaining membership tenant %d, got %d", first.ID, got.ID)
	}
}

func TestStore_AddMember(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	tenant := &Tenant{Name: "Acme", Slug: "acme", Subdomain: "acme"}
	if err := store.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("Failed to create tenant: %v", err)
	}

	m := &auth.Membership{SubjectID: 100, TenantID: tenant.ID, Role: auth.SystemRoleRef(auth.RoleEditor)}
	if err := store.AddMember(ctx, m); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if m.ID == 0 {
		t.Error("Expected membership ID to be populated")
	}

	var kind, name string
	err := db.QueryRowContext(ctx,
		"SELECT role_kind, role_name FROM memberships WHERE id = $1", m.ID,
	).Scan(&kind, &name)
	if err != nil {
		t.Fatalf("Failed to read membership: %v", err)
	}
	if kind != "system" || name != "editor" {
		t.Errorf("Unexpected membership role columns: %s %s", kind, name)
	}
}
