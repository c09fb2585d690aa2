package rbac

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/origolabs/origo/pkg/auth"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	// Create minimal tables for testing
	_, err = db.Exec(`
		CREATE TABLE subjects (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL,
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

		CREATE TABLE custom_roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			based_on TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(tenant_id, name)
		);

		CREATE TABLE role_permission_overrides (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role_id INTEGER NOT NULL,
			resource TEXT NOT NULL,
			action TEXT NOT NULL,
			allowed INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(role_id, resource, action)
		);

		CREATE TABLE subject_permission_overrides (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subject_id INTEGER NOT NULL,
			tenant_id INTEGER NOT NULL,
			resource TEXT NOT NULL,
			action TEXT NOT NULL,
			allowed INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(subject_id, tenant_id, resource, action)
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test tables: %v", err)
	}

	return db
}

func TestStore_CreateRole_NameConflict(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	role := &CustomRole{TenantID: 1, Name: "moderator", BasedOn: auth.RoleViewer}
	if err := store.CreateRole(ctx, role); err != nil {
		t.Fatalf("Failed to create role: %v", err)
	}
	if role.ID == 0 {
		t.Error("Expected role ID to be populated")
	}

	dup := &CustomRole{TenantID: 1, Name: "moderator", BasedOn: auth.RoleEditor}
	err := store.CreateRole(ctx, dup)
	var conflict *RoleNameConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Expected RoleNameConflictError, got %v", err)
	}
	if conflict.Name != "moderator" || conflict.TenantID != 1 {
		t.Errorf("Unexpected conflict details: %+v", conflict)
	}

	// Same name in another tenant is fine.
	other := &CustomRole{TenantID: 2, Name: "moderator", BasedOn: auth.RoleViewer}
	if err := store.CreateRole(ctx, other); err != nil {
		t.Errorf("Expected same name in another tenant to succeed, got %v", err)
	}
}

func TestStore_CreateRole_InvalidBase(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewStore(db)
	role := &CustomRole{TenantID: 1, Name: "broken", BasedOn: auth.SystemRole("overlord")}
	if err := store.CreateRole(context.Background(), role); err == nil {
		t.Error("Expected invalid base role to be rejected")
	}
}

func TestStore_UpdateRole(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	a := &CustomRole{TenantID: 1, Name: "alpha", BasedOn: auth.RoleViewer}
	b := &CustomRole{TenantID: 1, Name: "beta", BasedOn: auth.RoleViewer}
	for _, role := range []*CustomRole{a, b} {
		if err := store.CreateRole(ctx, role); err != nil {
			t.Fatalf("Failed to create role: %v", err)
		}
	}

	// Renaming onto a sibling's name conflicts.
	b.Name = "alpha"
	var conflict *RoleNameConflictError
	if err := store.UpdateRole(ctx, b); !errors.As(err, &conflict) {
		t.Fatalf("Expected RoleNameConflictError, got %v", err)
	}

	// Re-saving under its own name does not.
	b.Name = "beta"
	b.Description = "updated"
	b.BasedOn = auth.RoleEditor
	if err := store.UpdateRole(ctx, b); err != nil {
		t.Fatalf("Failed to update role: %v", err)
	}

	got, err := store.GetRole(ctx, b.ID)
	if err != nil {
		t.Fatalf("Failed to get role: %v", err)
	}
	if got.Description != "updated" || got.BasedOn != auth.RoleEditor {
		t.Errorf("Update not persisted: %+v", got)
	}

	missing := &CustomRole{ID: 9999, TenantID: 1, Name: "ghost", BasedOn: auth.RoleViewer}
	if err := store.UpdateRole(ctx, missing); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("Expected ErrRoleNotFound, got %v", err)
	}
}

func TestStore_DeleteRole_InUse(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	role := &CustomRole{TenantID: 1, Name: "moderator", BasedOn: auth.RoleViewer}
	if err := store.CreateRole(ctx, role); err != nil {
		t.Fatalf("Failed to create role: %v", err)
	}

	_, err := db.ExecContext(ctx,
		"INSERT INTO memberships (subject_id, tenant_id, role_kind, custom_role_id) VALUES (1, 1, 'custom', $1), (2, 1, 'custom', $1)",
		role.ID)
	if err != nil {
		t.Fatalf("Failed to insert memberships: %v", err)
	}

	err = store.DeleteRole(ctx, role.ID)
	var inUse *RoleInUseError
	if !errors.As(err, &inUse) {
		t.Fatalf("Expected RoleInUseError, got %v", err)
	}
	if inUse.Count != 2 {
		t.Errorf("Expected reference count 2, got %d", inUse.Count)
	}
	if !IsRoleInUse(err) {
		t.Error("Expected IsRoleInUse to match")
	}

	// The failed delete must leave the role intact.
	if _, err := store.GetRole(ctx, role.ID); err != nil {
		t.Fatalf("Expected role to survive failed delete: %v", err)
	}

	// After reassignment the delete succeeds and takes its overrides along.
	if _, err := db.ExecContext(ctx, "DELETE FROM memberships WHERE custom_role_id = $1", role.ID); err != nil {
		t.Fatalf("Failed to clear memberships: %v", err)
	}
	if err := store.UpsertOverride(ctx, &RoleOverride{RoleID: role.ID, Resource: ResourcePages, Action: "read", Allowed: true}); err != nil {
		t.Fatalf("Failed to add override: %v", err)
	}
	if err := store.DeleteRole(ctx, role.ID); err != nil {
		t.Fatalf("Failed to delete role: %v", err)
	}
	overrides, err := store.ListOverrides(ctx, role.ID)
	if err != nil {
		t.Fatalf("Failed to list overrides: %v", err)
	}
	if len(overrides) != 0 {
		t.Errorf("Expected overrides to be deleted with the role, got %d", len(overrides))
	}

	if err := store.DeleteRole(ctx, role.ID); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("Expected ErrRoleNotFound on second delete, got %v", err)
	}
}

func TestStore_UpsertOverride_Replaces(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	role := &CustomRole{TenantID: 1, Name: "moderator", BasedOn: auth.RoleViewer}
	if err := store.CreateRole(ctx, role); err != nil {
		t.Fatalf("Failed to create role: %v", err)
	}

	first := &RoleOverride{RoleID: role.ID, Resource: ResourcePosts, Action: "delete", Allowed: true}
	if err := store.UpsertOverride(ctx, first); err != nil {
		t.Fatalf("Failed to upsert override: %v", err)
	}

	second := &RoleOverride{RoleID: role.ID, Resource: ResourcePosts, Action: "delete", Allowed: false}
	if err := store.UpsertOverride(ctx, second); err != nil {
		t.Fatalf("Failed to upsert override: %v", err)
	}

	overrides, err := store.ListOverrides(ctx, role.ID)
	if err != nil {
		t.Fatalf("Failed to list overrides: %v", err)
	}
	if len(overrides) != 1 {
		t.Fatalf("Expected a single override after upsert, got %d", len(overrides))
	}
	if overrides[0].Allowed {
		t.Error("Expected second upsert to replace the allowed value")
	}
}

func TestStore_SubjectOverride(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	got, err := store.SubjectOverride(ctx, 1, 1, ResourcePages, "read")
	if err != nil {
		t.Fatalf("Failed to query subject override: %v", err)
	}
	if got != nil {
		t.Fatalf("Expected nil for absent override, got %v", *got)
	}

	o := &SubjectOverride{SubjectID: 1, TenantID: 1, Resource: ResourcePages, Action: "read", Allowed: false}
	if err := store.SetSubjectOverride(ctx, o); err != nil {
		t.Fatalf("Failed to set subject override: %v", err)
	}

	got, err = store.SubjectOverride(ctx, 1, 1, ResourcePages, "read")
	if err != nil {
		t.Fatalf("Failed to query subject override: %v", err)
	}
	if got == nil || *got {
		t.Fatalf("Expected deny override, got %v", got)
	}

	// Upsert flips the value in place.
	o.Allowed = true
	if err := store.SetSubjectOverride(ctx, o); err != nil {
		t.Fatalf("Failed to update subject override: %v", err)
	}
	got, _ = store.SubjectOverride(ctx, 1, 1, ResourcePages, "read")
	if got == nil || !*got {
		t.Fatalf("Expected allow override after update, got %v", got)
	}

	if err := store.DeleteSubjectOverride(ctx, 1, 1, ResourcePages, "read"); err != nil {
		t.Fatalf("Failed to delete subject override: %v", err)
	}
	got, _ = store.SubjectOverride(ctx, 1, 1, ResourcePages, "read")
	if got != nil {
		t.Error("Expected override to be gone after delete")
	}
}

func TestStore_MembershipRole(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)

	_, ok, err := store.MembershipRole(ctx, 1, 1)
	if err != nil {
		t.Fatalf("Failed to query membership role: %v", err)
	}
	if ok {
		t.Error("Expected no membership role for unknown subject")
	}

	_, err = db.ExecContext(ctx,
		"INSERT INTO memberships (subject_id, tenant_id, role_kind, role_name) VALUES (1, 1, 'system', 'editor')")
	if err != nil {
		t.Fatalf("Failed to insert membership: %v", err)
	}
	_, err = db.ExecContext(ctx,
		"INSERT INTO memberships (subject_id, tenant_id, role_kind, custom_role_id) VALUES (1, 2, 'custom', 42)")
	if err != nil {
		t.Fatalf("Failed to insert membership: %v", err)
	}

	role, ok, err := store.MembershipRole(ctx, 1, 1)
	if err != nil || !ok {
		t.Fatalf("Failed to get membership role: ok=%v err=%v", ok, err)
	}
	if !role.IsSystem(auth.RoleEditor) {
		t.Errorf("Expected system editor role, got %+v", role)
	}

	role, ok, err = store.MembershipRole(ctx, 1, 2)
	if err != nil || !ok {
		t.Fatalf("Failed to get membership role: ok=%v err=%v", ok, err)
	}
	if role.Kind != auth.RoleKindCustom || role.CustomID != 42 {
		t.Errorf("Expected custom role 42, got %+v", role)
	}
}

func TestRegistry_ResolveRole(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	registry := NewRegistry(NewStore(db))

	role := &CustomRole{TenantID: 1, Name: "curator", BasedOn: auth.RoleReader}
	if err := registry.CreateRole(ctx, role); err != nil {
		t.Fatalf("Failed to create role: %v", err)
	}
	if err := registry.UpsertPermission(ctx, &RoleOverride{RoleID: role.ID, Resource: ResourcePages, Action: "create", Allowed: true}); err != nil {
		t.Fatalf("Failed to add permission: %v", err)
	}

	resolved, err := registry.ResolveRole(ctx, role.ID)
	if err != nil {
		t.Fatalf("Failed to resolve role: %v", err)
	}
	if resolved.Role.Name != "curator" {
		t.Errorf("Expected resolved role curator, got %s", resolved.Role.Name)
	}
	if len(resolved.BaseGrants) == 0 {
		t.Error("Expected base grants from the reader role")
	}
	if len(resolved.Overrides) != 1 {
		t.Errorf("Expected 1 override, got %d", len(resolved.Overrides))
	}
}

func TestRegistry_UpsertPermission_Validation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	registry := NewRegistry(NewStore(db))

	role := &CustomRole{TenantID: 1, Name: "curator", BasedOn: auth.RoleReader}
	if err := registry.CreateRole(ctx, role); err != nil {
		t.Fatalf("Failed to create role: %v", err)
	}

	if err := registry.UpsertPermission(ctx, &RoleOverride{RoleID: role.ID, Resource: "", Action: "read"}); err == nil {
		t.Error("Expected empty resource to be rejected")
	}
	if err := registry.UpsertPermission(ctx, &RoleOverride{RoleID: role.ID, Resource: Wildcard, Action: "read"}); err == nil {
		t.Error("Expected wildcard resource with concrete action to be rejected")
	}
	if err := registry.UpsertPermission(ctx, &RoleOverride{RoleID: 9999, Resource: ResourcePages, Action: "read"}); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("Expected ErrRoleNotFound for unknown role, got %v", err)
	}
}
