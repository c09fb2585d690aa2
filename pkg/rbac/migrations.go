package rbac

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all rbac migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create custom_roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS custom_roles (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					based_on VARCHAR(50) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(tenant_id, name)
				);

				CREATE INDEX idx_custom_roles_tenant_id ON custom_roles(tenant_id);
			`,
		},
		{
			Version:     2,
			Description: "Create role_permission_overrides table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_permission_overrides (
					id BIGSERIAL PRIMARY KEY,
					role_id BIGINT NOT NULL REFERENCES custom_roles(id) ON DELETE CASCADE,
					resource VARCHAR(100) NOT NULL,
					action VARCHAR(100) NOT NULL,
					allowed BOOLEAN NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(role_id, resource, action)
				);

				CREATE INDEX idx_role_permission_overrides_role_id ON role_permission_overrides(role_id);
			`,
		},
		{
			Version:     3,
			Description: "Create subject_permission_overrides table",
			SQL: `
				CREATE TABLE IF NOT EXISTS subject_permission_overrides (
					id BIGSERIAL PRIMARY KEY,
					subject_id BIGINT NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					resource VARCHAR(100) NOT NULL,
					action VARCHAR(100) NOT NULL,
					allowed BOOLEAN NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(subject_id, tenant_id, resource, action)
				);

				CREATE INDEX idx_subject_permission_overrides_subject_id ON subject_permission_overrides(subject_id);
				CREATE INDEX idx_subject_permission_overrides_tenant_id ON subject_permission_overrides(tenant_id);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rbac_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM rbac_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO rbac_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
