package tenants

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

// GetMigrations returns all tenant migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create tenants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenants (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL UNIQUE,
					subdomain VARCHAR(255) NOT NULL UNIQUE,
					tier VARCHAR(50) NOT NULL DEFAULT 'free',
					domain VARCHAR(255),
					domain_state VARCHAR(50) NOT NULL DEFAULT 'unconfigured',
					verification_token VARCHAR(255),
					verified_at TIMESTAMP,
					last_domain_attempt TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_tenants_subdomain ON tenants(subdomain);
				CREATE INDEX idx_tenants_domain ON tenants(domain) WHERE domain IS NOT NULL;
			`,
		},
		{
			Version:     2,
			Description: "Create subjects table",
			SQL: `
				CREATE TABLE IF NOT EXISTS subjects (
					id BIGSERIAL PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					role_kind VARCHAR(50),
					role_name VARCHAR(50),
					custom_role_id BIGINT,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_subjects_email ON subjects(email);
			`,
		},
		{
			Version:     3,
			Description: "Create memberships table",
			SQL: `
				CREATE TABLE IF NOT EXISTS memberships (
					id BIGSERIAL PRIMARY KEY,
					subject_id BIGINT NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					role_kind VARCHAR(50),
					role_name VARCHAR(50),
					custom_role_id BIGINT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(subject_id, tenant_id)
				);

				CREATE INDEX idx_memberships_subject_id ON memberships(subject_id);
				CREATE INDEX idx_memberships_tenant_id ON memberships(tenant_id);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tenant_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM tenant_migrations ORDER BY version")
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
			"INSERT INTO tenant_migrations (version, description) VALUES ($1, $2)",
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
