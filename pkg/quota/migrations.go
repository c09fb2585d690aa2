package quota

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

// GetMigrations returns all quota migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create content tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS pages (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					title VARCHAR(500) NOT NULL,
					slug VARCHAR(500) NOT NULL,
					body TEXT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(tenant_id, slug)
				);

				CREATE TABLE IF NOT EXISTS posts (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					title VARCHAR(500) NOT NULL,
					slug VARCHAR(500) NOT NULL,
					body TEXT,
					published_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(tenant_id, slug)
				);

				CREATE TABLE IF NOT EXISTS courses (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					title VARCHAR(500) NOT NULL,
					slug VARCHAR(500) NOT NULL,
					description TEXT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(tenant_id, slug)
				);

				CREATE TABLE IF NOT EXISTS media (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					filename VARCHAR(500) NOT NULL,
					content_type VARCHAR(255),
					size_bytes BIGINT NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_pages_tenant_id ON pages(tenant_id);
				CREATE INDEX idx_posts_tenant_id ON posts(tenant_id);
				CREATE INDEX idx_courses_tenant_id ON courses(tenant_id);
				CREATE INDEX idx_media_tenant_id ON media(tenant_id);
			`,
		},
		{
			Version:     2,
			Description: "Create tenant_usage table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenant_usage (
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					resource VARCHAR(50) NOT NULL,
					used BIGINT NOT NULL DEFAULT 0,
					PRIMARY KEY (tenant_id, resource)
				);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS quota_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM quota_migrations ORDER BY version")
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
			"INSERT INTO quota_migrations (version, description) VALUES ($1, $2)",
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
