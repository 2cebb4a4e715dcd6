package authz

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

// GetMigrations returns all authorization schema migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create tenants and users tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenants (
					id TEXT PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
					manager_id TEXT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_users_manager_id ON users(manager_id);
			`,
		},
		{
			Version:     2,
			Description: "Create workspaces and teams tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS workspaces (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(tenant_id, name)
				);

				CREATE TABLE IF NOT EXISTS teams (
					id TEXT PRIMARY KEY,
					workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(workspace_id, name)
				);

				CREATE INDEX idx_workspaces_tenant_id ON workspaces(tenant_id);
				CREATE INDEX idx_teams_workspace_id ON teams(workspace_id);
			`,
		},
		{
			Version:     3,
			Description: "Create role_assignments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_assignments (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role VARCHAR(50) NOT NULL,
					scope_type VARCHAR(20) NOT NULL,
					scope_id TEXT NOT NULL DEFAULT '',
					assigned_by TEXT,
					assigned_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP,
					UNIQUE(user_id, role, scope_type, scope_id)
				);

				CREATE INDEX idx_role_assignments_user_id ON role_assignments(user_id);
				CREATE INDEX idx_role_assignments_scope ON role_assignments(scope_type, scope_id);
				CREATE INDEX idx_role_assignments_expires_at ON role_assignments(expires_at);
			`,
		},
		{
			Version:     4,
			Description: "Create tenant_configs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenant_configs (
					tenant_id TEXT PRIMARY KEY REFERENCES tenants(id) ON DELETE CASCADE,
					allow_tenant_admin_exec_visibility BOOLEAN NOT NULL DEFAULT FALSE,
					private_whitelist TEXT NOT NULL DEFAULT '[]',
					metadata TEXT NOT NULL DEFAULT '{}',
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     5,
			Description: "Create goals table",
			SQL: `
				CREATE TABLE IF NOT EXISTS goals (
					id TEXT PRIMARY KEY,
					owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					workspace_id TEXT REFERENCES workspaces(id) ON DELETE SET NULL,
					team_id TEXT REFERENCES teams(id) ON DELETE SET NULL,
					title VARCHAR(500) NOT NULL,
					description TEXT,
					visibility VARCHAR(30) NOT NULL DEFAULT 'PUBLIC_TENANT',
					published BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_goals_tenant_id ON goals(tenant_id);
				CREATE INDEX idx_goals_owner_id ON goals(owner_id);
				CREATE INDEX idx_goals_workspace_id ON goals(workspace_id);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS authz_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM authz_migrations ORDER BY version")
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
			"INSERT INTO authz_migrations (version, description) VALUES ($1, $2)",
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
