package authz

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// testSchema mirrors the postgres migrations in sqlite-compatible DDL so
// package tests can run against :memory: databases.
const testSchema = `
	CREATE TABLE tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
		manager_id TEXT REFERENCES users(id),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE workspaces (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(tenant_id, name)
	);

	CREATE TABLE teams (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL REFERENCES workspaces(id),
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(workspace_id, name)
	);

	CREATE TABLE role_assignments (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		role TEXT NOT NULL,
		scope_type TEXT NOT NULL,
		scope_id TEXT NOT NULL DEFAULT '',
		assigned_by TEXT,
		assigned_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		expires_at TIMESTAMP,
		UNIQUE(user_id, role, scope_type, scope_id)
	);

	CREATE TABLE tenant_configs (
		tenant_id TEXT PRIMARY KEY REFERENCES tenants(id),
		allow_tenant_admin_exec_visibility BOOLEAN NOT NULL DEFAULT FALSE,
		private_whitelist TEXT NOT NULL DEFAULT '[]',
		metadata TEXT NOT NULL DEFAULT '{}',
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE goals (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES users(id),
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		workspace_id TEXT REFERENCES workspaces(id),
		team_id TEXT REFERENCES teams(id),
		title TEXT NOT NULL,
		description TEXT,
		visibility TEXT NOT NULL DEFAULT 'PUBLIC_TENANT',
		published BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
`

// NewTestDB opens an in-memory sqlite database with the full schema. The
// handle is closed when the test finishes.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("failed to create test schema: %v", err)
	}
	return db
}

// SeedTenant inserts a tenant row.
func SeedTenant(t *testing.T, db *sql.DB, id, name string) {
	t.Helper()
	if _, err := db.Exec("INSERT INTO tenants (id, name) VALUES ($1, $2)", id, name); err != nil {
		t.Fatalf("failed to seed tenant %s: %v", id, err)
	}
}

// SeedUser inserts a user row.
func SeedUser(t *testing.T, db *sql.DB, id, email string, superuser bool, managerID *string) {
	t.Helper()
	if _, err := db.Exec(
		"INSERT INTO users (id, email, is_superuser, manager_id) VALUES ($1, $2, $3, $4)",
		id, email, superuser, managerID); err != nil {
		t.Fatalf("failed to seed user %s: %v", id, err)
	}
}

// SeedWorkspace inserts a workspace row.
func SeedWorkspace(t *testing.T, db *sql.DB, id, tenantID, name string) {
	t.Helper()
	if _, err := db.Exec(
		"INSERT INTO workspaces (id, tenant_id, name) VALUES ($1, $2, $3)",
		id, tenantID, name); err != nil {
		t.Fatalf("failed to seed workspace %s: %v", id, err)
	}
}

// SeedTeam inserts a team row.
func SeedTeam(t *testing.T, db *sql.DB, id, workspaceID, name string) {
	t.Helper()
	if _, err := db.Exec(
		"INSERT INTO teams (id, workspace_id, name) VALUES ($1, $2, $3)",
		id, workspaceID, name); err != nil {
		t.Fatalf("failed to seed team %s: %v", id, err)
	}
}

// SeedGoal inserts a goal row.
func SeedGoal(t *testing.T, db *sql.DB, g Goal) {
	t.Helper()
	if _, err := db.Exec(`
		INSERT INTO goals (id, owner_id, tenant_id, workspace_id, team_id, title, visibility, published)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		g.ID, g.OwnerID, g.TenantID, g.WorkspaceID, g.TeamID, "goal "+g.ID, g.Visibility, g.Published); err != nil {
		t.Fatalf("failed to seed goal %s: %v", g.ID, err)
	}
}
