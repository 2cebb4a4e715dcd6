package tenants

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/strideworks/stride/pkg/authz"
)

// Store provides database operations for tenants, workspaces and teams. Reads
// used by the authorization engine live in pkg/authz; this store owns the
// write side and the richer listing queries.
type Store struct {
	db *sql.DB
}

// NewStore creates a new store backed by the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateTenant inserts a tenant row.
func (s *Store) CreateTenant(ctx context.Context, name string) (*Tenant, error) {
	t := &Tenant{ID: uuid.New().String(), Name: name}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO tenants (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)",
		t.ID, t.Name, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}
	return t, nil
}

// GetTenant retrieves a tenant by ID.
func (s *Store) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	var t Tenant
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at, updated_at FROM tenants WHERE id = $1", id).
		Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &authz.NotFoundError{Kind: "tenant", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &t, nil
}

// UpdateTenant renames a tenant.
func (s *Store) UpdateTenant(ctx context.Context, id, name string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE tenants SET name = $1, updated_at = $2 WHERE id = $3",
		name, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count updated tenants: %w", err)
	}
	if affected == 0 {
		return &authz.NotFoundError{Kind: "tenant", ID: id}
	}
	return nil
}

// CreateWorkspace inserts a workspace row.
func (s *Store) CreateWorkspace(ctx context.Context, tenantID, name string) (*Workspace, error) {
	w := &Workspace{ID: uuid.New().String(), TenantID: tenantID, Name: name}
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO workspaces (id, tenant_id, name, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)",
		w.ID, w.TenantID, w.Name, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return w, nil
}

// GetWorkspace retrieves a workspace by ID.
func (s *Store) GetWorkspace(ctx context.Context, id string) (*Workspace, error) {
	var w Workspace
	err := s.db.QueryRowContext(ctx,
		"SELECT id, tenant_id, name, created_at, updated_at FROM workspaces WHERE id = $1", id).
		Scan(&w.ID, &w.TenantID, &w.Name, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &authz.NotFoundError{Kind: "workspace", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return &w, nil
}

// ListWorkspaces returns the tenant's workspaces ordered by name.
func (s *Store) ListWorkspaces(ctx context.Context, tenantID string) ([]Workspace, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, tenant_id, name, created_at, updated_at FROM workspaces WHERE tenant_id = $1 ORDER BY name",
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []Workspace
	for rows.Next() {
		var w Workspace
		if err := rows.Scan(&w.ID, &w.TenantID, &w.Name, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		workspaces = append(workspaces, w)
	}
	return workspaces, rows.Err()
}

// DeleteWorkspace removes a workspace row.
func (s *Store) DeleteWorkspace(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM workspaces WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count deleted workspaces: %w", err)
	}
	if affected == 0 {
		return &authz.NotFoundError{Kind: "workspace", ID: id}
	}
	return nil
}

// CreateTeam inserts a team row.
func (s *Store) CreateTeam(ctx context.Context, workspaceID, name string) (*Team, error) {
	t := &Team{ID: uuid.New().String(), WorkspaceID: workspaceID, Name: name}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO teams (id, workspace_id, name, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)",
		t.ID, t.WorkspaceID, t.Name, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}
	return t, nil
}

// GetTeam retrieves a team with its owning tenant resolved.
func (s *Store) GetTeam(ctx context.Context, id string) (*Team, error) {
	var t Team
	err := s.db.QueryRowContext(ctx, `
		SELECT t.id, t.workspace_id, w.tenant_id, t.name, t.created_at, t.updated_at
		FROM teams t
		JOIN workspaces w ON w.id = t.workspace_id
		WHERE t.id = $1`, id).
		Scan(&t.ID, &t.WorkspaceID, &t.TenantID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &authz.NotFoundError{Kind: "team", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return &t, nil
}

// ListTeams returns the workspace's teams ordered by name.
func (s *Store) ListTeams(ctx context.Context, workspaceID string) ([]Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.workspace_id, w.tenant_id, t.name, t.created_at, t.updated_at
		FROM teams t
		JOIN workspaces w ON w.id = t.workspace_id
		WHERE t.workspace_id = $1
		ORDER BY t.name`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var teams []Team
	for rows.Next() {
		var t Team
		if err := rows.Scan(&t.ID, &t.WorkspaceID, &t.TenantID, &t.Name, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// DeleteTeam removes a team row.
func (s *Store) DeleteTeam(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM teams WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count deleted teams: %w", err)
	}
	if affected == 0 {
		return &authz.NotFoundError{Kind: "team", ID: id}
	}
	return nil
}
