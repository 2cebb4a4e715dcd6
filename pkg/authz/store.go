package authz

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store provides database operations for the identity and role data the
// engine derives contexts from. Platform-scope assignments are stored with an
// empty scope_id; the Go API uses a nil pointer for them.
type Store struct {
	db *sql.DB
}

// NewStore creates a new store backed by the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

func scopeIDParam(scopeID *string) string {
	if scopeID == nil {
		return ""
	}
	return *scopeID
}

func scopeIDValue(raw string) *string {
	if raw == "" {
		return nil
	}
	return &raw
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, email, is_superuser, manager_id
		FROM users
		WHERE id = $1`

	var u User
	var managerID sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.IsSuperuser, &managerID)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "user", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if managerID.Valid {
		u.ManagerID = &managerID.String
	}
	return &u, nil
}

// ListRoleAssignments returns the user's unexpired role assignments.
func (s *Store) ListRoleAssignments(ctx context.Context, userID string) ([]RoleAssignment, error) {
	query := `
		SELECT id, user_id, role, scope_type, scope_id, assigned_by, assigned_at, updated_at, expires_at
		FROM role_assignments
		WHERE user_id = $1 AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY assigned_at`

	rows, err := s.db.QueryContext(ctx, query, userID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list role assignments: %w", err)
	}
	defer rows.Close()

	var assignments []RoleAssignment
	for rows.Next() {
		a, err := scanRoleAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoleAssignment(row rowScanner) (RoleAssignment, error) {
	var a RoleAssignment
	var scopeID string
	var assignedBy sql.NullString
	var expiresAt sql.NullTime
	if err := row.Scan(&a.ID, &a.UserID, &a.Role, &a.ScopeType, &scopeID,
		&assignedBy, &a.AssignedAt, &a.UpdatedAt, &expiresAt); err != nil {
		return RoleAssignment{}, fmt.Errorf("failed to scan role assignment: %w", err)
	}
	a.ScopeID = scopeIDValue(scopeID)
	if assignedBy.Valid {
		a.AssignedBy = &assignedBy.String
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		a.ExpiresAt = &t
	}
	return a, nil
}

// ListDirectReports returns the IDs of users whose manager is the given user.
func (s *Store) ListDirectReports(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM users WHERE manager_id = $1 ORDER BY id", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list direct reports: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan direct report: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetWorkspace retrieves a workspace by ID.
func (s *Store) GetWorkspace(ctx context.Context, id string) (*Workspace, error) {
	var w Workspace
	err := s.db.QueryRowContext(ctx,
		"SELECT id, tenant_id, name FROM workspaces WHERE id = $1", id).
		Scan(&w.ID, &w.TenantID, &w.Name)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "workspace", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return &w, nil
}

// GetTeam retrieves a team by ID.
func (s *Store) GetTeam(ctx context.Context, id string) (*Team, error) {
	var t Team
	err := s.db.QueryRowContext(ctx,
		"SELECT id, workspace_id, name FROM teams WHERE id = $1", id).
		Scan(&t.ID, &t.WorkspaceID, &t.Name)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "team", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return &t, nil
}

// TenantExists reports whether a tenant row exists.
func (s *Store) TenantExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM tenants WHERE id = $1", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check tenant: %w", err)
	}
	return true, nil
}

// GetTenantConfig retrieves the tenant's visibility configuration. A tenant
// without a config row gets a zero-value config, not an error.
func (s *Store) GetTenantConfig(ctx context.Context, tenantID string) (*TenantConfig, error) {
	query := `
		SELECT tenant_id, allow_tenant_admin_exec_visibility, private_whitelist, metadata
		FROM tenant_configs
		WHERE tenant_id = $1`

	var cfg TenantConfig
	var whitelist, metadata string
	err := s.db.QueryRowContext(ctx, query, tenantID).
		Scan(&cfg.ID, &cfg.AllowTenantAdminExecVisibility, &whitelist, &metadata)
	if err == sql.ErrNoRows {
		return &TenantConfig{ID: tenantID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant config: %w", err)
	}

	if whitelist != "" {
		if err := json.Unmarshal([]byte(whitelist), &cfg.PrivateWhitelist); err != nil {
			return nil, fmt.Errorf("failed to unmarshal private whitelist: %w", err)
		}
	}
	if metadata != "" && metadata != "{}" {
		cfg.Metadata = &TenantConfigMetadata{}
		if err := json.Unmarshal([]byte(metadata), cfg.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tenant config metadata: %w", err)
		}
	}
	return &cfg, nil
}

// SaveTenantConfig upserts the tenant's visibility configuration.
func (s *Store) SaveTenantConfig(ctx context.Context, cfg *TenantConfig) error {
	whitelist, err := json.Marshal(cfg.PrivateWhitelist)
	if err != nil {
		return fmt.Errorf("failed to marshal private whitelist: %w", err)
	}
	metadata := []byte("{}")
	if cfg.Metadata != nil {
		metadata, err = json.Marshal(cfg.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal tenant config metadata: %w", err)
		}
	}

	query := `
		INSERT INTO tenant_configs (tenant_id, allow_tenant_admin_exec_visibility, private_whitelist, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id) DO UPDATE SET
			allow_tenant_admin_exec_visibility = $2,
			private_whitelist = $3,
			metadata = $4,
			updated_at = $5`

	_, err = s.db.ExecContext(ctx, query,
		cfg.ID, cfg.AllowTenantAdminExecVisibility, string(whitelist), string(metadata), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save tenant config: %w", err)
	}
	return nil
}

// UpsertRoleAssignment inserts a role assignment or, when the same
// (user, role, scope) tuple already exists, refreshes its updated_at,
// assigned_by and expires_at. The stored row is returned either way;
// assigned_at survives re-assignment.
func (s *Store) UpsertRoleAssignment(ctx context.Context, a RoleAssignment) (RoleAssignment, error) {
	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	query := `
		INSERT INTO role_assignments (id, user_id, role, scope_type, scope_id, assigned_by, assigned_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8)
		ON CONFLICT (user_id, role, scope_type, scope_id) DO UPDATE SET
			assigned_by = $6,
			updated_at = $7,
			expires_at = $8
		RETURNING id, user_id, role, scope_type, scope_id, assigned_by, assigned_at, updated_at, expires_at`

	row := s.db.QueryRowContext(ctx, query,
		a.ID, a.UserID, a.Role, a.ScopeType, scopeIDParam(a.ScopeID),
		a.AssignedBy, now, a.ExpiresAt)

	stored, err := scanRoleAssignment(row)
	if err != nil {
		return RoleAssignment{}, fmt.Errorf("failed to upsert role assignment: %w", err)
	}
	return stored, nil
}

// DeleteRoleAssignment removes a role assignment by its (user, role, scope)
// tuple and reports whether a row existed.
func (s *Store) DeleteRoleAssignment(ctx context.Context, userID string, role Role, scopeType ScopeType, scopeID *string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM role_assignments
		WHERE user_id = $1 AND role = $2 AND scope_type = $3 AND scope_id = $4`,
		userID, role, scopeType, scopeIDParam(scopeID))
	if err != nil {
		return false, fmt.Errorf("failed to delete role assignment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count deleted assignments: %w", err)
	}
	return affected > 0, nil
}

// ListExpiredAssignments returns assignments whose expires_at has passed.
func (s *Store) ListExpiredAssignments(ctx context.Context, now time.Time) ([]RoleAssignment, error) {
	query := `
		SELECT id, user_id, role, scope_type, scope_id, assigned_by, assigned_at, updated_at, expires_at
		FROM role_assignments
		WHERE expires_at IS NOT NULL AND expires_at <= $1`

	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired assignments: %w", err)
	}
	defer rows.Close()

	var assignments []RoleAssignment
	for rows.Next() {
		a, err := scanRoleAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// DeleteAssignmentByID removes one assignment row.
func (s *Store) DeleteAssignmentByID(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM role_assignments WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete role assignment %s: %w", id, err)
	}
	return nil
}
