package goals

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/strideworks/stride/pkg/authz"
)

// Store provides database operations for goals.
type Store struct {
	db *sql.DB
}

// NewStore creates a new store backed by the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const goalColumns = "id, owner_id, tenant_id, workspace_id, team_id, title, description, visibility, published, created_at, updated_at"

func scanGoal(row interface{ Scan(...interface{}) error }) (*Goal, error) {
	var g Goal
	err := row.Scan(&g.ID, &g.OwnerID, &g.TenantID, &g.WorkspaceID, &g.TeamID,
		&g.Title, &g.Description, &g.Visibility, &g.Published, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// CreateGoal inserts a goal row, assigning its ID and timestamps.
func (s *Store) CreateGoal(ctx context.Context, g *Goal) error {
	g.ID = uuid.New().String()
	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now
	if g.Visibility == "" {
		g.Visibility = authz.VisibilityPublicTenant
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO goals (id, owner_id, tenant_id, workspace_id, team_id, title, description, visibility, published, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		g.ID, g.OwnerID, g.TenantID, g.WorkspaceID, g.TeamID,
		g.Title, g.Description, g.Visibility, g.Published, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create goal: %w", err)
	}
	return nil
}

// GetGoal retrieves a goal by ID.
func (s *Store) GetGoal(ctx context.Context, id string) (*Goal, error) {
	g, err := scanGoal(s.db.QueryRowContext(ctx,
		"SELECT "+goalColumns+" FROM goals WHERE id = $1", id))
	if err == sql.ErrNoRows {
		return nil, &authz.NotFoundError{Kind: "goal", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get goal: %w", err)
	}
	return g, nil
}

// ListGoalsByTenant returns all of the tenant's goals, newest first.
func (s *Store) ListGoalsByTenant(ctx context.Context, tenantID string) ([]Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+goalColumns+" FROM goals WHERE tenant_id = $1 ORDER BY created_at DESC, id",
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	var goals []Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		goals = append(goals, *g)
	}
	return goals, rows.Err()
}

// UpdateGoal persists mutable goal fields.
func (s *Store) UpdateGoal(ctx context.Context, g *Goal) error {
	g.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE goals
		SET title = $1, description = $2, visibility = $3, workspace_id = $4, team_id = $5, updated_at = $6
		WHERE id = $7`,
		g.Title, g.Description, g.Visibility, g.WorkspaceID, g.TeamID, g.UpdatedAt, g.ID)
	if err != nil {
		return fmt.Errorf("failed to update goal: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count updated goals: %w", err)
	}
	if affected == 0 {
		return &authz.NotFoundError{Kind: "goal", ID: g.ID}
	}
	return nil
}

// SetPublished flips the publish flag.
func (s *Store) SetPublished(ctx context.Context, id string, published bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE goals SET published = $1, updated_at = $2 WHERE id = $3",
		published, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set publish state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count updated goals: %w", err)
	}
	if affected == 0 {
		return &authz.NotFoundError{Kind: "goal", ID: id}
	}
	return nil
}

// DeleteGoal removes a goal row.
func (s *Store) DeleteGoal(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM goals WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete goal: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count deleted goals: %w", err)
	}
	if affected == 0 {
		return &authz.NotFoundError{Kind: "goal", ID: id}
	}
	return nil
}
