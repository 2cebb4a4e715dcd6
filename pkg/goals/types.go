package goals

import (
	"time"

	"github.com/strideworks/stride/pkg/authz"
)

// Goal is an objective with its key results, owned by a user and scoped to a
// tenant, optionally pinned to a workspace or team.
type Goal struct {
	ID          string                `json:"id"`
	OwnerID     string                `json:"owner_id"`
	TenantID    string                `json:"tenant_id"`
	WorkspaceID *string               `json:"workspace_id,omitempty"`
	TeamID      *string               `json:"team_id,omitempty"`
	Title       string                `json:"title"`
	Description *string               `json:"description,omitempty"`
	Visibility  authz.VisibilityLevel `json:"visibility"`
	Published   bool                  `json:"published"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// Policy returns the slice of the goal the authorization engine evaluates.
func (g *Goal) Policy() authz.Goal {
	return authz.Goal{
		ID:          g.ID,
		OwnerID:     g.OwnerID,
		TenantID:    g.TenantID,
		WorkspaceID: g.WorkspaceID,
		TeamID:      g.TeamID,
		Visibility:  g.Visibility,
		Published:   g.Published,
	}
}
