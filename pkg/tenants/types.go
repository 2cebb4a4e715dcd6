package tenants

import "time"

// Tenant is a customer organization, the top-level isolation unit. Every
// workspace, team, goal and role grant hangs off exactly one tenant.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Workspace is a tenant subdivision, typically a department.
type Workspace struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Team is the smallest organizational unit, nested in a workspace.
type Team struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
