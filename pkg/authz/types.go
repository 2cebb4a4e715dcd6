package authz

import (
	"time"
)

// ScopeType represents the level of the organizational hierarchy at which a
// role is granted. Scopes form a strict hierarchy: Team ⊂ Workspace ⊂ Tenant
// ⊂ Platform.
type ScopeType string

const (
	ScopePlatform  ScopeType = "platform"
	ScopeTenant    ScopeType = "tenant"
	ScopeWorkspace ScopeType = "workspace"
	ScopeTeam      ScopeType = "team"
)

// Valid reports whether the scope type is one of the four known tiers.
func (s ScopeType) Valid() bool {
	switch s {
	case ScopePlatform, ScopeTenant, ScopeWorkspace, ScopeTeam:
		return true
	}
	return false
}

// Role is a named permission tier granted to a user at a specific scope
// instance.
type Role string

const (
	// Platform scope
	RoleSuperuser Role = "SUPERUSER"

	// Tenant scope
	RoleTenantOwner  Role = "TENANT_OWNER"
	RoleTenantAdmin  Role = "TENANT_ADMIN"
	RoleTenantViewer Role = "TENANT_VIEWER"

	// Workspace scope
	RoleWorkspaceLead   Role = "WORKSPACE_LEAD"
	RoleWorkspaceAdmin  Role = "WORKSPACE_ADMIN"
	RoleWorkspaceMember Role = "WORKSPACE_MEMBER"

	// Team scope
	RoleTeamLead        Role = "TEAM_LEAD"
	RoleTeamContributor Role = "TEAM_CONTRIBUTOR"
	RoleTeamViewer      Role = "TEAM_VIEWER"
)

// rolePriorities maps each role to a fixed priority used to pick the
// strongest role when several apply at one scope. Higher wins.
var rolePriorities = map[Role]int{
	RoleSuperuser:       100,
	RoleTenantOwner:     90,
	RoleTenantAdmin:     80,
	RoleTenantViewer:    30,
	RoleWorkspaceLead:   70,
	RoleWorkspaceAdmin:  60,
	RoleWorkspaceMember: 40,
	RoleTeamLead:        50,
	RoleTeamContributor: 35,
	RoleTeamViewer:      20,
}

// roleScopes maps each role to the single scope tier it may be granted at.
var roleScopes = map[Role]ScopeType{
	RoleSuperuser:       ScopePlatform,
	RoleTenantOwner:     ScopeTenant,
	RoleTenantAdmin:     ScopeTenant,
	RoleTenantViewer:    ScopeTenant,
	RoleWorkspaceLead:   ScopeWorkspace,
	RoleWorkspaceAdmin:  ScopeWorkspace,
	RoleWorkspaceMember: ScopeWorkspace,
	RoleTeamLead:        ScopeTeam,
	RoleTeamContributor: ScopeTeam,
	RoleTeamViewer:      ScopeTeam,
}

// Priority returns the role's fixed priority. Unknown roles rank below every
// defined role.
func (r Role) Priority() int {
	return rolePriorities[r]
}

// ScopeTier returns the scope tier the role is granted at.
func (r Role) ScopeTier() (ScopeType, bool) {
	s, ok := roleScopes[r]
	return s, ok
}

// Valid reports whether r is a defined role.
func (r Role) Valid() bool {
	_, ok := roleScopes[r]
	return ok
}

// IsViewer reports whether the role is a read-only tier.
func (r Role) IsViewer() bool {
	return r == RoleTenantViewer || r == RoleTeamViewer
}

// AllRoles returns every defined role, strongest first.
func AllRoles() []Role {
	return []Role{
		RoleSuperuser,
		RoleTenantOwner,
		RoleTenantAdmin,
		RoleWorkspaceLead,
		RoleWorkspaceAdmin,
		RoleTeamLead,
		RoleWorkspaceMember,
		RoleTeamContributor,
		RoleTenantViewer,
		RoleTeamViewer,
	}
}

// Action represents an operation a caller wants to perform. The set is
// closed: anything not listed here is denied by default.
type Action string

const (
	ActionViewGoal             Action = "view_okr"
	ActionEditGoal             Action = "edit_okr"
	ActionDeleteGoal           Action = "delete_okr"
	ActionCreateGoal           Action = "create_okr"
	ActionPublishGoal          Action = "publish_okr"
	ActionRequestCheckin       Action = "request_checkin"
	ActionManageUsers          Action = "manage_users"
	ActionManageBilling        Action = "manage_billing"
	ActionManageWorkspaces     Action = "manage_workspaces"
	ActionManageTeams          Action = "manage_teams"
	ActionImpersonateUser      Action = "impersonate_user"
	ActionManageTenantSettings Action = "manage_tenant_settings"
	ActionViewAllGoals         Action = "view_all_okrs"
	ActionExportData           Action = "export_data"
)

// AllActions returns the closed action set.
func AllActions() []Action {
	return []Action{
		ActionViewGoal, ActionEditGoal, ActionDeleteGoal, ActionCreateGoal,
		ActionPublishGoal, ActionRequestCheckin, ActionManageUsers,
		ActionManageBilling, ActionManageWorkspaces, ActionManageTeams,
		ActionImpersonateUser, ActionManageTenantSettings,
		ActionViewAllGoals, ActionExportData,
	}
}

// Reason is the machine-readable explanation attached to every Decision. It
// is the stable contract the transport layer maps to status codes, and the
// value recorded in audit entries for denials.
type Reason string

const (
	ReasonAllow             Reason = "ALLOW"
	ReasonRoleDeny          Reason = "ROLE_DENY"
	ReasonTenantBoundary    Reason = "TENANT_BOUNDARY"
	ReasonPrivateVisibility Reason = "PRIVATE_VISIBILITY"
	ReasonPublishLock       Reason = "PUBLISH_LOCK"
	ReasonSuperuserReadOnly Reason = "SUPERUSER_READ_ONLY"
)

// Decision is the outcome of an authorization check. A false Allowed is a
// normal result, not an error; the Reason says why.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
}

func allow() Decision {
	return Decision{Allowed: true, Reason: ReasonAllow}
}

func deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// VisibilityLevel is the per-goal tag controlling whether non-owners can read
// it. Only VisibilityPrivate restricts read access; the legacy levels are
// retained for stored data but are interpreted as tenant-visible.
type VisibilityLevel string

const (
	VisibilityPrivate      VisibilityLevel = "PRIVATE"
	VisibilityPublicTenant VisibilityLevel = "PUBLIC_TENANT"

	// Legacy levels. Collapsed into PUBLIC_TENANT for read purposes.
	VisibilityWorkspaceOnly VisibilityLevel = "WORKSPACE_ONLY"
	VisibilityTeamOnly      VisibilityLevel = "TEAM_ONLY"
	VisibilityManagerChain  VisibilityLevel = "MANAGER_CHAIN"
	VisibilityExecOnly      VisibilityLevel = "EXEC_ONLY"
)

// Restricted reports whether the level actually limits read access.
func (v VisibilityLevel) Restricted() bool {
	return v == VisibilityPrivate
}

// RoleAssignment is a persisted grant of a role to a user at a scope
// instance. At most one row exists per (user, role, scope type, scope id)
// tuple; re-assigning touches UpdatedAt instead of creating a duplicate.
type RoleAssignment struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Role       Role       `json:"role"`
	ScopeType  ScopeType  `json:"scope_type"`
	ScopeID    *string    `json:"scope_id,omitempty"` // nil only for platform scope
	AssignedBy *string    `json:"assigned_by,omitempty"`
	AssignedAt time.Time  `json:"assigned_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// User is the minimal shape of a user record the engine needs.
type User struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	IsSuperuser bool    `json:"is_superuser"`
	ManagerID   *string `json:"manager_id,omitempty"`
}

// Workspace is a tenant subdivision containing teams.
type Workspace struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
}

// Team is the smallest organizational scope, nested in a workspace.
type Team struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
}

// UserContext is the derived, cacheable aggregate of everything the engine
// needs to decide on behalf of one user. The three scope maps are exactly
// the grouping of RoleAssignments by scope; platform rows are carried by the
// IsSuperuser flag, not a map entry. Consumers only read it.
type UserContext struct {
	UserID          string            `json:"user_id"`
	IsSuperuser     bool              `json:"is_superuser"`
	TenantRoles     map[string][]Role `json:"tenant_roles"`
	WorkspaceRoles  map[string][]Role `json:"workspace_roles"`
	TeamRoles       map[string][]Role `json:"team_roles"`
	RoleAssignments []RoleAssignment  `json:"role_assignments"`
	DirectReports   []string          `json:"direct_reports"`
	ManagerID       *string           `json:"manager_id,omitempty"`
}

// HasRoleAt reports whether the context holds the given role at the given
// scope instance.
func (uc *UserContext) HasRoleAt(role Role, scope ScopeType, scopeID string) bool {
	var roles []Role
	switch scope {
	case ScopeTenant:
		roles = uc.TenantRoles[scopeID]
	case ScopeWorkspace:
		roles = uc.WorkspaceRoles[scopeID]
	case ScopeTeam:
		roles = uc.TeamRoles[scopeID]
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsManagerOf reports whether the given user reports directly to this one.
func (uc *UserContext) IsManagerOf(userID string) bool {
	for _, id := range uc.DirectReports {
		if id == userID {
			return true
		}
	}
	return false
}

// Goal is the visibility-bearing object the engine decides about. The richer
// product record lives in pkg/goals; this is the slice of it that
// authorization needs.
type Goal struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	TenantID    string          `json:"tenant_id"`
	WorkspaceID *string         `json:"workspace_id,omitempty"`
	TeamID      *string         `json:"team_id,omitempty"`
	Visibility  VisibilityLevel `json:"visibility"`
	Published   bool            `json:"published"`
}

// TenantConfigMetadata carries per-tenant visibility settings that predate
// the top-level fields. Both whitelist keys are honored for stored configs
// written before the EXEC_ONLY level was retired.
type TenantConfigMetadata struct {
	PrivateWhitelist  []string `json:"privateWhitelist,omitempty"`
	ExecOnlyWhitelist []string `json:"execOnlyWhitelist,omitempty"`
}

// TenantConfig holds the tenant settings consumed by the visibility policy.
type TenantConfig struct {
	ID                             string                `json:"id"`
	AllowTenantAdminExecVisibility bool                  `json:"allow_tenant_admin_exec_visibility"`
	PrivateWhitelist               []string              `json:"private_whitelist,omitempty"`
	Metadata                       *TenantConfigMetadata `json:"metadata,omitempty"`
}

// WhitelistedFor reports whether the user appears in any of the config's
// private-access whitelists.
func (c *TenantConfig) WhitelistedFor(userID string) bool {
	if c == nil {
		return false
	}
	for _, id := range c.PrivateWhitelist {
		if id == userID {
			return true
		}
	}
	if c.Metadata != nil {
		for _, id := range c.Metadata.PrivateWhitelist {
			if id == userID {
				return true
			}
		}
		for _, id := range c.Metadata.ExecOnlyWhitelist {
			if id == userID {
				return true
			}
		}
	}
	return false
}

// ResourceContext describes the scope (and optionally the concrete goal) an
// authorization check targets. It is supplied fresh per call and never
// persisted.
type ResourceContext struct {
	TenantID     string        `json:"tenant_id"`
	WorkspaceID  *string       `json:"workspace_id,omitempty"`
	TeamID       *string       `json:"team_id,omitempty"`
	Goal         *Goal         `json:"goal,omitempty"`
	TenantConfig *TenantConfig `json:"tenant_config,omitempty"`
}

// GoalResource builds a ResourceContext for a check against a concrete goal.
func GoalResource(g *Goal, cfg *TenantConfig) ResourceContext {
	return ResourceContext{
		TenantID:     g.TenantID,
		WorkspaceID:  g.WorkspaceID,
		TeamID:       g.TeamID,
		Goal:         g,
		TenantConfig: cfg,
	}
}

// TenantResource builds a scope-only ResourceContext for tenant-level
// checks.
func TenantResource(tenantID string) ResourceContext {
	return ResourceContext{TenantID: tenantID}
}
