package tenants

import (
	"context"
	"fmt"

	"github.com/strideworks/stride/pkg/authz"
	"github.com/strideworks/stride/pkg/observability"
)

// Caller identifies who is performing an operation. TenantID is nil for
// platform superusers.
type Caller struct {
	UserID   string
	TenantID *string
}

// Service implements tenant, workspace and team management. Every mutation is
// gated on the authorization engine and the tenant boundary; provisioning a
// new tenant is the one platform-level operation and requires a superuser.
type Service struct {
	store       *Store
	engine      *authz.Engine
	builder     *authz.ContextBuilder
	assignments *authz.AssignmentService
	logger      *observability.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l *observability.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates the tenant management service.
func NewService(store *Store, engine *authz.Engine, builder *authz.ContextBuilder, assignments *authz.AssignmentService, opts ...ServiceOption) *Service {
	s := &Service{
		store:       store,
		engine:      engine,
		builder:     builder,
		assignments: assignments,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// authorize checks the tenant boundary and then the engine decision for the
// caller against the tenant. A caller with neither a tenant affiliation nor
// the superuser flag stops at the boundary guard, whatever roles the engine
// would find for them.
func (s *Service) authorize(ctx context.Context, caller Caller, action authz.Action, tenantID string) error {
	if err := authz.AssertSameTenant(tenantID, caller.TenantID); err != nil {
		return err
	}
	uc, err := s.builder.BuildUserContext(ctx, caller.UserID)
	if err != nil {
		return err
	}
	if err := authz.AssertCanMutateTenant(caller.TenantID, uc.IsSuperuser); err != nil {
		return err
	}
	d, err := s.engine.Authorize(ctx, uc, action, authz.TenantResource(tenantID))
	if err != nil {
		return err
	}
	if !d.Allowed {
		return &authz.DeniedError{Action: action, Reason: d.Reason}
	}
	return nil
}

// requireMembership verifies the caller belongs to the tenant (or is a
// platform caller). Structure reads need no specific role.
func (s *Service) requireMembership(caller Caller, tenantID string) error {
	return authz.AssertSameTenant(tenantID, caller.TenantID)
}

// CreateTenant provisions a new tenant and grants TENANT_OWNER to the given
// user. Provisioning sits outside any tenant, so only platform superusers may
// do it.
func (s *Service) CreateTenant(ctx context.Context, caller Caller, name, ownerUserID string) (*Tenant, error) {
	if name == "" {
		return nil, fmt.Errorf("tenants: tenant name is required")
	}
	if ownerUserID == "" {
		return nil, fmt.Errorf("tenants: owner user id is required")
	}

	uc, err := s.builder.BuildUserContext(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if !uc.IsSuperuser || caller.TenantID != nil {
		return nil, &authz.DeniedError{Action: authz.ActionManageTenantSettings, Reason: authz.ReasonRoleDeny}
	}

	t, err := s.store.CreateTenant(ctx, name)
	if err != nil {
		return nil, err
	}

	if _, err := s.assignments.AssignRole(ctx, authz.AssignParams{
		UserID:      ownerUserID,
		Role:        authz.RoleTenantOwner,
		ScopeType:   authz.ScopeTenant,
		ScopeID:     &t.ID,
		ActorUserID: caller.UserID,
	}); err != nil {
		return nil, fmt.Errorf("tenant created but owner grant failed: %w", err)
	}

	if s.logger != nil {
		s.logger.WithFields(map[string]interface{}{
			"tenant_id": t.ID,
			"owner_id":  ownerUserID,
		}).Info("tenant provisioned")
	}
	return t, nil
}

// GetTenant returns a tenant the caller belongs to.
func (s *Service) GetTenant(ctx context.Context, caller Caller, tenantID string) (*Tenant, error) {
	if err := s.requireMembership(caller, tenantID); err != nil {
		return nil, err
	}
	return s.store.GetTenant(ctx, tenantID)
}

// RenameTenant updates the tenant name.
func (s *Service) RenameTenant(ctx context.Context, caller Caller, tenantID, name string) error {
	if name == "" {
		return fmt.Errorf("tenants: tenant name is required")
	}
	if err := s.authorize(ctx, caller, authz.ActionManageTenantSettings, tenantID); err != nil {
		return err
	}
	return s.store.UpdateTenant(ctx, tenantID, name)
}

// CreateWorkspace adds a workspace to the tenant.
func (s *Service) CreateWorkspace(ctx context.Context, caller Caller, tenantID, name string) (*Workspace, error) {
	if name == "" {
		return nil, fmt.Errorf("tenants: workspace name is required")
	}
	if err := s.authorize(ctx, caller, authz.ActionManageWorkspaces, tenantID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.store.CreateWorkspace(ctx, tenantID, name)
}

// ListWorkspaces returns the tenant's workspaces.
func (s *Service) ListWorkspaces(ctx context.Context, caller Caller, tenantID string) ([]Workspace, error) {
	if err := s.requireMembership(caller, tenantID); err != nil {
		return nil, err
	}
	return s.store.ListWorkspaces(ctx, tenantID)
}

// DeleteWorkspace removes a workspace.
func (s *Service) DeleteWorkspace(ctx context.Context, caller Caller, workspaceID string) error {
	w, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, caller, authz.ActionManageWorkspaces, w.TenantID); err != nil {
		return err
	}
	return s.store.DeleteWorkspace(ctx, workspaceID)
}

// CreateTeam adds a team to a workspace.
func (s *Service) CreateTeam(ctx context.Context, caller Caller, workspaceID, name string) (*Team, error) {
	if name == "" {
		return nil, fmt.Errorf("tenants: team name is required")
	}
	w, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, caller, authz.ActionManageTeams, w.TenantID); err != nil {
		return nil, err
	}
	t, err := s.store.CreateTeam(ctx, workspaceID, name)
	if err != nil {
		return nil, err
	}
	t.TenantID = w.TenantID
	return t, nil
}

// ListTeams returns a workspace's teams.
func (s *Service) ListTeams(ctx context.Context, caller Caller, workspaceID string) ([]Team, error) {
	w, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMembership(caller, w.TenantID); err != nil {
		return nil, err
	}
	return s.store.ListTeams(ctx, workspaceID)
}

// DeleteTeam removes a team.
func (s *Service) DeleteTeam(ctx context.Context, caller Caller, teamID string) error {
	t, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, caller, authz.ActionManageTeams, t.TenantID); err != nil {
		return err
	}
	return s.store.DeleteTeam(ctx, teamID)
}

// GetTenantConfig returns the tenant's visibility configuration. The config
// carries whitelists, so reading it is held to the settings bar.
func (s *Service) GetTenantConfig(ctx context.Context, caller Caller, authzStore *authz.Store, tenantID string) (*authz.TenantConfig, error) {
	if err := s.authorize(ctx, caller, authz.ActionManageTenantSettings, tenantID); err != nil {
		return nil, err
	}
	return authzStore.GetTenantConfig(ctx, tenantID)
}

// UpdateTenantConfig replaces the tenant's visibility configuration.
func (s *Service) UpdateTenantConfig(ctx context.Context, caller Caller, authzStore *authz.Store, cfg *authz.TenantConfig) error {
	if cfg == nil || cfg.ID == "" {
		return fmt.Errorf("tenants: tenant config with id is required")
	}
	if err := s.authorize(ctx, caller, authz.ActionManageTenantSettings, cfg.ID); err != nil {
		return err
	}
	return authzStore.SaveTenantConfig(ctx, cfg)
}
