package goals

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/strideworks/stride/pkg/authz"
	"github.com/strideworks/stride/pkg/observability"
)

// Caller identifies who is performing an operation. TenantID is nil for
// platform superusers.
type Caller struct {
	UserID   string
	TenantID *string
}

// Service implements goal CRUD with every path gated on the authorization
// engine. Reads additionally pass through the visibility policy, so a
// private goal is indistinguishable from a forbidden one to non-owners.
type Service struct {
	store      *Store
	authzStore *authz.Store
	engine     *authz.Engine
	builder    *authz.ContextBuilder
	logger     *observability.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l *observability.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates the goal service.
func NewService(store *Store, authzStore *authz.Store, engine *authz.Engine, builder *authz.ContextBuilder, opts ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		authzStore: authzStore,
		engine:     engine,
		builder:    builder,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) userContext(ctx context.Context, caller Caller) (*authz.UserContext, error) {
	return s.builder.BuildUserContext(ctx, caller.UserID)
}

// authorizeGoal runs the engine for an action against a concrete goal.
func (s *Service) authorizeGoal(ctx context.Context, caller Caller, action authz.Action, g *Goal) (*authz.UserContext, error) {
	if err := authz.AssertSameTenant(g.TenantID, caller.TenantID); err != nil {
		return nil, err
	}
	uc, err := s.userContext(ctx, caller)
	if err != nil {
		return nil, err
	}
	cfg, err := s.authzStore.GetTenantConfig(ctx, g.TenantID)
	if err != nil {
		return nil, err
	}
	policy := g.Policy()
	d, err := s.engine.Authorize(ctx, uc, action, authz.GoalResource(&policy, cfg))
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		return nil, &authz.DeniedError{Action: action, Reason: d.Reason}
	}
	return uc, nil
}

// CreateInput carries the caller-settable fields of a new goal.
type CreateInput struct {
	TenantID    string                `json:"tenant_id"`
	WorkspaceID *string               `json:"workspace_id,omitempty"`
	TeamID      *string               `json:"team_id,omitempty"`
	Title       string                `json:"title"`
	Description *string               `json:"description,omitempty"`
	Visibility  authz.VisibilityLevel `json:"visibility,omitempty"`
}

// CreateGoal creates a draft goal owned by the caller.
func (s *Service) CreateGoal(ctx context.Context, caller Caller, in CreateInput) (*Goal, error) {
	if in.Title == "" {
		return nil, fmt.Errorf("goals: title is required")
	}
	if in.TenantID == "" {
		return nil, authz.ErrMissingTenantID
	}
	if err := authz.AssertSameTenant(in.TenantID, caller.TenantID); err != nil {
		return nil, err
	}
	uc, err := s.userContext(ctx, caller)
	if err != nil {
		return nil, err
	}
	if err := authz.AssertCanMutateTenant(caller.TenantID, uc.IsSuperuser); err != nil {
		return nil, err
	}
	res := authz.ResourceContext{
		TenantID:    in.TenantID,
		WorkspaceID: in.WorkspaceID,
		TeamID:      in.TeamID,
	}
	d, err := s.engine.Authorize(ctx, uc, authz.ActionCreateGoal, res)
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		return nil, &authz.DeniedError{Action: authz.ActionCreateGoal, Reason: d.Reason}
	}

	g := &Goal{
		OwnerID:     caller.UserID,
		TenantID:    in.TenantID,
		WorkspaceID: in.WorkspaceID,
		TeamID:      in.TeamID,
		Title:       in.Title,
		Description: in.Description,
		Visibility:  in.Visibility,
	}
	if err := s.store.CreateGoal(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// GetGoal returns a goal the caller is allowed to see.
func (s *Service) GetGoal(ctx context.Context, caller Caller, id string) (*Goal, error) {
	g, err := s.store.GetGoal(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeGoal(ctx, caller, authz.ActionViewGoal, g); err != nil {
		return nil, err
	}
	return g, nil
}

// ListGoals returns the tenant's goals filtered down to what the caller may
// see. Goals hidden by visibility are silently dropped, never surfaced as
// denials.
func (s *Service) ListGoals(ctx context.Context, caller Caller, tenantID string) ([]Goal, error) {
	if err := authz.AssertSameTenant(tenantID, caller.TenantID); err != nil {
		return nil, err
	}
	uc, err := s.userContext(ctx, caller)
	if err != nil {
		return nil, err
	}
	var (
		cfg *authz.TenantConfig
		all []Goal
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		cfg, err = s.authzStore.GetTenantConfig(egCtx, tenantID)
		return err
	})
	eg.Go(func() error {
		var err error
		all, err = s.store.ListGoalsByTenant(egCtx, tenantID)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	visible := make([]Goal, 0, len(all))
	for _, g := range all {
		if authz.CanView(uc, g.Policy(), cfg) {
			visible = append(visible, g)
		}
	}
	return visible, nil
}

// UpdateInput carries the mutable fields of a goal.
type UpdateInput struct {
	Title       string                `json:"title"`
	Description *string               `json:"description,omitempty"`
	Visibility  authz.VisibilityLevel `json:"visibility,omitempty"`
	WorkspaceID *string               `json:"workspace_id,omitempty"`
	TeamID      *string               `json:"team_id,omitempty"`
}

// UpdateGoal edits a goal. Published goals are locked to tenant admins.
func (s *Service) UpdateGoal(ctx context.Context, caller Caller, id string, in UpdateInput) (*Goal, error) {
	if in.Title == "" {
		return nil, fmt.Errorf("goals: title is required")
	}
	g, err := s.store.GetGoal(ctx, id)
	if err != nil {
		return nil, err
	}
	uc, err := s.authorizeGoal(ctx, caller, authz.ActionEditGoal, g)
	if err != nil {
		return nil, err
	}
	if err := authz.AssertCanMutateTenant(caller.TenantID, uc.IsSuperuser); err != nil {
		return nil, err
	}

	g.Title = in.Title
	g.Description = in.Description
	g.WorkspaceID = in.WorkspaceID
	g.TeamID = in.TeamID
	if in.Visibility != "" {
		g.Visibility = in.Visibility
	}
	if err := s.store.UpdateGoal(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// DeleteGoal removes a goal. The publish lock applies here as well.
func (s *Service) DeleteGoal(ctx context.Context, caller Caller, id string) error {
	g, err := s.store.GetGoal(ctx, id)
	if err != nil {
		return err
	}
	uc, err := s.authorizeGoal(ctx, caller, authz.ActionDeleteGoal, g)
	if err != nil {
		return err
	}
	if err := authz.AssertCanMutateTenant(caller.TenantID, uc.IsSuperuser); err != nil {
		return err
	}
	return s.store.DeleteGoal(ctx, id)
}

// SetPublished publishes or unpublishes a goal.
func (s *Service) SetPublished(ctx context.Context, caller Caller, id string, published bool) (*Goal, error) {
	g, err := s.store.GetGoal(ctx, id)
	if err != nil {
		return nil, err
	}
	uc, err := s.authorizeGoal(ctx, caller, authz.ActionPublishGoal, g)
	if err != nil {
		return nil, err
	}
	if err := authz.AssertCanMutateTenant(caller.TenantID, uc.IsSuperuser); err != nil {
		return nil, err
	}
	if err := s.store.SetPublished(ctx, id, published); err != nil {
		return nil, err
	}
	g.Published = published
	return g, nil
}

// ExportGoals returns every goal in the tenant regardless of per-goal
// visibility. It is held to the tenant administration bar, not to view_okr.
func (s *Service) ExportGoals(ctx context.Context, caller Caller, tenantID string) ([]Goal, error) {
	if err := authz.AssertSameTenant(tenantID, caller.TenantID); err != nil {
		return nil, err
	}
	uc, err := s.userContext(ctx, caller)
	if err != nil {
		return nil, err
	}
	d, err := s.engine.Authorize(ctx, uc, authz.ActionExportData, authz.TenantResource(tenantID))
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		return nil, &authz.DeniedError{Action: authz.ActionExportData, Reason: d.Reason}
	}
	return s.store.ListGoalsByTenant(ctx, tenantID)
}

// RequestCheckin asks a goal owner for a progress update. The caller must be
// the owner's manager or hold a lead role over the goal's scope.
func (s *Service) RequestCheckin(ctx context.Context, caller Caller, goalID string) (*Goal, error) {
	g, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if err := authz.AssertSameTenant(g.TenantID, caller.TenantID); err != nil {
		return nil, err
	}
	uc, err := s.userContext(ctx, caller)
	if err != nil {
		return nil, err
	}
	cfg, err := s.authzStore.GetTenantConfig(ctx, g.TenantID)
	if err != nil {
		return nil, err
	}
	policy := g.Policy()
	d, err := s.engine.Authorize(ctx, uc, authz.ActionRequestCheckin, authz.GoalResource(&policy, cfg))
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		return nil, &authz.DeniedError{Action: authz.ActionRequestCheckin, Reason: d.Reason}
	}
	if s.logger != nil {
		s.logger.WithFields(map[string]interface{}{
			"goal_id":      g.ID,
			"owner_id":     g.OwnerID,
			"requested_by": caller.UserID,
		}).Info("checkin requested")
	}
	return g, nil
}
