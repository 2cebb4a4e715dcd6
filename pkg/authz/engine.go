package authz

import (
	"context"
	"fmt"
	"sort"

	"github.com/strideworks/stride/pkg/audit"
	"github.com/strideworks/stride/pkg/observability"
)

// superuserReadActions is the set of actions a platform superuser may
// perform. Superusers can inspect anything but never mutate tenant data;
// impersonation is included because it produces a token, not a data change.
var superuserReadActions = map[Action]bool{
	ActionViewGoal:        true,
	ActionViewAllGoals:    true,
	ActionExportData:      true,
	ActionImpersonateUser: true,
}

// auditableActions is the set of actions whose denials are recorded in the
// audit trail.
var auditableActions = map[Action]bool{
	ActionEditGoal:             true,
	ActionDeleteGoal:           true,
	ActionPublishGoal:          true,
	ActionManageUsers:          true,
	ActionManageBilling:        true,
	ActionManageWorkspaces:     true,
	ActionManageTeams:          true,
	ActionManageTenantSettings: true,
	ActionImpersonateUser:      true,
	ActionExportData:           true,
}

// Engine is the central authorization decision point. Every caller goes
// through Authorize; no service re-implements the superuser rule or keeps
// its own reason strings.
type Engine struct {
	audit   audit.Logger
	metrics *observability.Metrics
	logger  *observability.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithAuditLogger sets the audit sink used for access-denied events.
func WithAuditLogger(l audit.Logger) EngineOption {
	return func(e *Engine) { e.audit = l }
}

// WithMetrics sets the metrics collector for decision counters.
func WithMetrics(m *observability.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(l *observability.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an authorization engine. All options are optional; a
// zero-configured engine decides identically but emits nothing.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.audit == nil {
		e.audit = audit.NewNoopLogger()
	}
	return e
}

// Authorize decides whether the user behind uc may perform action against
// the given resource. A denial is a normal Decision, never an error; errors
// are reserved for malformed input such as a missing tenant id.
//
// Dispatch order: superuser read-only short-circuit, then per-action
// predicates over the effective role set, then deny-by-default.
func (e *Engine) Authorize(ctx context.Context, uc *UserContext, action Action, res ResourceContext) (Decision, error) {
	if uc == nil {
		return Decision{}, fmt.Errorf("authz: user context is required")
	}

	d, err := e.decide(uc, action, res)
	if err != nil {
		return Decision{}, err
	}

	if e.metrics != nil {
		e.metrics.AuthzDecisionsTotal.WithLabelValues(string(action), string(d.Reason)).Inc()
	}
	if !d.Allowed && auditableActions[action] {
		e.recordDenial(ctx, uc, action, res, d)
	}
	return d, nil
}

func (e *Engine) decide(uc *UserContext, action Action, res ResourceContext) (Decision, error) {
	// Superusers are platform operators: full read access, no mutation
	// rights, regardless of any tenant role they might also hold.
	if uc.IsSuperuser {
		if superuserReadActions[action] {
			return allow(), nil
		}
		return deny(ReasonSuperuserReadOnly), nil
	}

	// Impersonation is a superuser-only path; for everyone else this is an
	// ordinary deny and does not need a tenant scope.
	if action == ActionImpersonateUser {
		return deny(ReasonRoleDeny), nil
	}

	if res.TenantID == "" {
		return Decision{}, ErrMissingTenantID
	}

	switch action {
	case ActionViewGoal:
		return e.decideView(uc, res), nil
	case ActionViewAllGoals:
		return e.decideScopeView(uc, res), nil
	case ActionEditGoal, ActionDeleteGoal:
		return e.decideMutateGoal(uc, action, res)
	case ActionCreateGoal:
		return e.decideCreate(uc, res), nil
	case ActionPublishGoal:
		return e.decidePublish(uc, res), nil
	case ActionRequestCheckin:
		return e.decideRequestCheckin(uc, res), nil
	case ActionManageUsers, ActionManageBilling, ActionManageWorkspaces,
		ActionManageTeams, ActionManageTenantSettings:
		return e.decideTenantAdmin(uc, res), nil
	case ActionExportData:
		// Export bypasses per-object visibility, so it is held to the same
		// bar as tenant administration rather than to view_okr.
		return e.decideTenantAdmin(uc, res), nil
	}

	// Unknown or unmatched actions are denied unconditionally.
	return deny(ReasonRoleDeny), nil
}

// decideView handles view_okr. With a concrete goal it delegates to the
// visibility policy; without one it asks only for some role at the
// resource's scope chain.
func (e *Engine) decideView(uc *UserContext, res ResourceContext) Decision {
	if res.Goal != nil {
		if CanView(uc, *res.Goal, res.TenantConfig) {
			return allow()
		}
		return deny(ReasonPrivateVisibility)
	}
	return e.decideScopeView(uc, res)
}

func (e *Engine) decideScopeView(uc *UserContext, res ResourceContext) Decision {
	if len(EffectiveRoles(uc, res)) > 0 {
		return allow()
	}
	return deny(ReasonRoleDeny)
}

// decideMutateGoal handles edit_okr and delete_okr: ownership or an
// administrative role qualifies, but published goals additionally require a
// tenant admin tier (the publish lock).
func (e *Engine) decideMutateGoal(uc *UserContext, action Action, res ResourceContext) (Decision, error) {
	goal := res.Goal
	if goal == nil {
		return Decision{}, fmt.Errorf("authz: %s requires a goal in the resource context", action)
	}

	owner := goal.OwnerID == uc.UserID
	admin := hasAnyEffectiveRole(uc, res,
		RoleTenantOwner, RoleTenantAdmin, RoleWorkspaceLead, RoleWorkspaceAdmin)

	if !owner && !admin {
		return deny(ReasonRoleDeny), nil
	}
	if goal.Published && !hasAnyEffectiveRole(uc, res, RoleTenantOwner, RoleTenantAdmin) {
		return deny(ReasonPublishLock), nil
	}
	return allow(), nil
}

// decideCreate handles create_okr: any non-viewer role at the declared
// scope, including plain workspace membership.
func (e *Engine) decideCreate(uc *UserContext, res ResourceContext) Decision {
	for _, r := range EffectiveRoles(uc, res) {
		if !r.IsViewer() {
			return allow()
		}
	}
	return deny(ReasonRoleDeny)
}

// decidePublish handles publish_okr: tenant owners and admins always, and
// workspace leads/admins when the goal is workspace-scoped. Superusers never
// reach here.
func (e *Engine) decidePublish(uc *UserContext, res ResourceContext) Decision {
	for _, r := range uc.TenantRoles[res.TenantID] {
		if r == RoleTenantOwner || r == RoleTenantAdmin {
			return allow()
		}
	}

	workspaceID := res.WorkspaceID
	if workspaceID == nil && res.Goal != nil {
		workspaceID = res.Goal.WorkspaceID
	}
	if workspaceID != nil {
		for _, r := range uc.WorkspaceRoles[*workspaceID] {
			if r == RoleWorkspaceLead || r == RoleWorkspaceAdmin {
				return allow()
			}
		}
	}
	return deny(ReasonRoleDeny)
}

// decideRequestCheckin handles request_checkin: managers may request
// check-ins from their direct reports, and lead tiers may request them
// within their scope.
func (e *Engine) decideRequestCheckin(uc *UserContext, res ResourceContext) Decision {
	if res.Goal != nil && uc.IsManagerOf(res.Goal.OwnerID) {
		return allow()
	}
	if hasAnyEffectiveRole(uc, res,
		RoleTenantOwner, RoleTenantAdmin, RoleWorkspaceLead, RoleWorkspaceAdmin, RoleTeamLead) {
		return allow()
	}
	return deny(ReasonRoleDeny)
}

// decideTenantAdmin handles the manage_* family and export_data: tenant
// owner or admin at the resource's tenant, nothing less.
func (e *Engine) decideTenantAdmin(uc *UserContext, res ResourceContext) Decision {
	for _, r := range uc.TenantRoles[res.TenantID] {
		if r == RoleTenantOwner || r == RoleTenantAdmin {
			return allow()
		}
	}
	return deny(ReasonRoleDeny)
}

func (e *Engine) recordDenial(ctx context.Context, uc *UserContext, action Action, res ResourceContext, d Decision) {
	entry := audit.NewEntry(audit.EventTypeAccessDenied, uc.UserID)
	entry.TargetType = audit.TargetTypeTenant
	entry.TargetID = res.TenantID
	if res.Goal != nil {
		entry.TargetType = audit.TargetTypeGoal
		entry.TargetID = res.Goal.ID
	}
	entry.Reason = string(d.Reason)
	entry.Metadata["action"] = string(action)

	if err := e.audit.Record(ctx, entry); err != nil {
		// The decision stands; the sink failure goes to monitoring instead.
		if e.metrics != nil {
			e.metrics.AuditFailuresTotal.Inc()
		}
		if e.logger != nil {
			e.logger.WithError(err).Warn("failed to record access-denied audit event")
		}
	}
}

// EffectiveRoles returns the deduplicated union of the roles uc holds at the
// resource's tenant, workspace and team, strongest first. Superuser status
// is not a role here; it is handled by Authorize's short-circuit.
func EffectiveRoles(uc *UserContext, res ResourceContext) []Role {
	seen := make(map[Role]bool)
	var roles []Role

	add := func(rs []Role) {
		for _, r := range rs {
			if !seen[r] {
				seen[r] = true
				roles = append(roles, r)
			}
		}
	}

	add(uc.TenantRoles[res.TenantID])
	if res.WorkspaceID != nil {
		add(uc.WorkspaceRoles[*res.WorkspaceID])
	}
	if res.TeamID != nil {
		add(uc.TeamRoles[*res.TeamID])
	}

	sort.SliceStable(roles, func(i, j int) bool {
		if roles[i].Priority() != roles[j].Priority() {
			return roles[i].Priority() > roles[j].Priority()
		}
		return roles[i] < roles[j]
	})
	return roles
}

func hasAnyEffectiveRole(uc *UserContext, res ResourceContext, wanted ...Role) bool {
	for _, r := range EffectiveRoles(uc, res) {
		for _, w := range wanted {
			if r == w {
				return true
			}
		}
	}
	return false
}
