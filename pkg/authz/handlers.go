package authz

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/strideworks/stride/pkg/audit"
	"github.com/strideworks/stride/pkg/httputil"
	"github.com/strideworks/stride/pkg/middleware"
)

// AuditSearcher is the read side of the audit trail, satisfied by
// audit.DBLogger.
type AuditSearcher interface {
	Search(ctx context.Context, filter audit.SearchFilter) ([]*audit.Entry, error)
}

// Handlers provides the HTTP surface for role administration and
// authorization checks.
type Handlers struct {
	store       *Store
	builder     *ContextBuilder
	assignments *AssignmentService
	engine      *Engine
	auditSearch AuditSearcher
}

// NewHandlers creates the authorization handlers. auditSearch may be nil when
// no queryable audit backend is configured; the audit endpoint then returns
// 404.
func NewHandlers(store *Store, builder *ContextBuilder, assignments *AssignmentService, engine *Engine, auditSearch AuditSearcher) *Handlers {
	return &Handlers{
		store:       store,
		builder:     builder,
		assignments: assignments,
		engine:      engine,
		auditSearch: auditSearch,
	}
}

// RegisterRoutes registers all authorization routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/authz/users/{id}/roles", h.GrantRole).Methods("POST")
	router.HandleFunc("/authz/users/{id}/roles", h.ListUserRoles).Methods("GET")
	router.HandleFunc("/authz/users/{id}/roles", h.RevokeRole).Methods("DELETE")
	router.HandleFunc("/authz/users/{id}/effective-roles", h.GetEffectiveRoles).Methods("GET")
	router.HandleFunc("/authz/check", h.Check).Methods("POST")
	router.HandleFunc("/authz/sweep", h.SweepExpired).Methods("POST")
	router.HandleFunc("/authz/audit", h.SearchAudit).Methods("GET")
}

// requireRoleManager authenticates the caller and verifies they may manage
// role assignments. Tenant-affiliated callers need manage_users at their
// tenant; callers without a tenant must be platform superusers, whose grants
// are bounded by the assignment service itself.
func (h *Handlers) requireRoleManager(w http.ResponseWriter, r *http.Request) (*middleware.Principal, bool) {
	p := middleware.GetPrincipal(r)
	if p == nil {
		httputil.WriteUnauthorized(w, "caller identity required")
		return nil, false
	}

	uc, err := h.builder.BuildUserContext(r.Context(), p.UserID)
	if err != nil {
		if IsNotFound(err) {
			httputil.WriteUnauthorized(w, "unknown caller")
			return nil, false
		}
		httputil.WriteInternalError(w, err)
		return nil, false
	}

	if p.TenantID == nil {
		if err := AssertCanMutateTenant(p.TenantID, uc.IsSuperuser); err != nil {
			httputil.WriteForbidden(w, "tenant affiliation required")
			return nil, false
		}
		return p, true
	}

	decision, err := h.engine.Authorize(r.Context(), uc, ActionManageUsers, TenantResource(*p.TenantID))
	if err != nil {
		httputil.WriteInternalError(w, err)
		return nil, false
	}
	if !decision.Allowed {
		httputil.WriteForbidden(w, "insufficient permissions to manage roles")
		return nil, false
	}

	return p, true
}

type roleChangeRequest struct {
	Role      Role       `json:"role"`
	ScopeType ScopeType  `json:"scope_type"`
	ScopeID   *string    `json:"scope_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// GrantRole assigns a role to a user at a scope. Granting the same role
// twice refreshes the existing assignment instead of duplicating it.
func (h *Handlers) GrantRole(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requireRoleManager(w, r)
	if !ok {
		return
	}

	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req roleChangeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	assignment, err := h.assignments.AssignRole(r.Context(), AssignParams{
		UserID:         userID,
		Role:           req.Role,
		ScopeType:      req.ScopeType,
		ScopeID:        req.ScopeID,
		ActorUserID:    p.UserID,
		CallerTenantID: p.TenantID,
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		writeAssignmentError(w, err)
		return
	}

	httputil.WriteCreated(w, assignment)
}

// RevokeRole removes a role assignment. Revoking a grant that does not exist
// succeeds without effect.
func (h *Handlers) RevokeRole(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requireRoleManager(w, r)
	if !ok {
		return
	}

	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req roleChangeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	err := h.assignments.RevokeRole(r.Context(), AssignParams{
		UserID:         userID,
		Role:           req.Role,
		ScopeType:      req.ScopeType,
		ScopeID:        req.ScopeID,
		ActorUserID:    p.UserID,
		CallerTenantID: p.TenantID,
	})
	if err != nil {
		writeAssignmentError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// ListUserRoles returns the active role assignments for a user.
func (h *Handlers) ListUserRoles(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRoleManager(w, r); !ok {
		return
	}

	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	assignments, err := h.store.ListRoleAssignments(r.Context(), userID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id":     userID,
		"assignments": assignments,
	})
}

// GetEffectiveRoles returns the union of roles a user holds at a resource,
// ordered by descending priority.
func (h *Handlers) GetEffectiveRoles(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRoleManager(w, r); !ok {
		return
	}

	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	tenantID := httputil.ParseQueryString(r, "tenant_id", "")
	if tenantID == "" {
		httputil.WriteBadRequest(w, "tenant_id is required")
		return
	}

	res := TenantResource(tenantID)
	if wsID := httputil.ParseQueryString(r, "workspace_id", ""); wsID != "" {
		res.WorkspaceID = &wsID
	}
	if teamID := httputil.ParseQueryString(r, "team_id", ""); teamID != "" {
		res.TeamID = &teamID
	}

	uc, err := h.builder.BuildUserContext(r.Context(), userID)
	if err != nil {
		if IsNotFound(err) {
			httputil.WriteNotFoundError(w, err.Error())
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id": userID,
		"roles":   EffectiveRoles(uc, res),
	})
}

type checkRequest struct {
	UserID      string  `json:"user_id"`
	Action      Action  `json:"action"`
	TenantID    string  `json:"tenant_id"`
	WorkspaceID *string `json:"workspace_id,omitempty"`
	TeamID      *string `json:"team_id,omitempty"`
	Goal        *Goal   `json:"goal,omitempty"`
}

// Check evaluates an authorization decision without side effects beyond the
// usual decision metrics and denial audit entries.
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRoleManager(w, r); !ok {
		return
	}

	var req checkRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == "" {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}

	uc, err := h.builder.BuildUserContext(r.Context(), req.UserID)
	if err != nil {
		if IsNotFound(err) {
			httputil.WriteNotFoundError(w, err.Error())
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	res := ResourceContext{
		TenantID:    req.TenantID,
		WorkspaceID: req.WorkspaceID,
		TeamID:      req.TeamID,
	}
	if req.Goal != nil {
		cfg, err := h.store.GetTenantConfig(r.Context(), req.Goal.TenantID)
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
		res = GoalResource(req.Goal, cfg)
	}

	decision, err := h.engine.Authorize(r.Context(), uc, req.Action, res)
	if err != nil {
		if errors.Is(err, ErrMissingTenantID) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, decision)
}

// SweepExpired removes expired role assignments immediately instead of
// waiting for the background sweeper.
func (h *Handlers) SweepExpired(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r)
	if p == nil {
		httputil.WriteUnauthorized(w, "caller identity required")
		return
	}

	uc, err := h.builder.BuildUserContext(r.Context(), p.UserID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if !uc.IsSuperuser {
		httputil.WriteForbidden(w, "superuser required")
		return
	}

	removed, err := h.assignments.SweepExpired(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"removed": removed})
}

// SearchAudit queries the audit trail.
func (h *Handlers) SearchAudit(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRoleManager(w, r); !ok {
		return
	}
	if h.auditSearch == nil {
		httputil.WriteNotFoundError(w, "audit search is not configured")
		return
	}

	filter := audit.SearchFilter{
		ActorUserID: httputil.ParseQueryString(r, "actor_user_id", ""),
		TargetType:  audit.TargetType(httputil.ParseQueryString(r, "target_type", "")),
		TargetID:    httputil.ParseQueryString(r, "target_id", ""),
		TenantID:    httputil.ParseQueryString(r, "tenant_id", ""),
	}
	if et := httputil.ParseQueryString(r, "event_type", ""); et != "" {
		filter.EventTypes = []audit.EventType{audit.EventType(et)}
	}
	if limit, err := httputil.ParseQueryInt(r, "limit", 0); err == nil && limit > 0 {
		filter.Limit = limit
	}
	if offset, err := httputil.ParseQueryInt(r, "offset", 0); err == nil && offset > 0 {
		filter.Offset = offset
	}

	entries, err := h.auditSearch.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"entries": entries})
}

func writeAssignmentError(w http.ResponseWriter, err error) {
	switch {
	case IsNotFound(err):
		httputil.WriteNotFoundError(w, err.Error())
	case IsBoundaryViolation(err):
		httputil.WriteForbidden(w, err.Error())
	default:
		httputil.WriteBadRequest(w, err.Error())
	}
}
