package tenants

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/strideworks/stride/pkg/authz"
	"github.com/strideworks/stride/pkg/httputil"
	"github.com/strideworks/stride/pkg/middleware"
)

// Handlers exposes tenant, workspace and team management over HTTP.
type Handlers struct {
	service    *Service
	authzStore *authz.Store
}

// NewHandlers creates the HTTP handlers.
func NewHandlers(service *Service, authzStore *authz.Store) *Handlers {
	return &Handlers{service: service, authzStore: authzStore}
}

// RegisterRoutes registers tenant management routes on the router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/tenants", h.CreateTenant).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{id}", h.GetTenant).Methods(http.MethodGet)
	r.HandleFunc("/tenants/{id}", h.RenameTenant).Methods(http.MethodPut)
	r.HandleFunc("/tenants/{id}/config", h.GetTenantConfig).Methods(http.MethodGet)
	r.HandleFunc("/tenants/{id}/config", h.UpdateTenantConfig).Methods(http.MethodPut)
	r.HandleFunc("/tenants/{id}/workspaces", h.CreateWorkspace).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{id}/workspaces", h.ListWorkspaces).Methods(http.MethodGet)
	r.HandleFunc("/workspaces/{id}", h.DeleteWorkspace).Methods(http.MethodDelete)
	r.HandleFunc("/workspaces/{id}/teams", h.CreateTeam).Methods(http.MethodPost)
	r.HandleFunc("/workspaces/{id}/teams", h.ListTeams).Methods(http.MethodGet)
	r.HandleFunc("/teams/{id}", h.DeleteTeam).Methods(http.MethodDelete)
}

func callerFromRequest(r *http.Request) (Caller, bool) {
	p := middleware.GetPrincipal(r)
	if p == nil {
		return Caller{}, false
	}
	return Caller{UserID: p.UserID, TenantID: p.TenantID}, true
}

// writeServiceError maps service errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case authz.IsNotFound(err):
		httputil.WriteNotFoundError(w, err.Error())
	case authz.IsBoundaryViolation(err):
		httputil.WriteForbidden(w, err.Error())
	default:
		if _, ok := authz.IsDenied(err); ok {
			httputil.WriteForbidden(w, err.Error())
			return
		}
		httputil.WriteBadRequest(w, err.Error())
	}
}

type createTenantRequest struct {
	Name        string `json:"name"`
	OwnerUserID string `json:"owner_user_id"`
}

// CreateTenant handles POST /tenants.
func (h *Handlers) CreateTenant(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	var req createTenantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	t, err := h.service.CreateTenant(r.Context(), caller, req.Name, req.OwnerUserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, t)
}

// GetTenant handles GET /tenants/{id}.
func (h *Handlers) GetTenant(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	t, err := h.service.GetTenant(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, t)
}

type renameTenantRequest struct {
	Name string `json:"name"`
}

// RenameTenant handles PUT /tenants/{id}.
func (h *Handlers) RenameTenant(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	var req renameTenantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := h.service.RenameTenant(r.Context(), caller, mux.Vars(r)["id"], req.Name); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// GetTenantConfig handles GET /tenants/{id}/config.
func (h *Handlers) GetTenantConfig(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	cfg, err := h.service.GetTenantConfig(r.Context(), caller, h.authzStore, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, cfg)
}

// UpdateTenantConfig handles PUT /tenants/{id}/config.
func (h *Handlers) UpdateTenantConfig(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	var cfg authz.TenantConfig
	if !httputil.ParseJSONOrError(w, r, &cfg) {
		return
	}
	cfg.ID = mux.Vars(r)["id"]
	if err := h.service.UpdateTenantConfig(r.Context(), caller, h.authzStore, &cfg); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

type createScopeRequest struct {
	Name string `json:"name"`
}

// CreateWorkspace handles POST /tenants/{id}/workspaces.
func (h *Handlers) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	var req createScopeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	ws, err := h.service.CreateWorkspace(r.Context(), caller, mux.Vars(r)["id"], req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, ws)
}

// ListWorkspaces handles GET /tenants/{id}/workspaces.
func (h *Handlers) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	workspaces, err := h.service.ListWorkspaces(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"workspaces": workspaces})
}

// DeleteWorkspace handles DELETE /workspaces/{id}.
func (h *Handlers) DeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if err := h.service.DeleteWorkspace(r.Context(), caller, mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// CreateTeam handles POST /workspaces/{id}/teams.
func (h *Handlers) CreateTeam(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	var req createScopeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	team, err := h.service.CreateTeam(r.Context(), caller, mux.Vars(r)["id"], req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, team)
}

// ListTeams handles GET /workspaces/{id}/teams.
func (h *Handlers) ListTeams(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	teams, err := h.service.ListTeams(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"teams": teams})
}

// DeleteTeam handles DELETE /teams/{id}.
func (h *Handlers) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if err := h.service.DeleteTeam(r.Context(), caller, mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
