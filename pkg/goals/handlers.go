package goals

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/strideworks/stride/pkg/authz"
	"github.com/strideworks/stride/pkg/httputil"
	"github.com/strideworks/stride/pkg/middleware"
)

// Handlers exposes goal CRUD over HTTP.
type Handlers struct {
	service *Service
}

// NewHandlers creates the HTTP handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers goal routes on the router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/goals", h.CreateGoal).Methods(http.MethodPost)
	r.HandleFunc("/goals/{id}", h.GetGoal).Methods(http.MethodGet)
	r.HandleFunc("/goals/{id}", h.UpdateGoal).Methods(http.MethodPut)
	r.HandleFunc("/goals/{id}", h.DeleteGoal).Methods(http.MethodDelete)
	r.HandleFunc("/goals/{id}/publish", h.PublishGoal).Methods(http.MethodPost)
	r.HandleFunc("/goals/{id}/unpublish", h.UnpublishGoal).Methods(http.MethodPost)
	r.HandleFunc("/goals/{id}/checkin-requests", h.RequestCheckin).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{id}/goals", h.ListGoals).Methods(http.MethodGet)
	r.HandleFunc("/tenants/{id}/goals/export", h.ExportGoals).Methods(http.MethodGet)
}

func callerFromRequest(r *http.Request) (Caller, bool) {
	p := middleware.GetPrincipal(r)
	if p == nil {
		return Caller{}, false
	}
	return Caller{UserID: p.UserID, TenantID: p.TenantID}, true
}

// writeServiceError maps service errors onto HTTP status codes. Denials carry
// the decision reason so clients can distinguish a publish lock from a role
// gap.
func writeServiceError(w http.ResponseWriter, err error) {
	if de, ok := authz.IsDenied(err); ok {
		httputil.WriteJSON(w, http.StatusForbidden, map[string]string{
			"error":  "forbidden",
			"reason": string(de.Reason),
		})
		return
	}
	switch {
	case authz.IsNotFound(err):
		httputil.WriteNotFoundError(w, err.Error())
	case authz.IsBoundaryViolation(err):
		httputil.WriteForbidden(w, err.Error())
	default:
		httputil.WriteBadRequest(w, err.Error())
	}
}

// CreateGoal handles POST /goals.
func (h *Handlers) CreateGoal(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	var in CreateInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	g, err := h.service.CreateGoal(r.Context(), caller, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, g)
}

// GetGoal handles GET /goals/{id}.
func (h *Handlers) GetGoal(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	g, err := h.service.GetGoal(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, g)
}

// UpdateGoal handles PUT /goals/{id}.
func (h *Handlers) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	var in UpdateInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	g, err := h.service.UpdateGoal(r.Context(), caller, mux.Vars(r)["id"], in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, g)
}

// DeleteGoal handles DELETE /goals/{id}.
func (h *Handlers) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if err := h.service.DeleteGoal(r.Context(), caller, mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// PublishGoal handles POST /goals/{id}/publish.
func (h *Handlers) PublishGoal(w http.ResponseWriter, r *http.Request) {
	h.setPublished(w, r, true)
}

// UnpublishGoal handles POST /goals/{id}/unpublish.
func (h *Handlers) UnpublishGoal(w http.ResponseWriter, r *http.Request) {
	h.setPublished(w, r, false)
}

func (h *Handlers) setPublished(w http.ResponseWriter, r *http.Request, published bool) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	g, err := h.service.SetPublished(r.Context(), caller, mux.Vars(r)["id"], published)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, g)
}

// RequestCheckin handles POST /goals/{id}/checkin-requests.
func (h *Handlers) RequestCheckin(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	g, err := h.service.RequestCheckin(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"goal_id":  g.ID,
		"owner_id": g.OwnerID,
	})
}

// ListGoals handles GET /tenants/{id}/goals.
func (h *Handlers) ListGoals(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	goals, err := h.service.ListGoals(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"goals": goals})
}

// ExportGoals handles GET /tenants/{id}/goals/export.
func (h *Handlers) ExportGoals(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	goals, err := h.service.ExportGoals(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"goals": goals})
}
