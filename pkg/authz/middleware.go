package authz

import (
	"context"
	"errors"
	"net/http"

	"github.com/strideworks/stride/pkg/httputil"
	"github.com/strideworks/stride/pkg/middleware"
)

type userContextKey struct{}

// WithUserContext attaches a resolved user context to the request context so
// downstream handlers can reuse it without rebuilding.
func WithUserContext(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, uc)
}

// GetUserContext returns the user context resolved by RequireAction, or nil.
func GetUserContext(r *http.Request) *UserContext {
	uc, _ := r.Context().Value(userContextKey{}).(*UserContext)
	return uc
}

// ResourceResolver derives the resource being accessed from the request.
type ResourceResolver func(r *http.Request) (ResourceContext, error)

// TenantFromPrincipal resolves the resource as the caller's own tenant.
func TenantFromPrincipal(r *http.Request) (ResourceContext, error) {
	p := middleware.GetPrincipal(r)
	if p == nil || p.TenantID == nil {
		return ResourceContext{}, ErrMissingTenantID
	}
	return TenantResource(*p.TenantID), nil
}

// Middleware gates HTTP handlers on authorization decisions.
type Middleware struct {
	engine  *Engine
	builder *ContextBuilder
}

// NewMiddleware creates authorization middleware backed by the given engine
// and context builder.
func NewMiddleware(engine *Engine, builder *ContextBuilder) *Middleware {
	return &Middleware{engine: engine, builder: builder}
}

// RequireAction wraps a handler so it only runs when the caller is allowed to
// perform the action on the resolved resource. The resolved user context is
// attached to the request for reuse.
func (m *Middleware) RequireAction(action Action, resolve ResourceResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := middleware.GetPrincipal(r)
			if p == nil {
				httputil.WriteUnauthorized(w, "caller identity required")
				return
			}

			uc, err := m.builder.BuildUserContext(r.Context(), p.UserID)
			if err != nil {
				if IsNotFound(err) {
					httputil.WriteUnauthorized(w, "unknown caller")
					return
				}
				httputil.WriteInternalError(w, err)
				return
			}

			res, err := resolve(r)
			if err != nil {
				httputil.WriteBadRequest(w, err.Error())
				return
			}

			decision, err := m.engine.Authorize(r.Context(), uc, action, res)
			if err != nil {
				if errors.Is(err, ErrMissingTenantID) {
					httputil.WriteBadRequest(w, err.Error())
					return
				}
				httputil.WriteInternalError(w, err)
				return
			}

			if !decision.Allowed {
				httputil.WriteJSON(w, http.StatusForbidden, map[string]interface{}{
					"error":  "forbidden",
					"reason": decision.Reason,
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserContext(r.Context(), uc)))
		})
	}
}
