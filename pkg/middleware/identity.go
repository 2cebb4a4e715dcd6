package middleware

import (
	"context"
	"net/http"

	"github.com/strideworks/stride/pkg/httputil"
	"github.com/strideworks/stride/pkg/observability"
)

// Header names set by the authenticating gateway in front of this service.
const (
	HeaderUserID   = "X-Stride-User-ID"
	HeaderTenantID = "X-Stride-Tenant-ID"
)

// Principal is the authenticated caller identity. TenantID is nil for
// platform superusers, who act without a tenant affiliation.
type Principal struct {
	UserID   string
	TenantID *string
}

type principalKey struct{}

// WithPrincipal attaches the caller identity to the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// GetPrincipal returns the caller identity from the request, or nil when the
// request was not authenticated.
func GetPrincipal(r *http.Request) *Principal {
	p, _ := r.Context().Value(principalKey{}).(*Principal)
	return p
}

// IdentityMiddleware extracts the caller identity from gateway headers. The
// service sits behind an authenticating proxy; these headers are trusted
// because nothing else can reach this listener.
type IdentityMiddleware struct {
	optional bool
}

// NewIdentityMiddleware creates the middleware. When optional, unidentified
// requests pass through without a principal instead of getting a 401.
func NewIdentityMiddleware(optional bool) *IdentityMiddleware {
	return &IdentityMiddleware{optional: optional}
}

// Handler wraps an HTTP handler with identity extraction.
func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(HeaderUserID)
		if userID == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "caller identity required")
			return
		}

		p := &Principal{UserID: userID}
		if tenantID := r.Header.Get(HeaderTenantID); tenantID != "" {
			p.TenantID = &tenantID
		}

		ctx := WithPrincipal(r.Context(), p)
		ctx = observability.WithUserID(ctx, p.UserID)
		if p.TenantID != nil {
			ctx = observability.WithTenantID(ctx, *p.TenantID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
