package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/strideworks/stride/pkg/httputil"
	"github.com/strideworks/stride/pkg/observability"
)

// Recovery converts handler panics into 500 responses. The stack goes to the
// structured log, never to the client.
func Recovery(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if logger != nil {
						logger.WithFields(map[string]interface{}{
							"panic": rec,
							"path":  r.URL.Path,
							"stack": string(debug.Stack()),
						}).Error("panic in http handler")
					}
					httputil.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
