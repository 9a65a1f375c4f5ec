package middlewares

import (
	"crypto/subtle"
	"net/http"
	"strings"

	httperrors "github.com/dropDatabas3/dtva/internal/http/errors"
)

// AdminKeyHeader lleva la API key de administración.
const AdminKeyHeader = "X-Admin-API-Key"

// RequireAdminKey protege rutas de administración con una API key estática.
// Sin key configurada las rutas quedan deshabilitadas (503).
func RequireAdminKey(key string) Middleware {
	key = strings.TrimSpace(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithDetail("admin api disabled"))
				return
			}
			got := strings.TrimSpace(r.Header.Get(AdminKeyHeader))
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				httperrors.WriteError(w, httperrors.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
