package helpers

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/dtva/internal/validity"
)

// ETag arma un ETag fuerte a partir del digest del estado.
func ETag(d validity.Digest) string {
	return `"` + d.String() + `"`
}

// IfNoneMatch reporta si el cliente ya tiene etag (acepta "*" y listas).
func IfNoneMatch(r *http.Request, etag string) bool {
	v := strings.TrimSpace(r.Header.Get("If-None-Match"))
	if v == "" {
		return false
	}
	if v == "*" {
		return true
	}
	for _, part := range strings.Split(v, ",") {
		if strings.TrimPrefix(strings.TrimSpace(part), "W/") == etag {
			return true
		}
	}
	return false
}
