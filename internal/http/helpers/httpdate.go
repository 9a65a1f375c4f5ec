package helpers

import (
	"net/http"
	"time"
)

// SetValidityHeaders fija Last-Modified y Expires (fechas HTTP en GMT).
func SetValidityHeaders(w http.ResponseWriter, lastModified, expires time.Time) {
	if !lastModified.IsZero() {
		w.Header().Set("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
	}
	if !expires.IsZero() {
		w.Header().Set("Expires", expires.UTC().Format(http.TimeFormat))
	}
}
