package middlewares

import (
	"net/http"
	"net/url"
	"strings"

	httperrors "github.com/dropDatabas3/dtva/internal/http/errors"
	appmetrics "github.com/dropDatabas3/dtva/internal/metrics"
)

// LeaderInfo es lo que el middleware necesita saber del cluster.
type LeaderInfo interface {
	IsLeader() bool
	LeaderID() string
}

// RequireLeader asegura que las escrituras se ejecuten en el líder.
// Comportamiento:
//   - Si no hay cluster o el nodo es líder => pasa.
//   - Si es follower => 409 Conflict con header X-Leader.
//   - Si el cliente pide redirect (X-Leader-Redirect: 1 o ?leader_redirect=1)
//     y hay URL configurada para el líder => 307.
func RequireLeader(cluster LeaderInfo, leaderRedirects map[string]string) Middleware {
	// allowlist de hosts para redirects
	allowlist := make(map[string]struct{})
	for _, base := range leaderRedirects {
		if host := extractHost(base); host != "" {
			allowlist[strings.ToLower(host)] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			default:
				next.ServeHTTP(w, r)
				return
			}
			if cluster == nil || cluster.IsLeader() {
				next.ServeHTTP(w, r)
				return
			}

			leaderID := cluster.LeaderID()
			if leaderID != "" {
				w.Header().Set("X-Leader", leaderID)
			}

			wantsRedirect := strings.TrimSpace(r.Header.Get("X-Leader-Redirect")) == "1" ||
				strings.TrimSpace(r.URL.Query().Get("leader_redirect")) == "1"

			if wantsRedirect && leaderID != "" {
				if loc, base, ok := leaderLocation(leaderRedirects[leaderID], allowlist, r); ok {
					appmetrics.LeaderRejects.WithLabelValues("redirect").Inc()
					w.Header().Set("X-Leader-URL", base)
					w.Header().Set("Location", loc)
					w.WriteHeader(http.StatusTemporaryRedirect)
					return
				}
			}

			appmetrics.LeaderRejects.WithLabelValues("conflict").Inc()
			httperrors.WriteError(w, httperrors.ErrNotLeader.WithDetail("this node is a follower, not the leader"))
		})
	}
}

func leaderLocation(base string, allowlist map[string]struct{}, r *http.Request) (string, string, bool) {
	base = strings.TrimSpace(base)
	if base == "" || strings.Contains(base, " ") {
		return "", "", false
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", "", false
	}
	if _, ok := allowlist[strings.ToLower(u.Host)]; !ok {
		return "", "", false
	}
	base = strings.TrimRight(base, "/")
	return base + r.URL.RequestURI(), base, true
}

// extractHost extrae el host:port de una URL.
func extractHost(raw string) string {
	if i := strings.Index(raw, "://"); i >= 0 {
		raw = raw[i+3:]
	}
	if j := strings.Index(raw, "/"); j >= 0 {
		raw = raw[:j]
	}
	return raw
}
