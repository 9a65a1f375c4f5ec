// Package router arma el handler HTTP del servicio sobre chi.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	clusterctrl "github.com/dropDatabas3/dtva/internal/http/controllers/cluster"
	healthctrl "github.com/dropDatabas3/dtva/internal/http/controllers/health"
	validityctrl "github.com/dropDatabas3/dtva/internal/http/controllers/validity"
	httperrors "github.com/dropDatabas3/dtva/internal/http/errors"
	mw "github.com/dropDatabas3/dtva/internal/http/middlewares"
)

// Deps contiene las dependencias del router.
type Deps struct {
	Validity *validityctrl.Controllers
	Health   *healthctrl.HealthController

	// Admin es la administración del cluster, protegida por AdminKey.
	Admin    *clusterctrl.ClusterController
	AdminKey string

	// Cluster es opcional: sin cluster no se rechazan escrituras.
	Cluster         mw.LeaderInfo
	LeaderRedirects map[string]string

	// Gatherer expone /metrics; nil usa el registry global.
	Gatherer prometheus.Gatherer
}

// New construye el handler completo.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	registerHealthRoutes(r, deps)
	registerValidityRoutes(r, deps)
	registerClusterRoutes(r, deps)
	return r
}

// registerHealthRoutes: /readyz y /metrics sin logging (son muy frecuentes).
func registerHealthRoutes(r chi.Router, deps Deps) {
	r.Group(func(r chi.Router) {
		r.Use(mw.WithRecover(), mw.WithRequestID())
		if deps.Health != nil {
			r.Get("/readyz", deps.Health.Readyz)
		}
		g := deps.Gatherer
		if g == nil {
			g = prometheus.DefaultGatherer
		}
		r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	})
}

func registerValidityRoutes(r chi.Router, deps Deps) {
	c := deps.Validity
	if c == nil {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(
			mw.WithRecover(),
			mw.WithRequestID(),
			mw.WithMetrics(),
			mw.WithLogging(),
			mw.WithNoStore(),
		)
		if deps.Cluster != nil {
			r.Use(mw.RequireLeader(deps.Cluster, deps.LeaderRedirects))
		}

		r.Get("/v1/issuers", c.Issuers.List)
		r.Post("/v1/issuers", c.Issuers.Register)

		r.Post("/v1/validity", c.Sessions.Create)
		r.Get("/v1/validity", c.Sessions.Find)
		r.Delete("/v1/validity", c.Sessions.InvalidateByIssuer)
		r.Get("/v1/validity/{sid}", c.Sessions.Get)
		r.Post("/v1/validity/{sid}", c.Sessions.Touch)
		r.Delete("/v1/validity/{sid}", c.Sessions.Invalidate)

		r.Get("/v1/state/digest", c.State.Digest)
	})
}

func registerClusterRoutes(r chi.Router, deps Deps) {
	c := deps.Admin
	if c == nil {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(
			mw.WithRecover(),
			mw.WithRequestID(),
			mw.WithMetrics(),
			mw.WithLogging(),
			mw.WithNoStore(),
			mw.RequireAdminKey(deps.AdminKey),
		)

		r.Get("/v1/cluster/nodes", c.GetNodes)
		r.Get("/v1/cluster/stats", c.GetStats)
		// snapshot es local: cualquier nodo lo acepta
		r.Post("/v1/cluster/snapshot", c.Snapshot)

		// cambios de membresía solo en el líder
		r.Group(func(r chi.Router) {
			if deps.Cluster != nil {
				r.Use(mw.RequireLeader(deps.Cluster, deps.LeaderRedirects))
			}
			r.Post("/v1/cluster/nodes", c.AddNode)
			r.Delete("/v1/cluster/nodes/{id}", c.RemoveNode)
		})
	})
}
