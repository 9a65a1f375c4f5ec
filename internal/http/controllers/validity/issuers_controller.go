package validity

import (
	"net/http"
	"time"

	"github.com/dropDatabas3/dtva/internal/coordinator"
	dto "github.com/dropDatabas3/dtva/internal/http/dto/validity"
	httperrors "github.com/dropDatabas3/dtva/internal/http/errors"
	"github.com/dropDatabas3/dtva/internal/http/helpers"
	"github.com/dropDatabas3/dtva/internal/observability/logger"
	domain "github.com/dropDatabas3/dtva/internal/validity"
)

// IssuersController maneja /v1/issuers.
type IssuersController struct {
	coord *coordinator.Coordinator
}

func NewIssuersController(coord *coordinator.Coordinator) *IssuersController {
	return &IssuersController{coord: coord}
}

// List maneja GET /v1/issuers: los nombres en orden de registro.
func (c *IssuersController) List(w http.ResponseWriter, r *http.Request) {
	now := c.coord.Now()
	names := coordinator.Query(c.coord, now, func(v domain.StateView) []string {
		issuers := v.Issuers()
		out := make([]string, 0, len(issuers))
		for _, iss := range issuers {
			out = append(out, iss.Name)
		}
		return out
	})

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", now.Add(time.Minute).UTC().Format(http.TimeFormat))
	helpers.Write(w, r, http.StatusOK, names)
}

// Register maneja POST /v1/issuers.
func (c *IssuersController) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("IssuersController.Register"))

	var req dto.RegisterIssuerRequest
	if !helpers.ReadBody(w, r, &req) {
		return
	}

	out, err := c.coord.RegisterIssuer(ctx, req.Issuer)
	if err != nil {
		writeError(w, log, err)
		return
	}

	resp := dto.IssuerResponse{Issuer: req.Issuer, Status: out.Status.String()}
	switch out.Status {
	case coordinator.IssuerOwnedBySelf:
		resp.Issuer = out.Issuer.Name
		resp.Owner = out.Owner.Name()
		helpers.Write(w, r, http.StatusOK, resp)
	case coordinator.IssuerOwnedByOther:
		log.Info("issuer owned by another participant", logger.Issuer(out.Issuer.Name))
		httperrors.WriteError(w, httperrors.ErrIssuerOwnedByOther.WithDetail("owner: "+out.Owner.Name()))
	default:
		w.Header().Set("Location", "/v1/issuers")
		helpers.Write(w, r, http.StatusAccepted, resp)
	}
}
