package validity

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/dtva/internal/coordinator"
	dto "github.com/dropDatabas3/dtva/internal/http/dto/validity"
	httperrors "github.com/dropDatabas3/dtva/internal/http/errors"
	"github.com/dropDatabas3/dtva/internal/http/helpers"
	"github.com/dropDatabas3/dtva/internal/observability/logger"
	domain "github.com/dropDatabas3/dtva/internal/validity"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SessionsController maneja /v1/validity.
type SessionsController struct {
	coord *coordinator.Coordinator
}

func NewSessionsController(coord *coordinator.Coordinator) *SessionsController {
	return &SessionsController{coord: coord}
}

// Create maneja POST /v1/validity. 201 si la clave ya está activa en el
// estado local, 202 con Location si todavía no se ve.
func (c *SessionsController) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("SessionsController.Create"))

	var req dto.CreateRequest
	if !helpers.ReadBody(w, r, &req) {
		return
	}
	req.Issuer = strings.TrimSpace(req.Issuer)
	if req.Issuer == "" || req.HardExpiryAt == nil {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("iss and sexp are required"))
		return
	}
	timeout := domain.NoSpan
	if req.InteractivityTimeout != nil {
		timeout = domain.SpanOf(time.Duration(*req.InteractivityTimeout) * time.Second)
	}

	sid, err := c.coord.RegisterValidityKey(ctx, time.Unix(*req.HardExpiryAt, 0), req.Issuer, timeout)
	if err != nil {
		writeError(w, log, err)
		return
	}

	loc := sessionLocation(sid)
	w.Header().Set("Location", loc)
	view, res, err := c.coord.Resolve(c.coord.Now(), sid)
	if err == nil && res == coordinator.Found && view.IsActive() {
		log.Debug("validity key created", logger.Issuer(req.Issuer))
		writeView(w, r, http.StatusCreated, view, sid)
		return
	}
	helpers.Write(w, r, http.StatusAccepted, dto.PendingResponse{Sid: sid.String(), Location: loc, Status: "pending"})
}

// Find maneja GET /v1/validity?sid=&iss=: redirige a la URL del sid si existe.
func (c *SessionsController) Find(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("SessionsController.Find"))

	sid, iss, ok := querySid(w, r)
	if !ok {
		return
	}
	view, res, err := c.coord.Resolve(c.coord.Now(), sid)
	if err != nil {
		writeError(w, log, err)
		return
	}
	if res == coordinator.NotFound {
		httperrors.WriteError(w, httperrors.ErrSessionNotFound)
		return
	}
	if view.Issuer().Name != iss {
		httperrors.WriteError(w, httperrors.ErrIssuerMismatch)
		return
	}
	http.Redirect(w, r, sessionLocation(sid), http.StatusPermanentRedirect)
}

// Get maneja GET /v1/validity/{sid}.
func (c *SessionsController) Get(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("SessionsController.Get"))

	sid, ok := pathSid(w, r)
	if !ok {
		return
	}
	view, res, err := c.coord.Resolve(c.coord.Now(), sid)
	if err != nil {
		writeError(w, log, err)
		return
	}
	if res == coordinator.NotFound {
		httperrors.WriteError(w, httperrors.ErrSessionNotFound)
		return
	}
	writeView(w, r, http.StatusOK, view, sid)
}

// Touch maneja POST /v1/validity/{sid}: señal de interactividad.
func (c *SessionsController) Touch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("SessionsController.Touch"))

	sid, ok := pathSid(w, r)
	if !ok {
		return
	}
	if !c.known(w, log, sid) {
		return
	}
	sent, err := c.coord.SendInteractivity(ctx, sid.Key())
	if !c.submitted(w, log, err) {
		return
	}
	if !sent {
		log.Debug("interactivity debounced", logger.Sid(sid.String()))
	}

	view, res, err := c.coord.Resolve(c.coord.Now(), sid)
	if err != nil {
		writeError(w, log, err)
		return
	}
	switch {
	case res == coordinator.NotFound:
		httperrors.WriteError(w, httperrors.ErrSessionNotFound)
	case res == coordinator.InGrace:
		writeView(w, r, http.StatusAccepted, view, sid)
	case view.IsExpired():
		httperrors.WriteError(w, httperrors.ErrSessionExpired.WithDetail(sid.String()))
	case view.IsInvalidated():
		httperrors.WriteError(w, httperrors.ErrSessionInvalidated.WithDetail(sid.String()))
	default:
		writeView(w, r, http.StatusOK, view, sid)
	}
}

// Invalidate maneja DELETE /v1/validity/{sid}.
func (c *SessionsController) Invalidate(w http.ResponseWriter, r *http.Request) {
	sid, ok := pathSid(w, r)
	if !ok {
		return
	}
	c.invalidate(w, r, sid)
}

// InvalidateByIssuer maneja DELETE /v1/validity?sid=&iss=. El issuer tiene
// que coincidir con el del sid.
func (c *SessionsController) InvalidateByIssuer(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("SessionsController.InvalidateByIssuer"))

	sid, iss, ok := querySid(w, r)
	if !ok {
		return
	}
	issuer := coordinator.Query(c.coord, c.coord.Now(), func(v domain.StateView) *domain.Issuer {
		if i, ok := v.State().IssuerAt(sid.Key().IssuerIndex()); ok {
			return &i
		}
		return nil
	})
	if issuer == nil {
		writeError(w, log, coordinator.ErrUnknownIssuer)
		return
	}
	if issuer.Name != iss {
		httperrors.WriteError(w, httperrors.ErrIssuerMismatch)
		return
	}
	c.invalidate(w, r, sid)
}

func (c *SessionsController) invalidate(w http.ResponseWriter, r *http.Request, sid domain.SessionIdentifier) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("SessionsController.Invalidate"))

	if !c.known(w, log, sid) {
		return
	}
	if !c.submitted(w, log, c.coord.SendInvalidation(ctx, sid.Key())) {
		return
	}

	view, res, err := c.coord.Resolve(c.coord.Now(), sid)
	if err != nil {
		writeError(w, log, err)
		return
	}
	switch {
	case res == coordinator.NotFound:
		httperrors.WriteError(w, httperrors.ErrSessionNotFound)
	case res == coordinator.Found && view.IsExpired():
		writeView(w, r, http.StatusOK, view, sid)
	default:
		writeView(w, r, http.StatusAccepted, view, sid)
	}
}

// known escribe 404 (o el error de Resolve) si el sid no existe ni está en grace.
func (c *SessionsController) known(w http.ResponseWriter, log *zap.Logger, sid domain.SessionIdentifier) bool {
	_, res, err := c.coord.Resolve(c.coord.Now(), sid)
	if err != nil {
		writeError(w, log, err)
		return false
	}
	if res == coordinator.NotFound {
		httperrors.WriteError(w, httperrors.ErrSessionNotFound)
		return false
	}
	return true
}

// submitted tolera un deadline vencido: la transacción puede confirmarse
// después y la respuesta refleja el estado local.
func (c *SessionsController) submitted(w http.ResponseWriter, log *zap.Logger, err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warn("transaction not confirmed in time", logger.Err(err))
		return true
	}
	writeError(w, log, err)
	return false
}

func pathSid(w http.ResponseWriter, r *http.Request) (domain.SessionIdentifier, bool) {
	sid, err := domain.ParseSessionIdentifier(chi.URLParam(r, "sid"))
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidSession.WithDetail(err.Error()))
		return domain.SessionIdentifier{}, false
	}
	return sid, true
}

func querySid(w http.ResponseWriter, r *http.Request) (domain.SessionIdentifier, string, bool) {
	q := r.URL.Query()
	raw, iss := strings.TrimSpace(q.Get("sid")), strings.TrimSpace(q.Get("iss"))
	if raw == "" || iss == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("sid and iss are required"))
		return domain.SessionIdentifier{}, "", false
	}
	sid, err := domain.ParseSessionIdentifier(raw)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidSession.WithDetail(err.Error()))
		return domain.SessionIdentifier{}, "", false
	}
	return sid, iss, true
}
