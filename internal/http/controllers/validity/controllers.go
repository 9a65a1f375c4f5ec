// Package validity contiene los controllers de issuers, session identifiers
// y digest del estado.
package validity

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dropDatabas3/dtva/internal/cluster"
	"github.com/dropDatabas3/dtva/internal/coordinator"
	dto "github.com/dropDatabas3/dtva/internal/http/dto/validity"
	httperrors "github.com/dropDatabas3/dtva/internal/http/errors"
	"github.com/dropDatabas3/dtva/internal/http/helpers"
	"github.com/dropDatabas3/dtva/internal/observability/logger"
	domain "github.com/dropDatabas3/dtva/internal/validity"
	"go.uber.org/zap"
)

// Controllers agrupa los controllers del API de validez.
type Controllers struct {
	Issuers  *IssuersController
	Sessions *SessionsController
	State    *StateController
}

// NewControllers crea todos los controllers sobre el mismo coordinator.
func NewControllers(coord *coordinator.Coordinator, replica ReplicaInfo) *Controllers {
	return &Controllers{
		Issuers:  NewIssuersController(coord),
		Sessions: NewSessionsController(coord),
		State:    NewStateController(coord, replica),
	}
}

// mapError traduce errores del coordinator y del cluster al catálogo HTTP.
func mapError(err error) *httperrors.AppError {
	var appErr *httperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, coordinator.ErrUnknownIssuer):
		return httperrors.ErrUnknownIssuer.WithDetail(err.Error())
	case errors.Is(err, coordinator.ErrInvalidIssuerName):
		return httperrors.ErrMissingFields.WithDetail("iss is required")
	case errors.Is(err, coordinator.ErrHardExpiryOutOfPolicy):
		return httperrors.ErrHardExpiryOutOfPolicy.WithDetail(err.Error())
	case errors.Is(err, coordinator.ErrInvalidTimeout):
		return httperrors.ErrInvalidTimeout
	case errors.Is(err, cluster.ErrNotLeader):
		return httperrors.ErrNotLeader.WithCause(err)
	case errors.Is(err, cluster.ErrHalted):
		return httperrors.ErrReplicaHalted.WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return httperrors.ErrGatewayTimeout.WithCause(err)
	case errors.Is(err, context.Canceled):
		return httperrors.ErrServiceUnavailable.WithCause(err)
	default:
		return httperrors.ErrInternalServerError.WithCause(err)
	}
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	appErr := mapError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		log.Error("request failed", logger.Err(err), logger.Status(appErr.HTTPStatus))
	} else {
		log.Debug("request rejected", logger.Err(err), logger.Status(appErr.HTTPStatus))
	}
	httperrors.WriteError(w, appErr)
}

func toSessionView(v domain.View, sid domain.SessionIdentifier) dto.SessionView {
	out := dto.SessionView{
		HardExpiryAt:          v.HardExpiryAt().Unix(),
		Sid:                   sid.String(),
		Issuer:                v.Issuer().Name,
		State:                 v.StateName(),
		ScheduledTransitionAt: v.ScheduledTransitionAt().Unix(),
		LastModifiedAt:        v.LastModifiedAt().Unix(),
	}
	if ito := v.InteractivityTimeout(); ito.Valid {
		secs := int64(ito.Duration / time.Second)
		out.InteractivityTimeout = &secs
	}
	if at, ok := v.InvalidatedAt(); ok {
		secs := at.Unix()
		out.InvalidatedAt = &secs
	}
	return out
}

// writeView escribe la vista con Last-Modified y Expires (hard expiry).
func writeView(w http.ResponseWriter, r *http.Request, status int, v domain.View, sid domain.SessionIdentifier) {
	helpers.SetValidityHeaders(w, v.LastModifiedAt(), v.HardExpiryAt())
	helpers.Write(w, r, status, toSessionView(v, sid))
}

func sessionLocation(sid domain.SessionIdentifier) string {
	return "/v1/validity/" + sid.String()
}
