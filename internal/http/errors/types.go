package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError define la estructura estándar para errores de la API.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"` // No se serializa, usado para el header
	Err        error  `json:"-"` // Error original (causa), útil para logs
}

// Error implementa la interfaz error
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap permite acceder al error original
func (e *AppError) Unwrap() error {
	return e.Err
}

// New crea un nuevo AppError
func New(status int, code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
	}
}

// Wrap crea un AppError envolviendo un error existente
func Wrap(err error, status int, code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
		Err:        err,
	}
}

// FromError intenta convertir un error genérico en un AppError.
// Si no es un AppError, devuelve un error interno genérico conservando el error original.
func FromError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServerError.WithCause(err)
}

// WithDetail devuelve una COPIA del error con detalle.
func (e *AppError) WithDetail(detail string) *AppError {
	newErr := *e
	newErr.Detail = detail
	return &newErr
}

// WithCause devuelve una COPIA del error con la causa.
func (e *AppError) WithCause(err error) *AppError {
	newErr := *e
	newErr.Err = err
	return &newErr
}

// =================================================================================
// LISTA DE ERRORES PREDEFINIDOS
// =================================================================================

// ---------------------------------------------------------------------------------
// 400 Bad Request - Errores de Cliente / Validación
// ---------------------------------------------------------------------------------

var (
	ErrInvalidJSON = &AppError{
		Code:       "INVALID_JSON",
		Message:    "El cuerpo de la solicitud no es un JSON válido.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrMissingFields = &AppError{
		Code:       "MISSING_FIELDS",
		Message:    "Faltan campos requeridos en la solicitud.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidSession = &AppError{
		Code:       "INVALID_SID",
		Message:    "El session identifier no es válido.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrUnknownIssuer = &AppError{
		Code:       "UNKNOWN_ISSUER",
		Message:    "El issuer no está registrado.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrIssuerMismatch = &AppError{
		Code:       "ISSUER_MISMATCH",
		Message:    "El session identifier no pertenece al issuer indicado.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrHardExpiryOutOfPolicy = &AppError{
		Code:       "HARD_EXPIRY_OUT_OF_POLICY",
		Message:    "El hard expiry está fuera de la política de la constitución.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidTimeout = &AppError{
		Code:       "INVALID_INTERACTIVITY_TIMEOUT",
		Message:    "El interactivity timeout debe ser de al menos un segundo.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrBodyTooLarge = &AppError{
		Code:       "BODY_TOO_LARGE",
		Message:    "El cuerpo de la solicitud excede el tamaño máximo permitido.",
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}

	ErrUnsupportedMediaType = &AppError{
		Code:       "UNSUPPORTED_MEDIA_TYPE",
		Message:    "Content-Type no soportado.",
		HTTPStatus: http.StatusUnsupportedMediaType,
	}
)

// ---------------------------------------------------------------------------------
// 401 Unauthorized
// ---------------------------------------------------------------------------------

var ErrUnauthorized = &AppError{
	Code:       "UNAUTHORIZED",
	Message:    "Credenciales de administración inválidas o ausentes.",
	HTTPStatus: http.StatusUnauthorized,
}

// ---------------------------------------------------------------------------------
// 404 / 405 / 406
// ---------------------------------------------------------------------------------

var (
	ErrSessionNotFound = &AppError{
		Code:       "SID_NOT_FOUND",
		Message:    "No hay una validity key vigente para el session identifier.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrRouteNotFound = &AppError{
		Code:       "ROUTE_NOT_FOUND",
		Message:    "La ruta solicitada no existe.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrMethodNotAllowed = &AppError{
		Code:       "METHOD_NOT_ALLOWED",
		Message:    "El método HTTP no está permitido para este recurso.",
		HTTPStatus: http.StatusMethodNotAllowed,
	}

	ErrNotAcceptable = &AppError{
		Code:       "NOT_ACCEPTABLE",
		Message:    "No se puede producir una representación aceptable.",
		HTTPStatus: http.StatusNotAcceptable,
	}
)

// ---------------------------------------------------------------------------------
// 409 Conflict
// ---------------------------------------------------------------------------------

var (
	ErrIssuerOwnedByOther = &AppError{
		Code:       "ISSUER_OWNED_BY_OTHER",
		Message:    "El issuer ya está registrado por otro participante.",
		HTTPStatus: http.StatusConflict,
	}

	ErrNotLeader = &AppError{
		Code:       "NOT_LEADER",
		Message:    "Este nodo no es el líder del cluster.",
		HTTPStatus: http.StatusConflict,
	}

	ErrSessionInvalidated = &AppError{
		Code:       "SID_INVALIDATED",
		Message:    "El session identifier fue invalidado.",
		HTTPStatus: http.StatusConflict,
	}
)

// ---------------------------------------------------------------------------------
// 410 Gone
// ---------------------------------------------------------------------------------

var ErrSessionExpired = &AppError{
	Code:       "SID_EXPIRED",
	Message:    "El session identifier ya expiró.",
	HTTPStatus: http.StatusGone,
}

// ---------------------------------------------------------------------------------
// 5xx Server Errors
// ---------------------------------------------------------------------------------

var (
	ErrInternalServerError = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Ocurrió un error inesperado en el servidor.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrServiceUnavailable = &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "El servicio no está disponible temporalmente.",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	ErrReplicaHalted = &AppError{
		Code:       "REPLICA_HALTED",
		Message:    "La réplica dejó de aplicar el log por un error fatal.",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	ErrGatewayTimeout = &AppError{
		Code:       "CONSENSUS_TIMEOUT",
		Message:    "El cluster no confirmó la operación a tiempo.",
		HTTPStatus: http.StatusGatewayTimeout,
	}
)
