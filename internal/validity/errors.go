package validity

import "errors"

// Errores fatales: indican un log corrupto o un error de programación.
// Una réplica que los encuentra no debe seguir aplicando transacciones.
var (
	ErrMalformedKey         = errors.New("malformed validity key")
	ErrMalformedTransaction = errors.New("malformed transaction")
	ErrUnknownTransaction   = errors.New("unknown transaction type")
	ErrMalformedState       = errors.New("malformed state snapshot")
	ErrMalformedSession     = errors.New("malformed session identifier")
	ErrEvaluatedAfterExpiry = errors.New("view evaluated after hard expiry")
	ErrGraceRequired        = errors.New("consensus grace is required for a grace view")
)

// Errores de validación de entrada.
var (
	ErrInvalidSpan    = errors.New("inactivity span must be positive")
	ErrInvalidGenesis = errors.New("invalid genesis configuration")
)
