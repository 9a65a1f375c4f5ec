// Package validity contiene los DTOs de issuers y session identifiers.
// Los tags json sirven también para CBOR.
package validity

// Tiempos en epoch seconds; duraciones en segundos.

// CreateRequest es el body de POST /v1/validity.
type CreateRequest struct {
	Issuer               string `json:"iss"`
	HardExpiryAt         *int64 `json:"sexp"`
	InteractivityTimeout *int64 `json:"interactivity_timeout,omitempty"`
}

// RegisterIssuerRequest es el body de POST /v1/issuers.
type RegisterIssuerRequest struct {
	Issuer string `json:"iss"`
}

// IssuerResponse describe un issuer registrado.
type IssuerResponse struct {
	Issuer string `json:"iss"`
	Owner  string `json:"owner"`
	Status string `json:"status"`
}

// SessionView es la representación de una vista.
type SessionView struct {
	HardExpiryAt          int64  `json:"sexp"`
	Sid                   string `json:"sid"`
	Issuer                string `json:"iss"`
	InteractivityTimeout  *int64 `json:"interactivity_timeout,omitempty"`
	State                 string `json:"state"`
	ScheduledTransitionAt int64  `json:"scheduled_transition_at"`
	LastModifiedAt        int64  `json:"last_modified_at"`
	InvalidatedAt         *int64 `json:"invalidated_at,omitempty"`
}

// PendingResponse acompaña un 202: la operación todavía no se ve en el estado.
type PendingResponse struct {
	Sid      string `json:"sid,omitempty"`
	Location string `json:"location,omitempty"`
	Status   string `json:"status"`
}

// DigestResponse es el body de GET /v1/state/digest.
type DigestResponse struct {
	Digest        string `json:"digest"`
	AppliedIndex  uint64 `json:"applied_index"`
	ConsensusTime int64  `json:"consensus_time"`
	Keys          int    `json:"keys"`
	Issuers       int    `json:"issuers"`
}
