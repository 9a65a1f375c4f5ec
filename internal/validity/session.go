package validity

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/dropDatabas3/dtva/internal/codec"
)

// SessionIdentifier es el token opaco que recibe el cliente: la clave más un
// grace cutoff opcional. Mientras el grace no venza, una clave todavía no
// confirmada por consenso se reporta activa.
type SessionIdentifier struct {
	key       ValidityKey
	graceSecs int64
	hasGrace  bool
}

// NewSessionIdentifier construye un sid sin grace.
func NewSessionIdentifier(k ValidityKey) SessionIdentifier {
	return SessionIdentifier{key: k}
}

// NewSessionIdentifierWithGrace construye un sid con grace cutoff (truncado a segundos).
func NewSessionIdentifierWithGrace(k ValidityKey, grace time.Time) SessionIdentifier {
	return SessionIdentifier{key: k, graceSecs: grace.Unix(), hasGrace: true}
}

func (s SessionIdentifier) Key() ValidityKey { return s.key }

func (s SessionIdentifier) ConsensusGrace() (time.Time, bool) {
	if !s.hasGrace {
		return time.Time{}, false
	}
	return unixTime(s.graceSecs), true
}

// WithoutGrace devuelve el mismo sid sin grace; es la forma canónica una vez
// que la clave quedó registrada.
func (s SessionIdentifier) WithoutGrace() SessionIdentifier {
	return SessionIdentifier{key: s.key}
}

// IsInGrace es true si hay grace y now es estrictamente anterior al cutoff.
func (s SessionIdentifier) IsInGrace(now time.Time) bool {
	grace, ok := s.ConsensusGrace()
	return ok && now.Before(grace)
}

// GraceView es un atajo de NewGraceView.
func (s SessionIdentifier) GraceView(now time.Time, issuer Issuer) (View, error) {
	return NewGraceView(s, issuer, now)
}

type sessionWire struct {
	_     struct{} `cbor:",toarray"`
	Key   ValidityKey
	Grace *int64
}

func (s SessionIdentifier) MarshalCBOR() ([]byte, error) {
	w := sessionWire{Key: s.key}
	if s.hasGrace {
		g := s.graceSecs
		w.Grace = &g
	}
	return codec.Marshal(w)
}

func (s *SessionIdentifier) UnmarshalCBOR(data []byte) error {
	var w sessionWire
	if err := codec.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSession, err)
	}
	*s = SessionIdentifier{key: w.Key}
	if w.Grace != nil {
		s.graceSecs = *w.Grace
		s.hasGrace = true
	}
	return nil
}

// Encode devuelve la forma textual: CBOR en base64url sin padding.
func (s SessionIdentifier) Encode() (string, error) {
	raw, err := s.MarshalCBOR()
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// String es Encode sin error; un sid siempre se puede codificar.
func (s SessionIdentifier) String() string {
	out, err := s.Encode()
	if err != nil {
		return "<invalid sid>"
	}
	return out
}

// ParseSessionIdentifier decodifica la forma textual.
func ParseSessionIdentifier(text string) (SessionIdentifier, error) {
	raw, err := base64.RawURLEncoding.DecodeString(text)
	if err != nil {
		return SessionIdentifier{}, fmt.Errorf("%w: %v", ErrMalformedSession, err)
	}
	var s SessionIdentifier
	if err := s.UnmarshalCBOR(raw); err != nil {
		return SessionIdentifier{}, err
	}
	return s, nil
}
