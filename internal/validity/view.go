package validity

import (
	"fmt"
	"time"
)

// ViewKind es el tag de la unión de vistas.
type ViewKind uint8

const (
	ViewActive ViewKind = iota + 1
	ViewExpired
	ViewInvalidated
	ViewGrace
)

func (k ViewKind) String() string {
	switch k {
	case ViewActive:
		return "active"
	case ViewExpired:
		return "expired"
	case ViewInvalidated:
		return "invalidated"
	case ViewGrace:
		return "grace"
	default:
		return "unknown"
	}
}

// View es la proyección de solo lectura de una clave evaluada en un instante.
// Se calcula, nunca se almacena.
type View struct {
	kind           ViewKind
	key            ValidityKey
	issuer         Issuer
	evaluatedAt    time.Time
	lastModifiedAt time.Time
	transitionAt   time.Time
	invalidatedAt  time.Time
}

func newView(kind ViewKind, key ValidityKey, issuer Issuer, evaluatedAt time.Time) (View, error) {
	if evaluatedAt.After(key.HardExpiryAt()) {
		return View{}, fmt.Errorf("%w: key %s at %s", ErrEvaluatedAfterExpiry, key, evaluatedAt.UTC().Format(time.RFC3339))
	}
	return View{kind: kind, key: key, issuer: issuer, evaluatedAt: evaluatedAt}, nil
}

func newActiveView(key ValidityKey, issuer Issuer, lastActivityAt, evaluatedAt time.Time) (View, error) {
	v, err := newView(ViewActive, key, issuer, evaluatedAt)
	if err != nil {
		return View{}, err
	}
	v.lastModifiedAt = lastActivityAt
	v.transitionAt = key.HardExpiryAt()
	if ito := key.InteractivityTimeout(); ito.Valid {
		if deadline := lastActivityAt.Add(ito.Duration); deadline.Before(v.transitionAt) {
			v.transitionAt = deadline
		}
	}
	return v, nil
}

func newExpiredView(key ValidityKey, issuer Issuer, lastActivityAt, evaluatedAt time.Time) (View, error) {
	v, err := newView(ViewExpired, key, issuer, evaluatedAt)
	if err != nil {
		return View{}, err
	}
	v.lastModifiedAt = lastActivityAt
	v.transitionAt = key.HardExpiryAt()
	return v, nil
}

func newInvalidatedView(key ValidityKey, issuer Issuer, invalidatedAt, evaluatedAt time.Time) (View, error) {
	v, err := newView(ViewInvalidated, key, issuer, evaluatedAt)
	if err != nil {
		return View{}, err
	}
	v.lastModifiedAt = invalidatedAt
	v.invalidatedAt = invalidatedAt
	v.transitionAt = invalidatedAt
	return v, nil
}

// NewGraceView construye la vista sintética de una registración todavía no
// confirmada por consenso. Requiere un grace cutoff y que evaluatedAt no lo supere.
func NewGraceView(sid SessionIdentifier, issuer Issuer, evaluatedAt time.Time) (View, error) {
	grace, ok := sid.ConsensusGrace()
	if !ok {
		return View{}, ErrGraceRequired
	}
	if evaluatedAt.After(grace) {
		return View{}, fmt.Errorf("%w: evaluation is after consensus grace", ErrGraceRequired)
	}
	v, err := newView(ViewGrace, sid.Key(), issuer, evaluatedAt)
	if err != nil {
		return View{}, err
	}
	v.lastModifiedAt = evaluatedAt
	v.transitionAt = grace
	return v, nil
}

func (v View) Kind() ViewKind         { return v.kind }
func (v View) StateName() string      { return v.kind.String() }
func (v View) Key() ValidityKey       { return v.key }
func (v View) Issuer() Issuer         { return v.issuer }
func (v View) EvaluatedAt() time.Time { return v.evaluatedAt }

func (v View) HardExpiryAt() time.Time          { return v.key.HardExpiryAt() }
func (v View) InteractivityTimeout() Span       { return v.key.InteractivityTimeout() }
func (v View) LastModifiedAt() time.Time        { return v.lastModifiedAt }
func (v View) ScheduledTransitionAt() time.Time { return v.transitionAt }

func (v View) IsActive() bool      { return v.kind == ViewActive || v.kind == ViewGrace }
func (v View) IsExpired() bool     { return v.kind == ViewExpired }
func (v View) IsInvalidated() bool { return v.kind == ViewInvalidated }

func (v View) InvalidatedAt() (time.Time, bool) {
	return v.invalidatedAt, v.kind == ViewInvalidated
}

// UntilNextTransition es cero para vistas invalidadas (terminales).
func (v View) UntilNextTransition() time.Duration {
	if v.kind == ViewInvalidated {
		return 0
	}
	return nonNegative(v.transitionAt.Sub(v.evaluatedAt))
}

func (v View) UntilHardExpiry() time.Duration {
	return nonNegative(v.HardExpiryAt().Sub(v.evaluatedAt))
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
