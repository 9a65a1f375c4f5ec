package validity

import (
	"time"
)

// Record guarda los hechos temporales de una clave. Nunca se muta: Updated e
// Invalidated devuelven un Record nuevo, de modo que los snapshots pueden
// compartirse entre lectores sin locks.
type Record struct {
	destructionAt   time.Time
	span            Span
	lastActivityAt  time.Time
	invalidatedAt   time.Time
	invalidated     bool
	dynamicExpiryAt time.Time
}

// NewRecord crea el registro de una clave recién registrada en createdAt.
func NewRecord(destructionAt, createdAt time.Time, span Span) (Record, error) {
	destructionAt = truncSeconds(destructionAt)
	createdAt = truncSeconds(createdAt)
	dyn, err := dynamicExpiry(span, createdAt, destructionAt)
	if err != nil {
		return Record{}, err
	}
	return Record{
		destructionAt:   destructionAt,
		span:            span,
		lastActivityAt:  createdAt,
		dynamicExpiryAt: dyn,
	}, nil
}

func dynamicExpiry(span Span, lastActivity, destructionAt time.Time) (time.Time, error) {
	if !span.Valid {
		return destructionAt, nil
	}
	if span.Duration <= 0 {
		return time.Time{}, ErrInvalidSpan
	}
	inactive := lastActivity.Add(span.Duration)
	if inactive.Before(destructionAt) {
		return inactive, nil
	}
	return destructionAt, nil
}

func (r Record) DestructionAt() time.Time   { return r.destructionAt }
func (r Record) InactivitySpan() Span       { return r.span }
func (r Record) LastActivityAt() time.Time  { return r.lastActivityAt }
func (r Record) DynamicExpiryAt() time.Time { return r.dynamicExpiryAt }

func (r Record) InvalidatedAt() (time.Time, bool) {
	return r.invalidatedAt, r.invalidated
}

func (r Record) isDestroyed(now time.Time) bool { return now.After(r.destructionAt) }
func (r Record) isExpired(now time.Time) bool   { return now.After(r.dynamicExpiryAt) }

func (r Record) isInvalidatedAt(now time.Time) bool {
	return r.invalidated && now.After(r.invalidatedAt)
}

func (r Record) finished(now time.Time) bool {
	return r.isDestroyed(now) || r.isExpired(now) || r.invalidated
}

// Updated registra actividad en now. Devuelve false (no aplicado) si la
// clave ya fue destruida, expiró o fue invalidada.
func (r Record) Updated(now time.Time) (Record, bool) {
	now = truncSeconds(now)
	if r.finished(now) {
		return r, false
	}
	next := r
	next.lastActivityAt = now
	// span ya fue validado al construir el record
	next.dynamicExpiryAt, _ = dynamicExpiry(r.span, now, r.destructionAt)
	return next, true
}

// Invalidated marca la invalidación en now. Es permanente: una segunda
// llamada devuelve false sin modificar nada.
func (r Record) Invalidated(now time.Time) (Record, bool) {
	now = truncSeconds(now)
	if r.finished(now) {
		return r, false
	}
	next := r
	next.invalidatedAt = now
	next.invalidated = true
	return next, true
}

// withInvalidatedAt restaura una invalidación leída de un snapshot, sin guardas.
func (r Record) withInvalidatedAt(at time.Time) Record {
	r.invalidatedAt = truncSeconds(at)
	r.invalidated = true
	return r
}

// ToView clasifica el record en now. Devuelve false si la clave ya fue
// destruida (now > destructionAt): consultar una clave destruida es "no
// encontrada", no un error.
func (r Record) ToView(now time.Time, issuer Issuer, key ValidityKey) (View, bool) {
	if r.isDestroyed(now) {
		return View{}, false
	}
	var (
		v   View
		err error
	)
	switch {
	case r.isInvalidatedAt(now):
		v, err = newInvalidatedView(key, issuer, r.invalidatedAt, now)
	case r.isExpired(now):
		v, err = newExpiredView(key, issuer, r.lastActivityAt, now)
	default:
		v, err = newActiveView(key, issuer, r.lastActivityAt, now)
	}
	if err != nil {
		// la destrucción se chequeó arriba y destructionAt == hard expiry
		return View{}, false
	}
	return v, true
}
