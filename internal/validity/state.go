package validity

import (
	"iter"
	"slices"
	"time"
)

// State es un snapshot inmutable de todo el estado replicado. Solo Apply y
// DeserializeState producen snapshots; no hay camino de escritura sobre uno existente.
type State struct {
	constitution Constitution
	keys         keyMap
	issuers      []Issuer
	issuerByName map[string]int
}

func newState(c Constitution) *State {
	return &State{
		constitution: c,
		keys:         newKeyMap(),
		issuerByName: map[string]int{},
	}
}

func (s *State) Constitution() Constitution { return s.constitution }

// Issuers devuelve una copia de la lista de issuers en orden de índice.
func (s *State) Issuers() []Issuer { return slices.Clone(s.issuers) }

func (s *State) IssuerByName(name string) (Issuer, bool) {
	i, ok := s.issuerByName[name]
	if !ok {
		return Issuer{}, false
	}
	return s.issuers[i], true
}

func (s *State) IssuerAt(index int) (Issuer, bool) {
	if index < 0 || index >= len(s.issuers) {
		return Issuer{}, false
	}
	return s.issuers[index], true
}

// IssuingParticipant resuelve el participante dueño de un issuer.
func (s *State) IssuingParticipant(iss Issuer) (Participant, bool) {
	return s.constitution.Participant(iss.ParticipantIndex)
}

// KeyCount es la cantidad de claves almacenadas, incluidas las ya expiradas
// que todavía no pasaron por GC.
func (s *State) KeyCount() int { return s.keys.Len() }

// Record devuelve el record crudo de una clave.
func (s *State) Record(k ValidityKey) (Record, bool) { return s.keys.Get(k) }

// ViewValidityKey evalúa una clave en now. Una clave cuyo hard expiry es
// anterior o igual a now se considera destruida.
func (s *State) ViewValidityKey(now time.Time, k ValidityKey) (View, bool) {
	if !k.HardExpiryAt().After(now) {
		return View{}, false
	}
	r, ok := s.keys.Get(k)
	if !ok {
		return View{}, false
	}
	return s.toView(now, k, r)
}

// ViewValidityKeys recorre las vistas de todas las claves vivas en now.
// La secuencia se puede recorrer varias veces; cada pasada es nueva.
func (s *State) ViewValidityKeys(now time.Time) iter.Seq[View] {
	return func(yield func(View) bool) {
		for k, r := range s.keys.All() {
			if !k.HardExpiryAt().After(now) {
				continue
			}
			v, ok := s.toView(now, k, r)
			if !ok {
				continue
			}
			if !yield(v) {
				return
			}
		}
	}
}

// ViewInvalidatedValidityKeys recorre solo las vistas invalidadas en now.
func (s *State) ViewInvalidatedValidityKeys(now time.Time) iter.Seq[View] {
	return func(yield func(View) bool) {
		for v := range s.ViewValidityKeys(now) {
			if !v.IsInvalidated() {
				continue
			}
			if !yield(v) {
				return
			}
		}
	}
}

func (s *State) toView(now time.Time, k ValidityKey, r Record) (View, bool) {
	iss, ok := s.IssuerAt(k.IssuerIndex())
	if !ok {
		return View{}, false
	}
	return r.ToView(now, iss, k)
}

// At liga el snapshot a un instante de evaluación.
func (s *State) At(now time.Time) StateView {
	return StateView{state: s, now: now}
}

// StateView es un State evaluado en un instante fijo.
type StateView struct {
	state *State
	now   time.Time
}

func (v StateView) EvaluatedAt() time.Time     { return v.now }
func (v StateView) State() *State              { return v.state }
func (v StateView) Constitution() Constitution { return v.state.Constitution() }
func (v StateView) Issuers() []Issuer          { return v.state.Issuers() }

func (v StateView) IssuerByName(name string) (Issuer, bool) {
	return v.state.IssuerByName(name)
}

func (v StateView) ViewValidityKey(k ValidityKey) (View, bool) {
	return v.state.ViewValidityKey(v.now, k)
}

func (v StateView) ViewValidityKeys() iter.Seq[View] {
	return v.state.ViewValidityKeys(v.now)
}

func (v StateView) ViewInvalidatedValidityKeys() iter.Seq[View] {
	return v.state.ViewInvalidatedValidityKeys(v.now)
}
