package validity

import (
	"bytes"
	"slices"
	"time"
)

// Participant es un miembro del consorcio declarado en la constitución.
type Participant struct {
	DisplayName   string // vacío si no tiene nombre
	HasName       bool
	Identifier    []byte
	IsTokenIssuer bool
}

// Equal compara por identificador, que es lo que identifica al participante en el consenso.
func (p Participant) Equal(o Participant) bool {
	return bytes.Equal(p.Identifier, o.Identifier)
}

// Name devuelve el display name o un fallback legible.
func (p Participant) Name() string {
	if p.HasName {
		return p.DisplayName
	}
	return "participant"
}

// Issuer es un nombre de emisor registrado. Index es estable: los issuers
// nunca se remueven ni se reindexan.
type Issuer struct {
	Name             string
	Index            int
	ParticipantIndex int
}

// Constitution contiene los datos de política fijados en génesis.
type Constitution struct {
	participants    []Participant
	maxHardExpiryIn time.Duration
}

// NewConstitution copia participants; la constitución es inmutable.
func NewConstitution(participants []Participant, maxHardExpiryIn time.Duration) Constitution {
	cp := make([]Participant, len(participants))
	for i, p := range participants {
		p.Identifier = slices.Clone(p.Identifier)
		cp[i] = p
	}
	return Constitution{participants: cp, maxHardExpiryIn: maxHardExpiryIn.Truncate(time.Second)}
}

// Participants devuelve una copia de la lista de participantes.
func (c Constitution) Participants() []Participant {
	return slices.Clone(c.participants)
}

func (c Constitution) Participant(i int) (Participant, bool) {
	if i < 0 || i >= len(c.participants) {
		return Participant{}, false
	}
	return c.participants[i], true
}

// ParticipantIndex busca un participante por identificador.
func (c Constitution) ParticipantIndex(identifier []byte) (int, bool) {
	for i, p := range c.participants {
		if bytes.Equal(p.Identifier, identifier) {
			return i, true
		}
	}
	return -1, false
}

func (c Constitution) MaxHardExpiryIn() time.Duration { return c.maxHardExpiryIn }
