package validity

import (
	"fmt"
	"time"

	"github.com/dropDatabas3/dtva/internal/codec"
)

type participantWire struct {
	_             struct{} `cbor:",toarray"`
	DisplayName   *string
	Identifier    []byte
	IsTokenIssuer bool
}

type constitutionWire struct {
	_              struct{} `cbor:",toarray"`
	MaxSessionSecs int64
	Participants   []participantWire
}

type issuerWire struct {
	_           struct{} `cbor:",toarray"`
	Name        string
	Participant int64
}

type recordWire struct {
	_             struct{} `cbor:",toarray"`
	Key           ValidityKey
	LastActivity  int64
	InvalidatedAt *int64
}

type stateWire struct {
	_            struct{} `cbor:",toarray"`
	Constitution constitutionWire
	Issuers      []issuerWire
	Records      []recordWire
}

func encodeConstitution(c Constitution) constitutionWire {
	w := constitutionWire{
		MaxSessionSecs: int64(c.maxHardExpiryIn / time.Second),
		Participants:   make([]participantWire, 0, len(c.participants)),
	}
	for _, p := range c.participants {
		pw := participantWire{Identifier: p.Identifier, IsTokenIssuer: p.IsTokenIssuer}
		if p.HasName {
			name := p.DisplayName
			pw.DisplayName = &name
		}
		if pw.Identifier == nil {
			pw.Identifier = []byte{}
		}
		w.Participants = append(w.Participants, pw)
	}
	return w
}

func decodeConstitution(w constitutionWire) Constitution {
	participants := make([]Participant, 0, len(w.Participants))
	for _, pw := range w.Participants {
		p := Participant{Identifier: pw.Identifier, IsTokenIssuer: pw.IsTokenIssuer}
		if pw.DisplayName != nil {
			p.DisplayName = *pw.DisplayName
			p.HasName = true
		}
		participants = append(participants, p)
	}
	return NewConstitution(participants, time.Duration(w.MaxSessionSecs)*time.Second)
}

// SerializeState codifica [constitution, issuers, records]. Los records van
// en orden de clave, así que dos estados lógicamente iguales producen los mismos bytes.
func SerializeState(s *State) ([]byte, error) {
	w := stateWire{
		Constitution: encodeConstitution(s.constitution),
		Issuers:      make([]issuerWire, 0, len(s.issuers)),
		Records:      make([]recordWire, 0, s.keys.Len()),
	}
	for _, iss := range s.issuers {
		w.Issuers = append(w.Issuers, issuerWire{Name: iss.Name, Participant: int64(iss.ParticipantIndex)})
	}
	for k, r := range s.keys.All() {
		rw := recordWire{Key: k, LastActivity: r.lastActivityAt.Unix()}
		if at, ok := r.InvalidatedAt(); ok {
			secs := at.Unix()
			rw.InvalidatedAt = &secs
		}
		w.Records = append(w.Records, rw)
	}
	out, err := codec.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("serialize state: %w", err)
	}
	return out, nil
}

// DeserializeState reconstruye un snapshot equivalente al codificado: cada
// record se rehace desde la clave y lastActivity, y luego se restaura la
// invalidación si existe.
func DeserializeState(data []byte) (*State, error) {
	var w stateWire
	if err := codec.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	if w.Constitution.MaxSessionSecs < 0 {
		return nil, fmt.Errorf("%w: negative max session duration", ErrMalformedState)
	}

	s := newState(decodeConstitution(w.Constitution))
	s.issuers = make([]Issuer, 0, len(w.Issuers))
	for i, iw := range w.Issuers {
		if _, ok := s.constitution.Participant(int(iw.Participant)); !ok {
			return nil, fmt.Errorf("%w: issuer %q bound to unknown participant %d", ErrMalformedState, iw.Name, iw.Participant)
		}
		if _, dup := s.issuerByName[iw.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate issuer %q", ErrMalformedState, iw.Name)
		}
		s.issuers = append(s.issuers, Issuer{Name: iw.Name, Index: i, ParticipantIndex: int(iw.Participant)})
		s.issuerByName[iw.Name] = i
	}

	txn := s.keys.txn()
	for _, rw := range w.Records {
		k := rw.Key
		if idx := k.IssuerIndex(); idx < 0 || idx >= len(s.issuers) {
			return nil, fmt.Errorf("%w: key %s references unknown issuer", ErrMalformedState, k)
		}
		rec, err := NewRecord(k.HardExpiryAt(), unixTime(rw.LastActivity), k.InteractivityTimeout())
		if err != nil {
			return nil, fmt.Errorf("%w: key %s: %v", ErrMalformedState, k, err)
		}
		if rw.InvalidatedAt != nil {
			rec = rec.withInvalidatedAt(unixTime(*rw.InvalidatedAt))
		}
		if !txn.InsertIfAbsent(k, rec) {
			return nil, fmt.Errorf("%w: duplicate key %s", ErrMalformedState, k)
		}
	}
	s.keys = txn.Commit()
	return s, nil
}
