package validity

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dropDatabas3/dtva/internal/codec"
)

// Span es una duración opcional con precisión de segundos.
// El valor cero representa "ausente".
type Span struct {
	Duration time.Duration
	Valid    bool
}

// SpanOf construye un Span presente truncado a segundos.
func SpanOf(d time.Duration) Span {
	return Span{Duration: d.Truncate(time.Second), Valid: true}
}

// NoSpan es el Span ausente.
var NoSpan = Span{}

func (s Span) seconds() int64 {
	if !s.Valid {
		return 0
	}
	return int64(s.Duration / time.Second)
}

func (s Span) String() string {
	if !s.Valid {
		return "none"
	}
	return s.Duration.String()
}

// ValidityKey identifica una regla de validez de tokens. Es inmutable y
// comparable con ==, por lo que puede usarse como clave de map.
type ValidityKey struct {
	hardExpiryAt int64 // epoch seconds
	issuerIndex  int64
	timeoutSecs  int64
	hasTimeout   bool
	nonce        int64
}

// NewValidityKey construye una clave. hardExpiryAt se trunca a segundos.
func NewValidityKey(hardExpiryAt time.Time, issuerIndex int, timeout Span, nonce int64) ValidityKey {
	return ValidityKey{
		hardExpiryAt: hardExpiryAt.Unix(),
		issuerIndex:  int64(issuerIndex),
		timeoutSecs:  timeout.seconds(),
		hasTimeout:   timeout.Valid,
		nonce:        nonce,
	}
}

func (k ValidityKey) HardExpiryAt() time.Time { return unixTime(k.hardExpiryAt) }
func (k ValidityKey) IssuerIndex() int        { return int(k.issuerIndex) }
func (k ValidityKey) Nonce() int64            { return k.nonce }

func (k ValidityKey) InteractivityTimeout() Span {
	if !k.hasTimeout {
		return NoSpan
	}
	return Span{Duration: time.Duration(k.timeoutSecs) * time.Second, Valid: true}
}

// Compare ordena por hard expiry, issuer, timeout (ausente = 0) y nonce; el
// empate final entre timeout ausente y cero va primero para el ausente.
func (k ValidityKey) Compare(o ValidityKey) int {
	if c := cmp.Compare(k.hardExpiryAt, o.hardExpiryAt); c != 0 {
		return c
	}
	if c := cmp.Compare(k.issuerIndex, o.issuerIndex); c != 0 {
		return c
	}
	if c := cmp.Compare(k.timeoutSecs, o.timeoutSecs); c != 0 {
		return c
	}
	if c := cmp.Compare(k.nonce, o.nonce); c != 0 {
		return c
	}
	switch {
	case k.hasTimeout == o.hasTimeout:
		return 0
	case !k.hasTimeout:
		return -1
	default:
		return 1
	}
}

func (k ValidityKey) String() string {
	return fmt.Sprintf("exp=%d iss=%d ito=%s nonce=%d", k.hardExpiryAt, k.issuerIndex, k.InteractivityTimeout(), k.nonce)
}

// sortKeyLen: cuatro int64 big-endian + un byte que distingue timeout ausente de cero.
const sortKeyLen = 33

// sortKey produce bytes cuyo orden lexicográfico coincide con Compare.
// El bit de signo se invierte para que los negativos queden antes.
func (k ValidityKey) sortKey() []byte {
	b := make([]byte, sortKeyLen)
	putOrdered(b[0:], k.hardExpiryAt)
	putOrdered(b[8:], k.issuerIndex)
	putOrdered(b[16:], k.timeoutSecs)
	putOrdered(b[24:], k.nonce)
	if k.hasTimeout {
		b[32] = 1
	}
	return b
}

// expiryPrefix devuelve el prefijo de sortKey para un hard expiry dado.
func expiryPrefix(secs int64) []byte {
	b := make([]byte, 8)
	putOrdered(b, secs)
	return b
}

func putOrdered(b []byte, v int64) {
	binary.BigEndian.PutUint64(b, uint64(v)^(1<<63))
}

// keyWire es la forma en el cable: [exp, issuer, timeout|null, nonce].
type keyWire struct {
	_          struct{} `cbor:",toarray"`
	HardExpiry int64
	Issuer     int64
	Timeout    *int64
	Nonce      int64
}

func (k ValidityKey) wire() keyWire {
	w := keyWire{HardExpiry: k.hardExpiryAt, Issuer: k.issuerIndex, Nonce: k.nonce}
	if k.hasTimeout {
		t := k.timeoutSecs
		w.Timeout = &t
	}
	return w
}

// MarshalCBOR implementa cbor.Marshaler.
func (k ValidityKey) MarshalCBOR() ([]byte, error) {
	return codec.Marshal(k.wire())
}

// UnmarshalCBOR implementa cbor.Unmarshaler. Cualquier forma distinta de
// un array de 4 elementos con timeout entero o null es ErrMalformedKey.
func (k *ValidityKey) UnmarshalCBOR(data []byte) error {
	var w keyWire
	if err := codec.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	*k = ValidityKey{
		hardExpiryAt: w.HardExpiry,
		issuerIndex:  w.Issuer,
		nonce:        w.Nonce,
	}
	if w.Timeout != nil {
		k.timeoutSecs = *w.Timeout
		k.hasTimeout = true
	}
	return nil
}

// EncodeKey devuelve la codificación CBOR de k.
func EncodeKey(k ValidityKey) ([]byte, error) {
	return k.MarshalCBOR()
}

// DecodeKey decodifica una clave desde exactamente un item CBOR.
func DecodeKey(data []byte) (ValidityKey, error) {
	var k ValidityKey
	if err := k.UnmarshalCBOR(data); err != nil {
		return ValidityKey{}, err
	}
	return k, nil
}

func unixTime(secs int64) time.Time {
	return time.Unix(secs, 0).UTC()
}

func truncSeconds(t time.Time) time.Time {
	return t.Truncate(time.Second).UTC()
}
