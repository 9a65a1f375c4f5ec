package validity

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Digest es un hash BLAKE3 keyed del estado serializado. Dos réplicas que
// aplicaron el mismo log tienen el mismo digest.
type Digest [32]byte

var stateDomainKey = [32]byte{
	'd', 't', 'v', 'a', '.', 's', 't', 'a', 't', 'e', 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// DigestBytes hashea una serialización ya calculada.
func DigestBytes(stateBytes []byte) Digest {
	// NewKeyed solo falla con una clave de largo distinto de 32.
	h, err := blake3.NewKeyed(stateDomainKey[:])
	if err != nil {
		panic("validity: blake3 keyed init: " + err.Error())
	}
	h.Write(stateBytes)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// DigestState serializa s y devuelve su digest.
func DigestState(s *State) (Digest, error) {
	raw, err := SerializeState(s)
	if err != nil {
		return Digest{}, err
	}
	return DigestBytes(raw), nil
}

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// ParseDigest acepta la forma hex de 64 caracteres.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("parse digest: %w", err)
	}
	if len(raw) != len(d) {
		return d, fmt.Errorf("digest is %d bytes, want %d", len(raw), len(d))
	}
	copy(d[:], raw)
	return d, nil
}
