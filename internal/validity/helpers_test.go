package validity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Unix(1_700_000_000, 0).UTC()

func peers() []PeerInfo {
	return []PeerInfo{
		{Nickname: "alpha", Identifier: []byte("node-a")},
		{Nickname: "beta", Identifier: []byte("node-b")},
	}
}

func genesis(t *testing.T) *State {
	t.Helper()
	return CreateInitialState(peers(), ConstitutionConfig{})
}

// withIssuer registra name a nombre del participante 0 y devuelve el estado nuevo.
func withIssuer(t *testing.T, s *State, name string) *State {
	t.Helper()
	next, rep := Apply(s, Batch{Submitter: 0, Transactions: []Transaction{RegisterIssuerTx(name)}}, t0)
	require.Equal(t, 1, rep.IssuersAdded)
	return next
}

func apply(t *testing.T, s *State, at time.Time, txs ...Transaction) *State {
	t.Helper()
	next, _ := Apply(s, Batch{Submitter: 0, Transactions: txs}, at)
	return next
}

func mustSerialize(t *testing.T, s *State) []byte {
	t.Helper()
	out, err := SerializeState(s)
	require.NoError(t, err)
	return out
}
