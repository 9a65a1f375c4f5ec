package validity

import (
	"errors"
	"testing"
	"time"

	"github.com/dropDatabas3/dtva/internal/codec"
	"github.com/stretchr/testify/require"
)

func TestTransactions_RoundTrip(t *testing.T) {
	k := NewValidityKey(t0.Add(time.Hour), 1, SpanOf(time.Minute), 9)
	txs := []Transaction{
		RegisterIssuerTx("acme"),
		RegisterValidityKeyTx(k),
		UpdateInteractivityTx(k),
		InvalidateTx(k),
	}
	raw, err := SerializeTransactions(txs)
	require.NoError(t, err)

	got, err := ParseTransactions(raw)
	require.NoError(t, err)
	require.Equal(t, txs, got)
}

func TestTransactions_WireShape(t *testing.T) {
	raw, err := SerializeTransactions([]Transaction{
		RegisterIssuerTx("acme"),
		InvalidateTx(NewValidityKey(time.Unix(100, 0), 0, NoSpan, 5)),
	})
	require.NoError(t, err)

	first, rest, err := codec.DiagnoseFirst(raw)
	require.NoError(t, err)
	require.Equal(t, `[0, "acme"]`, first)
	second, rest, err := codec.DiagnoseFirst(rest)
	require.NoError(t, err)
	require.Equal(t, `[3, [100, 0, null, 5]]`, second)
	require.Empty(t, rest)
}

func TestParseTransactions_Empty(t *testing.T) {
	got, err := ParseTransactions(nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestParseTransactions_UnknownOrdinalIsFatal(t *testing.T) {
	raw, err := codec.Marshal([]any{uint64(4), "x"})
	require.NoError(t, err)
	_, err = ParseTransactions(raw)
	if !errors.Is(err, ErrUnknownTransaction) {
		t.Fatalf("expected ErrUnknownTransaction, got %v", err)
	}
}

func TestParseTransactions_Malformed(t *testing.T) {
	good, err := SerializeTransactions([]Transaction{RegisterIssuerTx("acme")})
	require.NoError(t, err)

	cases := map[string][]byte{
		"truncated":     good[:len(good)-1],
		"three fields":  mustMarshal(t, []any{uint64(0), "a", "b"}),
		"name not text": mustMarshal(t, []any{uint64(0), int64(5)}),
		"bad key":       mustMarshal(t, []any{uint64(1), []int64{1, 2}}),
		"not an array":  mustMarshal(t, "tx"),
	}
	for name, raw := range cases {
		got, err := ParseTransactions(raw)
		require.Error(t, err, name)
		require.Nil(t, got, name)
		if !errors.Is(err, ErrMalformedTransaction) && !errors.Is(err, ErrMalformedKey) {
			t.Fatalf("%s: unexpected error class: %v", name, err)
		}
	}
}

func TestTransaction_MarshalUnknownKind(t *testing.T) {
	_, err := SerializeTransactions([]Transaction{{Kind: TxKind(9)}})
	require.ErrorIs(t, err, ErrUnknownTransaction)
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	out, err := codec.Marshal(v)
	require.NoError(t, err)
	return out
}
