package validity

import (
	"bytes"
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/dropDatabas3/dtva/internal/codec"
	"github.com/stretchr/testify/require"
)

func TestValidityKey_RoundTrip(t *testing.T) {
	keys := []ValidityKey{
		NewValidityKey(t0.Add(time.Hour), 0, NoSpan, 42),
		NewValidityKey(t0.Add(time.Hour), 3, SpanOf(15*time.Minute), 0),
		NewValidityKey(t0, 1, SpanOf(0), math.MaxInt64),
		NewValidityKey(time.Unix(-5, 0), 0, NoSpan, -1),
	}
	for _, k := range keys {
		raw, err := EncodeKey(k)
		require.NoError(t, err)
		got, err := DecodeKey(raw)
		require.NoError(t, err)
		require.Equal(t, k, got)

		again, err := EncodeKey(got)
		require.NoError(t, err)
		require.True(t, bytes.Equal(raw, again))
	}
}

func TestValidityKey_WireShape(t *testing.T) {
	k := NewValidityKey(time.Unix(100, 0), 2, NoSpan, 7)
	raw, err := EncodeKey(k)
	require.NoError(t, err)
	diag, err := codec.Diagnose(raw)
	require.NoError(t, err)
	require.Equal(t, "[100, 2, null, 7]", diag)

	k = NewValidityKey(time.Unix(100, 0), 2, SpanOf(90*time.Second), 7)
	raw, err = EncodeKey(k)
	require.NoError(t, err)
	diag, err = codec.Diagnose(raw)
	require.NoError(t, err)
	require.Equal(t, "[100, 2, 90, 7]", diag)
}

func TestValidityKey_TruncatesToSeconds(t *testing.T) {
	k := NewValidityKey(t0.Add(1500*time.Millisecond), 0, SpanOf(2500*time.Millisecond), 1)
	require.Equal(t, t0.Add(time.Second), k.HardExpiryAt())
	require.Equal(t, 2*time.Second, k.InteractivityTimeout().Duration)
}

func TestDecodeKey_Malformed(t *testing.T) {
	cases := map[string]any{
		"three elements":  []int64{1, 2, 3},
		"five elements":   []int64{1, 2, 3, 4, 5},
		"timeout is text": []any{int64(1), int64(2), "soon", int64(4)},
		"not an array":    "key",
	}
	for name, v := range cases {
		raw, err := codec.Marshal(v)
		require.NoError(t, err, name)
		_, err = DecodeKey(raw)
		if !errors.Is(err, ErrMalformedKey) {
			t.Fatalf("%s: expected ErrMalformedKey, got %v", name, err)
		}
	}
}

func TestValidityKey_SortKeyMatchesCompare(t *testing.T) {
	keys := []ValidityKey{
		NewValidityKey(time.Unix(10, 0), 1, NoSpan, 5),
		NewValidityKey(time.Unix(10, 0), 1, SpanOf(0), 5),
		NewValidityKey(time.Unix(10, 0), 0, SpanOf(time.Minute), -3),
		NewValidityKey(time.Unix(-10, 0), 4, NoSpan, 0),
		NewValidityKey(time.Unix(10, 0), 0, SpanOf(time.Minute), 9),
		NewValidityKey(time.Unix(9, 0), 7, SpanOf(time.Hour), math.MinInt64),
	}
	byCompare := slices.Clone(keys)
	slices.SortFunc(byCompare, ValidityKey.Compare)
	byBytes := slices.Clone(keys)
	slices.SortFunc(byBytes, func(a, b ValidityKey) int { return bytes.Compare(a.sortKey(), b.sortKey()) })
	require.Equal(t, byCompare, byBytes)
	require.Equal(t, time.Unix(-10, 0).UTC(), byCompare[0].HardExpiryAt())
}

func TestValidityKey_AbsentAndZeroTimeoutAreDistinct(t *testing.T) {
	a := NewValidityKey(t0, 0, NoSpan, 1)
	b := NewValidityKey(t0, 0, SpanOf(0), 1)
	require.NotEqual(t, a, b)
	require.Equal(t, -1, a.Compare(b))
}
