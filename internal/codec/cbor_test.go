package codec

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

type pair struct {
	_     struct{} `cbor:",toarray"`
	Name  string
	Value *int64
}

func TestMarshal_Deterministic(t *testing.T) {
	a, err := Marshal(map[string]int{"b": 2, "a": 1, "c": 3})
	require.NoError(t, err)
	b, err := Marshal(map[string]int{"c": 3, "a": 1, "b": 2})
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestMarshal_NilSliceIsEmptyArray(t *testing.T) {
	var s []int
	out, err := Marshal(s)
	require.NoError(t, err)
	require.Equal(t, []byte{0x80}, out)
}

func TestToArray_NullPointer(t *testing.T) {
	out, err := Marshal(pair{Name: "x"})
	require.NoError(t, err)

	diag, err := Diagnose(out)
	require.NoError(t, err)
	require.Equal(t, `["x", null]`, diag)

	var got pair
	require.NoError(t, Unmarshal(out, &got))
	require.Equal(t, "x", got.Name)
	require.Nil(t, got.Value)
}

func TestToArray_WrongLengthFails(t *testing.T) {
	out, err := Marshal([]any{"x", 1, 2})
	require.NoError(t, err)

	var got pair
	require.Error(t, Unmarshal(out, &got))
}

func TestUnmarshal_TrailingBytesFail(t *testing.T) {
	out, err := Marshal(1)
	require.NoError(t, err)
	out = append(out, 0x01)

	var v int
	require.Error(t, Unmarshal(out, &v))
}

func TestDecoder_Sequence(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for i := 0; i < 3; i++ {
		require.NoError(t, enc.Encode(i))
	}

	dec := NewDecoder(&buf)
	var got []int
	for {
		var v int
		err := dec.Decode(&v)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, v)
	}
	require.Equal(t, []int{0, 1, 2}, got)
}
