// Package codec centraliza la configuración CBOR usada por todos los
// formatos binarios replicados (transacciones, snapshots, session ids).
//
// El encoder usa Core Deterministic Encoding (RFC 8949 §4.2): enteros en su
// forma más corta, sin items de largo indefinido y mapas ordenados. Dos réplicas
// que codifican el mismo estado lógico producen los mismos bytes.
package codec

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Slices nil se emiten como arrays vacíos: el formato de estado no admite null
	// en posiciones de lista.
	encOptions.NilContainers = cbor.NilContainerAsEmpty
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		IndefLength:      cbor.IndefLengthForbidden,
		MaxArrayElements: 1 << 24,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal codifica v en CBOR determinístico.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodifica exactamente un item CBOR en v.
// Bytes sobrantes después del item son un error.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder es un alias para no exponer fxamacker/cbor fuera de este paquete.
type Encoder = cbor.Encoder

// Decoder es un alias para no exponer fxamacker/cbor fuera de este paquete.
type Decoder = cbor.Decoder

// RawMessage es un valor CBOR ya codificado; sirve para diferir el decode
// de payloads cuyo tipo depende de otro campo.
type RawMessage = cbor.RawMessage

// NewEncoder devuelve un encoder de secuencias CBOR sobre w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder devuelve un decoder de secuencias CBOR sobre r.
// Decode devuelve io.EOF cuando no quedan items.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}

// Diagnose devuelve la notación de diagnóstico (RFC 8949 §8) de data.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}

// DiagnoseFirst devuelve la notación de diagnóstico del primer item y el resto.
func DiagnoseFirst(data []byte) (string, []byte, error) {
	return cbor.DiagnoseFirst(data)
}
