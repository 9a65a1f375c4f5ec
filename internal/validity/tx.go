package validity

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/dropDatabas3/dtva/internal/codec"
)

// TxKind es el ordinal de cada tipo de transacción en el cable.
// Los valores son parte del formato: no renumerar sin un gate de versión.
type TxKind uint8

const (
	TxRegisterIssuer      TxKind = 0
	TxRegisterValidityKey TxKind = 1
	TxUpdateInteractivity TxKind = 2
	TxInvalidate          TxKind = 3
)

func (k TxKind) String() string {
	switch k {
	case TxRegisterIssuer:
		return "register_issuer"
	case TxRegisterValidityKey:
		return "register_validity_key"
	case TxUpdateInteractivity:
		return "update_interactivity"
	case TxInvalidate:
		return "invalidate"
	default:
		return fmt.Sprintf("tx(%d)", uint8(k))
	}
}

// Transaction es una variante cerrada: IssuerName se usa solo en
// TxRegisterIssuer y Key en las otras tres.
type Transaction struct {
	Kind       TxKind
	IssuerName string
	Key        ValidityKey
}

func RegisterIssuerTx(name string) Transaction {
	return Transaction{Kind: TxRegisterIssuer, IssuerName: name}
}

func RegisterValidityKeyTx(k ValidityKey) Transaction {
	return Transaction{Kind: TxRegisterValidityKey, Key: k}
}

func UpdateInteractivityTx(k ValidityKey) Transaction {
	return Transaction{Kind: TxUpdateInteractivity, Key: k}
}

func InvalidateTx(k ValidityKey) Transaction {
	return Transaction{Kind: TxInvalidate, Key: k}
}

type txWire struct {
	_       struct{} `cbor:",toarray"`
	Kind    uint64
	Payload codec.RawMessage
}

// MarshalCBOR codifica [ordinal, payload].
func (tx Transaction) MarshalCBOR() ([]byte, error) {
	var (
		payload []byte
		err     error
	)
	switch tx.Kind {
	case TxRegisterIssuer:
		payload, err = codec.Marshal(tx.IssuerName)
	case TxRegisterValidityKey, TxUpdateInteractivity, TxInvalidate:
		payload, err = tx.Key.MarshalCBOR()
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTransaction, tx.Kind)
	}
	if err != nil {
		return nil, err
	}
	return codec.Marshal(txWire{Kind: uint64(tx.Kind), Payload: payload})
}

// UnmarshalCBOR lee el ordinal primero y despacha. Un ordinal fuera de rango es fatal.
func (tx *Transaction) UnmarshalCBOR(data []byte) error {
	var w txWire
	if err := codec.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	if w.Kind > uint64(TxInvalidate) {
		return fmt.Errorf("%w: %d", ErrUnknownTransaction, w.Kind)
	}
	kind := TxKind(w.Kind)
	switch kind {
	case TxRegisterIssuer:
		var name string
		if err := codec.Unmarshal(w.Payload, &name); err != nil {
			return fmt.Errorf("%w: issuer name: %v", ErrMalformedTransaction, err)
		}
		*tx = RegisterIssuerTx(name)
	default:
		k, err := DecodeKey(w.Payload)
		if err != nil {
			return err
		}
		*tx = Transaction{Kind: kind, Key: k}
	}
	return nil
}

// SerializeTransactions concatena las codificaciones individuales.
func SerializeTransactions(txs []Transaction) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf)
	for i, tx := range txs {
		if err := enc.Encode(tx); err != nil {
			return nil, fmt.Errorf("encode tx %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// ParseTransactions decodifica una secuencia concatenada. Cualquier error es
// fatal para el batch completo: no se devuelven resultados parciales.
func ParseTransactions(data []byte) ([]Transaction, error) {
	dec := codec.NewDecoder(bytes.NewReader(data))
	var out []Transaction
	for {
		var tx Transaction
		err := dec.Decode(&tx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			if errors.Is(err, ErrUnknownTransaction) || errors.Is(err, ErrMalformedTransaction) || errors.Is(err, ErrMalformedKey) {
				return nil, fmt.Errorf("tx %d: %w", len(out), err)
			}
			return nil, fmt.Errorf("%w: tx %d: %v", ErrMalformedTransaction, len(out), err)
		}
		out = append(out, tx)
	}
}
