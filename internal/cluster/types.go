// Package cluster replica el log de transacciones de validity con Raft.
//
// Cada entrada del log es un Envelope: el índice del participante que la envió,
// el consensus time que le fijó el líder y el lote de transacciones serializado.
// La FSM aplica los lotes en orden con ese instante.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/dtva/internal/codec"
	"github.com/dropDatabas3/dtva/internal/validity"
)

// ErrMalformedEnvelope indica una entrada de log que no se puede interpretar.
var ErrMalformedEnvelope = errors.New("malformed log envelope")

// ErrNotLeader se devuelve cuando se intenta escribir en un follower.
var ErrNotLeader = errors.New("not the raft leader")

// ErrApplyTimeout: raft no encoló la entrada a tiempo. Es un context.DeadlineExceeded.
var ErrApplyTimeout = fmt.Errorf("raft apply timed out: %w", context.DeadlineExceeded)

// Envelope es la entrada replicada: [submitterParticipantIndex, consensusSecs, txBatch].
// ConsensusSecs lo fija el líder al proponer (epoch seconds, 0 = sin sellar).
// TxBatch es la concatenación de validity.SerializeTransactions.
type Envelope struct {
	_             struct{} `cbor:",toarray"`
	Submitter     int64
	ConsensusSecs int64
	TxBatch       []byte
}

// NewEnvelope serializa txs para el participante submitter.
func NewEnvelope(submitter int, txs []validity.Transaction) (Envelope, error) {
	batch, err := validity.SerializeTransactions(txs)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Submitter: int64(submitter), TxBatch: batch}, nil
}

// Stamp fija el consensus time del envelope, truncado a segundos.
func (e Envelope) Stamp(at time.Time) Envelope {
	e.ConsensusSecs = at.Unix()
	return e
}

func (e Envelope) Encode() ([]byte, error) {
	return codec.Marshal(e)
}

// DecodeEnvelope decodifica una entrada de log.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := codec.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return e, nil
}

// Batch decodifica el lote de transacciones.
func (e Envelope) Batch() (validity.Batch, error) {
	txs, err := validity.ParseTransactions(e.TxBatch)
	if err != nil {
		return validity.Batch{}, err
	}
	submitter := validity.NoSubmitter
	if e.Submitter >= 0 && e.Submitter <= int64(^uint32(0)>>1) {
		submitter = int(e.Submitter)
	}
	return validity.Batch{Submitter: submitter, Transactions: txs}, nil
}

// Submitter es lo que el coordinator necesita del cluster para enviar lotes.
type Submitter interface {
	Submit(ctx context.Context, txs ...validity.Transaction) (uint64, error)
	IsLeader() bool
	LeaderID() string
}
