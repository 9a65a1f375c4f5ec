package cluster

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dropDatabas3/dtva/internal/codec"
	appmetrics "github.com/dropDatabas3/dtva/internal/metrics"
	"github.com/dropDatabas3/dtva/internal/observability/logger"
	"github.com/dropDatabas3/dtva/internal/validity"
	"github.com/hashicorp/raft"
	"go.uber.org/zap"
)

// ErrHalted se devuelve para toda entrada posterior a un error fatal.
var ErrHalted = errors.New("fsm halted after a fatal apply error")

// ApplyResult es la respuesta de FSM.Apply que recibe quien envió la entrada.
type ApplyResult struct {
	Index         uint64
	ConsensusTime time.Time
	Report        validity.ApplyReport
}

// published es lo que ven los lectores: el estado y el consensus time del
// lote que lo produjo, siempre en pareja.
type published struct {
	state     *validity.State
	consensus int64 // epoch seconds, 0 = ninguno
}

// FSM implementa raft.FSM sobre validity.State. Apply corre en una sola
// goroutine (la de raft); los lectores usan Current sin locks.
type FSM struct {
	pub          atomic.Pointer[published]
	appliedIndex atomic.Uint64

	haltMu  sync.Mutex
	haltErr error

	compress bool
	log      *zap.Logger
}

type FSMOptions struct {
	// Genesis es el estado inicial cuando no hay snapshot previo.
	Genesis *validity.State
	// CompressSnapshots comprime los snapshots con zstd.
	CompressSnapshots bool
}

func NewFSM(opts FSMOptions) (*FSM, error) {
	if opts.Genesis == nil {
		return nil, errors.New("fsm: genesis state is required")
	}
	f := &FSM{compress: opts.CompressSnapshots, log: logger.Named("fsm")}
	f.pub.Store(&published{state: opts.Genesis})
	f.publishGauges(opts.Genesis)
	return f, nil
}

// Current devuelve el snapshot publicado. Nunca es nil.
func (f *FSM) Current() *validity.State { return f.pub.Load().state }

// LastConsensusTime es el consensus time del último lote aplicado (cero si no hubo).
func (f *FSM) LastConsensusTime() time.Time {
	return secsToTime(f.pub.Load().consensus)
}

// Published devuelve el estado y su consensus time de una sola lectura.
func (f *FSM) Published() (*validity.State, time.Time) {
	p := f.pub.Load()
	return p.state, secsToTime(p.consensus)
}

func secsToTime(secs int64) time.Time {
	if secs == 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

func (f *FSM) AppliedIndex() uint64 { return f.appliedIndex.Load() }

// Halted devuelve el error fatal que detuvo la FSM, o nil.
func (f *FSM) Halted() error {
	f.haltMu.Lock()
	defer f.haltMu.Unlock()
	return f.haltErr
}

func (f *FSM) halt(l *raft.Log, err error) error {
	f.haltMu.Lock()
	defer f.haltMu.Unlock()
	if f.haltErr == nil {
		f.haltErr = fmt.Errorf("raft index %d: %w", l.Index, err)
		appmetrics.FSMHalted.Set(1)
		f.log.Error("fatal apply error, replica halted", logger.RaftIndex(l.Index), logger.Err(err))
	}
	return f.haltErr
}

// consensusTime usa el instante que selló el líder en el envelope. Entradas sin
// sello caen a AppendedAt. Nunca es anterior al último aplicado.
func (f *FSM) consensusTime(env Envelope, l *raft.Log, last int64) time.Time {
	secs := last
	switch {
	case env.ConsensusSecs > 0:
		secs = env.ConsensusSecs
	case !l.AppendedAt.IsZero():
		secs = l.AppendedAt.Unix()
	}
	if secs < last {
		secs = last
	}
	return time.Unix(secs, 0).UTC()
}

// Apply decodifica el envelope y aplica el lote. Un error de decode es fatal:
// se devuelve al que envió la entrada y la FSM rechaza todo lo posterior.
func (f *FSM) Apply(l *raft.Log) interface{} {
	if l == nil || l.Type != raft.LogCommand {
		return nil
	}
	if err := f.Halted(); err != nil {
		return fmt.Errorf("%w: %v", ErrHalted, err)
	}

	env, err := DecodeEnvelope(l.Data)
	if err != nil {
		return f.halt(l, err)
	}
	batch, err := env.Batch()
	if err != nil {
		return f.halt(l, err)
	}

	cur := f.pub.Load()
	ct := f.consensusTime(env, l, cur.consensus)
	next, rep := validity.Apply(cur.state, batch, ct)

	f.pub.Store(&published{state: next, consensus: ct.Unix()})
	f.appliedIndex.Store(l.Index)

	appmetrics.RaftAppliedIndex.Set(float64(l.Index))
	appmetrics.TxApplied.WithLabelValues(validity.TxRegisterIssuer.String()).Add(float64(rep.IssuersAdded))
	appmetrics.TxApplied.WithLabelValues(validity.TxRegisterValidityKey.String()).Add(float64(rep.KeysRegistered))
	appmetrics.TxApplied.WithLabelValues(validity.TxUpdateInteractivity.String()).Add(float64(rep.KeysUpdated))
	appmetrics.TxApplied.WithLabelValues(validity.TxInvalidate.String()).Add(float64(rep.KeysInvalidated))
	appmetrics.TxIgnored.Add(float64(rep.Ignored))
	appmetrics.KeysCollected.Add(float64(rep.Collected))
	f.publishGauges(next)

	return ApplyResult{Index: l.Index, ConsensusTime: ct, Report: rep}
}

func (f *FSM) publishGauges(s *validity.State) {
	appmetrics.KeysStored.Set(float64(s.KeyCount()))
	appmetrics.IssuersRegistered.Set(float64(len(s.Issuers())))
}

// snapshotWire es el contenido de un snapshot: [lastConsensusSecs, stateBytes].
type snapshotWire struct {
	_             struct{} `cbor:",toarray"`
	LastConsensus int64
	State         []byte
}

// Snapshot captura el puntero actual; Persist serializa fuera del hilo de Apply.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	p := f.pub.Load()
	return &fsmSnapshot{
		state:         p.state,
		lastConsensus: p.consensus,
		compress:      f.compress,
	}, nil
}

// Restore reemplaza el estado con el de un snapshot (comprimido o no).
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	s, last, err := DecodeSnapshot(raw)
	if err != nil {
		return err
	}
	f.pub.Store(&published{state: s, consensus: last})
	f.publishGauges(s)
	f.log.Info("state restored from snapshot", logger.Count(s.KeyCount()), zap.Int64("last_consensus", last))
	return nil
}

// EncodeSnapshot produce los bytes de un snapshot.
func EncodeSnapshot(s *validity.State, lastConsensus int64, compress bool) ([]byte, error) {
	stateBytes, err := validity.SerializeState(s)
	if err != nil {
		return nil, err
	}
	out, err := codec.Marshal(snapshotWire{LastConsensus: lastConsensus, State: stateBytes})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if compress {
		out = codec.Compress(out)
	}
	return out, nil
}

// DecodeSnapshot acepta snapshots comprimidos o planos.
func DecodeSnapshot(raw []byte) (*validity.State, int64, error) {
	plain, err := codec.Decompress(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", validity.ErrMalformedState, err)
	}
	var w snapshotWire
	if err := codec.Unmarshal(plain, &w); err != nil {
		return nil, 0, fmt.Errorf("%w: snapshot envelope: %v", validity.ErrMalformedState, err)
	}
	s, err := validity.DeserializeState(w.State)
	if err != nil {
		return nil, 0, err
	}
	return s, w.LastConsensus, nil
}

type fsmSnapshot struct {
	state         *validity.State
	lastConsensus int64
	compress      bool
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	out, err := EncodeSnapshot(s.state, s.lastConsensus, s.compress)
	if err != nil {
		_ = sink.Cancel()
		return err
	}
	if _, err := sink.Write(out); err != nil {
		_ = sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
