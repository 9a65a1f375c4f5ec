package cluster

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/dropDatabas3/dtva/internal/codec"
	"github.com/dropDatabas3/dtva/internal/validity"
	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/require"
)

var t0 = time.Unix(1_700_000_000, 0).UTC()

func genesisState() *validity.State {
	return validity.CreateInitialState([]validity.PeerInfo{
		{Nickname: "alpha", Identifier: []byte("node-a")},
		{Nickname: "beta", Identifier: []byte("node-b")},
	}, validity.ConstitutionConfig{})
}

func newTestFSM(t *testing.T, compress bool) *FSM {
	t.Helper()
	f, err := NewFSM(FSMOptions{Genesis: genesisState(), CompressSnapshots: compress})
	require.NoError(t, err)
	return f
}

func entry(t *testing.T, index uint64, at time.Time, submitter int, txs ...validity.Transaction) *raft.Log {
	t.Helper()
	env, err := NewEnvelope(submitter, txs)
	require.NoError(t, err)
	data, err := env.Encode()
	require.NoError(t, err)
	return &raft.Log{Index: index, Type: raft.LogCommand, Data: data, AppendedAt: at}
}

func TestFSM_ApplyPublishesState(t *testing.T) {
	f := newTestFSM(t, false)
	before := f.Current()

	res := f.Apply(entry(t, 1, t0.Add(300*time.Millisecond), 1, validity.RegisterIssuerTx("acme")))
	ar, ok := res.(ApplyResult)
	require.True(t, ok, "unexpected response %v", res)
	require.Equal(t, uint64(1), ar.Index)
	require.Equal(t, t0, ar.ConsensusTime)
	require.Equal(t, 1, ar.Report.IssuersAdded)

	iss, ok := f.Current().IssuerByName("acme")
	require.True(t, ok)
	require.Equal(t, 1, iss.ParticipantIndex)
	require.Empty(t, before.Issuers(), "old snapshot stays untouched")
	require.Equal(t, uint64(1), f.AppliedIndex())
	require.Equal(t, t0, f.LastConsensusTime())
}

func TestFSM_ConsensusTimeIsMonotonic(t *testing.T) {
	f := newTestFSM(t, false)
	f.Apply(entry(t, 1, t0, 0, validity.RegisterIssuerTx("acme")))

	k := validity.NewValidityKey(t0.Add(time.Hour), 0, validity.SpanOf(time.Minute), 1)
	res := f.Apply(entry(t, 2, t0.Add(-time.Minute), 0, validity.RegisterValidityKeyTx(k)))
	ar := res.(ApplyResult)
	require.Equal(t, t0, ar.ConsensusTime)

	rec, ok := f.Current().Record(k)
	require.True(t, ok)
	require.Equal(t, t0, rec.LastActivityAt())

	// sin AppendedAt se usa el último consensus time
	res = f.Apply(entry(t, 3, time.Time{}, 0, validity.UpdateInteractivityTx(k)))
	require.Equal(t, t0, res.(ApplyResult).ConsensusTime)
}

func stampedEntry(t *testing.T, index uint64, stamp, appended time.Time, txs ...validity.Transaction) *raft.Log {
	t.Helper()
	env, err := NewEnvelope(0, txs)
	require.NoError(t, err)
	data, err := env.Stamp(stamp).Encode()
	require.NoError(t, err)
	return &raft.Log{Index: index, Type: raft.LogCommand, Data: data, AppendedAt: appended}
}

func TestFSM_LeaderStampWinsOverAppendedAt(t *testing.T) {
	f := newTestFSM(t, false)

	// el follower guarda su propio AppendedAt; el sello del líder manda
	res := f.Apply(stampedEntry(t, 1, t0.Add(time.Hour), t0, validity.RegisterIssuerTx("acme")))
	require.Equal(t, t0.Add(time.Hour), res.(ApplyResult).ConsensusTime)

	// un sello atrasado no retrocede el reloj
	res = f.Apply(stampedEntry(t, 2, t0, t0.Add(2*time.Hour), validity.RegisterIssuerTx("globex")))
	require.Equal(t, t0.Add(time.Hour), res.(ApplyResult).ConsensusTime)
	require.Equal(t, t0.Add(time.Hour), f.LastConsensusTime())
}

func TestFSM_ReplicasAgreeOnConsensusTime(t *testing.T) {
	a, b := newTestFSM(t, false), newTestFSM(t, false)
	k := validity.NewValidityKey(t0.Add(time.Hour), 0, validity.SpanOf(time.Minute), 1)

	entries := []struct {
		stamp time.Time
		txs   []validity.Transaction
	}{
		{t0, []validity.Transaction{validity.RegisterIssuerTx("acme")}},
		{t0.Add(5 * time.Second), []validity.Transaction{validity.RegisterValidityKeyTx(k)}},
	}
	for i, e := range entries {
		idx := uint64(i + 1)
		// cada réplica ve un AppendedAt distinto para la misma entrada
		a.Apply(stampedEntry(t, idx, e.stamp, t0.Add(time.Duration(i)*time.Minute), e.txs...))
		b.Apply(stampedEntry(t, idx, e.stamp, t0.Add(-time.Duration(i)*time.Minute), e.txs...))
	}

	da, err := validity.DigestState(a.Current())
	require.NoError(t, err)
	db, err := validity.DigestState(b.Current())
	require.NoError(t, err)
	require.Equal(t, da, db)
	require.Equal(t, a.LastConsensusTime(), b.LastConsensusTime())
}

func TestFSM_PublishedPairsStateWithTime(t *testing.T) {
	f := newTestFSM(t, false)
	s, ct := f.Published()
	require.Same(t, f.Current(), s)
	require.True(t, ct.IsZero())

	const n = 200
	done := make(chan struct{})
	errs := make(chan string, 1)
	go func() {
		defer close(done)
		for {
			s, ct := f.Published()
			if !ct.IsZero() {
				// el lote i registra un issuer con consensus time t0+i
				want := int(ct.Sub(t0)/time.Second) + 1
				if got := len(s.Issuers()); got != want {
					select {
					case errs <- fmt.Sprintf("state with %d issuers paired with %s", got, ct):
					default:
					}
					return
				}
				if want == n {
					return
				}
			}
		}
	}()
	for i := 0; i < n; i++ {
		at := t0.Add(time.Duration(i) * time.Second)
		f.Apply(stampedEntry(t, uint64(i+1), at, at, validity.RegisterIssuerTx(fmt.Sprintf("iss-%d", i))))
	}
	<-done
	select {
	case msg := <-errs:
		t.Fatal(msg)
	default:
	}
}

func TestFSM_FatalDecodeHalts(t *testing.T) {
	f := newTestFSM(t, false)

	res := f.Apply(&raft.Log{Index: 7, Type: raft.LogCommand, Data: []byte{0xff, 0x00}, AppendedAt: t0})
	err, ok := res.(error)
	require.True(t, ok)
	require.ErrorIs(t, err, ErrMalformedEnvelope)
	require.Error(t, f.Halted())

	res = f.Apply(entry(t, 8, t0, 0, validity.RegisterIssuerTx("acme")))
	err, ok = res.(error)
	require.True(t, ok)
	require.ErrorIs(t, err, ErrHalted)
	require.Empty(t, f.Current().Issuers())
}

func TestFSM_UnknownTransactionHalts(t *testing.T) {
	f := newTestFSM(t, false)
	bad, err := codec.Marshal([]any{uint64(9), "x"})
	require.NoError(t, err)
	data, err := Envelope{Submitter: 0, TxBatch: bad}.Encode()
	require.NoError(t, err)

	res := f.Apply(&raft.Log{Index: 1, Type: raft.LogCommand, Data: data, AppendedAt: t0})
	err, ok := res.(error)
	require.True(t, ok)
	require.True(t, errors.Is(err, validity.ErrUnknownTransaction))
	require.Error(t, f.Halted())
}

func TestFSM_IgnoresNonCommandEntries(t *testing.T) {
	f := newTestFSM(t, false)
	require.Nil(t, f.Apply(&raft.Log{Index: 1, Type: raft.LogNoop}))
	require.Nil(t, f.Apply(nil))
	require.NoError(t, f.Halted())
}

func TestEnvelope_NegativeSubmitter(t *testing.T) {
	env, err := NewEnvelope(-1, []validity.Transaction{validity.RegisterIssuerTx("acme")})
	require.NoError(t, err)
	b, err := env.Batch()
	require.NoError(t, err)
	require.Equal(t, validity.NoSubmitter, b.Submitter)
}

type memSink struct {
	bytes.Buffer
	cancelled bool
	closed    bool
}

func (s *memSink) ID() string    { return "mem" }
func (s *memSink) Cancel() error { s.cancelled = true; return nil }
func (s *memSink) Close() error  { s.closed = true; return nil }

func TestFSM_SnapshotRestore(t *testing.T) {
	for _, compress := range []bool{false, true} {
		src := newTestFSM(t, compress)
		k := validity.NewValidityKey(t0.Add(time.Hour), 0, validity.SpanOf(15*time.Minute), 1)
		src.Apply(entry(t, 1, t0, 0, validity.RegisterIssuerTx("acme"), validity.RegisterValidityKeyTx(k)))
		src.Apply(entry(t, 2, t0.Add(5*time.Minute), 0, validity.InvalidateTx(k)))

		snap, err := src.Snapshot()
		require.NoError(t, err)
		sink := &memSink{}
		require.NoError(t, snap.Persist(sink))
		require.True(t, sink.closed)
		require.Equal(t, compress, codec.IsCompressed(sink.Bytes()))

		dst := newTestFSM(t, false)
		require.NoError(t, dst.Restore(io.NopCloser(bytes.NewReader(sink.Bytes()))))
		require.Equal(t, src.LastConsensusTime(), dst.LastConsensusTime())

		want, err := validity.DigestState(src.Current())
		require.NoError(t, err)
		got, err := validity.DigestState(dst.Current())
		require.NoError(t, err)
		require.Equal(t, want, got)

		v, ok := dst.Current().ViewValidityKey(t0.Add(10*time.Minute), k)
		require.True(t, ok)
		require.True(t, v.IsInvalidated())
	}
}

func TestFSM_RestoreRejectsGarbage(t *testing.T) {
	f := newTestFSM(t, false)
	err := f.Restore(io.NopCloser(bytes.NewReader([]byte("nope"))))
	require.ErrorIs(t, err, validity.ErrMalformedState)
}
