package validity

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateInitialState(t *testing.T) {
	s := CreateInitialState(peers(), ConstitutionConfig{})
	c := s.Constitution()
	require.Equal(t, DefaultMaxSessionDuration, c.MaxHardExpiryIn())
	require.Len(t, c.Participants(), 2)
	p, ok := c.Participant(1)
	require.True(t, ok)
	assert.Equal(t, "beta", p.Name())
	assert.False(t, p.IsTokenIssuer)
	idx, ok := c.ParticipantIndex([]byte("node-b"))
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Empty(t, s.Issuers())
	assert.Zero(t, s.KeyCount())
}

func TestApply_RegisterIssuerBindsSubmitter(t *testing.T) {
	s := genesis(t)
	s, rep := Apply(s, Batch{Submitter: 1, Transactions: []Transaction{
		RegisterIssuerTx("acme"),
		RegisterIssuerTx("globex"),
		RegisterIssuerTx("acme"),
	}}, t0)
	assert.Equal(t, 2, rep.IssuersAdded)
	assert.Equal(t, 1, rep.Ignored)

	acme, ok := s.IssuerByName("acme")
	require.True(t, ok)
	assert.Equal(t, 0, acme.Index)
	assert.Equal(t, 1, acme.ParticipantIndex)
	globex, _ := s.IssuerByName("globex")
	assert.Equal(t, 1, globex.Index)

	owner, ok := s.IssuingParticipant(acme)
	require.True(t, ok)
	assert.Equal(t, "beta", owner.Name())
}

func TestApply_RegisterIssuerWithoutSubmitterIsIgnored(t *testing.T) {
	s := genesis(t)
	for _, sub := range []int{NoSubmitter, 2, 99} {
		next, rep := Apply(s, Batch{Submitter: sub, Transactions: []Transaction{RegisterIssuerTx("acme")}}, t0)
		assert.Equal(t, 0, rep.IssuersAdded)
		assert.Empty(t, next.Issuers())
	}
}

func TestApply_DoesNotModifyPrior(t *testing.T) {
	s0 := withIssuer(t, genesis(t), "acme")
	before := mustSerialize(t, s0)

	k := NewValidityKey(t0.Add(time.Hour), 0, NoSpan, 1)
	s1 := apply(t, s0, t0, RegisterValidityKeyTx(k), RegisterIssuerTx("globex"))
	require.Equal(t, 1, s1.KeyCount())
	require.Len(t, s1.Issuers(), 2)

	require.Equal(t, before, mustSerialize(t, s0))
	require.Zero(t, s0.KeyCount())
	_, ok := s0.IssuerByName("globex")
	require.False(t, ok)
}

func TestApply_IgnoresInvalidKeys(t *testing.T) {
	s := withIssuer(t, genesis(t), "acme")
	unknownIssuer := NewValidityKey(t0.Add(time.Hour), 5, NoSpan, 1)
	zeroSpan := NewValidityKey(t0.Add(time.Hour), 0, SpanOf(0), 2)

	next, rep := Apply(s, Batch{Transactions: []Transaction{
		RegisterValidityKeyTx(unknownIssuer),
		RegisterValidityKeyTx(zeroSpan),
		UpdateInteractivityTx(unknownIssuer),
		InvalidateTx(zeroSpan),
	}}, t0)
	assert.Equal(t, 4, rep.Ignored)
	assert.Zero(t, next.KeyCount())
}

func TestApply_DuplicateRegistrationKeepsRecord(t *testing.T) {
	s := withIssuer(t, genesis(t), "acme")
	k := NewValidityKey(t0.Add(time.Hour), 0, SpanOf(15*time.Minute), 1)
	s = apply(t, s, t0, RegisterValidityKeyTx(k))
	first, ok := s.Record(k)
	require.True(t, ok)

	s, rep := Apply(s, Batch{Transactions: []Transaction{RegisterValidityKeyTx(k)}}, t0.Add(5*time.Minute))
	assert.Equal(t, 1, rep.Ignored)
	again, ok := s.Record(k)
	require.True(t, ok)
	require.Equal(t, first, again)
}

func TestApply_UpdateIsIdempotent(t *testing.T) {
	s := withIssuer(t, genesis(t), "acme")
	k := NewValidityKey(t0.Add(time.Hour), 0, SpanOf(15*time.Minute), 1)
	s = apply(t, s, t0, RegisterValidityKeyTx(k))

	at := t0.Add(10 * time.Minute)
	once := apply(t, s, at, UpdateInteractivityTx(k))
	twice := apply(t, once, at, UpdateInteractivityTx(k))
	sameBatch := apply(t, s, at, UpdateInteractivityTx(k), UpdateInteractivityTx(k))

	require.Equal(t, mustSerialize(t, once), mustSerialize(t, twice))
	require.Equal(t, mustSerialize(t, once), mustSerialize(t, sameBatch))
}

func TestApply_ReplayEquivalence(t *testing.T) {
	s0 := withIssuer(t, genesis(t), "acme")
	k1 := NewValidityKey(t0.Add(time.Hour), 0, SpanOf(15*time.Minute), 1)
	k2 := NewValidityKey(t0.Add(2*time.Hour), 0, NoSpan, 2)

	b1 := Batch{Submitter: 0, Transactions: []Transaction{RegisterValidityKeyTx(k1), RegisterValidityKeyTx(k2)}}
	b2 := Batch{Submitter: 1, Transactions: []Transaction{UpdateInteractivityTx(k1), InvalidateTx(k2), RegisterIssuerTx("globex")}}

	replicaA, _ := Apply(s0, b1, t0)
	replicaA, _ = Apply(replicaA, b2, t0.Add(3*time.Minute))

	// otra réplica arranca de la serialización de s0
	raw := mustSerialize(t, s0)
	replicaB, err := DeserializeState(raw)
	require.NoError(t, err)
	replicaB, _ = Apply(replicaB, b1, t0)
	replicaB, _ = Apply(replicaB, b2, t0.Add(3*time.Minute))

	require.Equal(t, mustSerialize(t, replicaA), mustSerialize(t, replicaB))

	da, err := DigestState(replicaA)
	require.NoError(t, err)
	db, err := DigestState(replicaB)
	require.NoError(t, err)
	require.Equal(t, da, db)
}

func TestApply_GarbageCollectsByHardExpiry(t *testing.T) {
	s := withIssuer(t, genesis(t), "acme")
	short := NewValidityKey(t0.Add(time.Minute), 0, NoSpan, 1)
	edge := NewValidityKey(t0.Add(2*time.Minute), 0, NoSpan, 2)
	long := NewValidityKey(t0.Add(time.Hour), 0, NoSpan, 3)
	s = apply(t, s, t0, RegisterValidityKeyTx(short), RegisterValidityKeyTx(edge), RegisterValidityKeyTx(long), InvalidateTx(short))
	require.Equal(t, 3, s.KeyCount())

	// solo se borra lo estrictamente anterior: edge sobrevive en su propio instante
	s, rep := Apply(s, Batch{}, t0.Add(2*time.Minute))
	assert.Equal(t, 1, rep.Collected)
	assert.Equal(t, 2, s.KeyCount())
	_, ok := s.Record(short)
	assert.False(t, ok)
	_, ok = s.Record(edge)
	assert.True(t, ok)
}

func TestState_BoundaryAtHardExpiry(t *testing.T) {
	s := withIssuer(t, genesis(t), "acme")
	k := NewValidityKey(t0.Add(time.Hour), 0, NoSpan, 1)
	s = apply(t, s, t0, RegisterValidityKeyTx(k))

	_, ok := s.ViewValidityKey(k.HardExpiryAt(), k)
	assert.False(t, ok, "destroyed at hard expiry")

	v, ok := s.ViewValidityKey(k.HardExpiryAt().Add(-time.Second), k)
	require.True(t, ok)
	assert.Equal(t, time.Second, v.UntilHardExpiry())
}

func TestState_ViewSequences(t *testing.T) {
	s := withIssuer(t, genesis(t), "acme")
	k1 := NewValidityKey(t0.Add(time.Hour), 0, NoSpan, 1)
	k2 := NewValidityKey(t0.Add(2*time.Hour), 0, NoSpan, 2)
	k3 := NewValidityKey(t0.Add(time.Minute), 0, NoSpan, 3)
	s = apply(t, s, t0, RegisterValidityKeyTx(k1), RegisterValidityKeyTx(k2), RegisterValidityKeyTx(k3))
	s = apply(t, s, t0.Add(10*time.Second), InvalidateTx(k2))

	view := s.At(t0.Add(5 * time.Minute))
	var keys []ValidityKey
	for v := range view.ViewValidityKeys() {
		keys = append(keys, v.Key())
	}
	require.Equal(t, []ValidityKey{k1, k2}, keys, "k3 already past hard expiry")

	// restartable
	second := slices.Collect(view.ViewValidityKeys())
	require.Len(t, second, 2)

	inv := slices.Collect(view.ViewInvalidatedValidityKeys())
	require.Len(t, inv, 1)
	require.Equal(t, k2, inv[0].Key())
	require.Equal(t, "acme", inv[0].Issuer().Name)
}

// Escenarios de punta a punta sobre el estado replicado.

func TestScenarioA_ActiveWithoutTimeout(t *testing.T) {
	s := withIssuer(t, genesis(t), "acme")
	acme, _ := s.IssuerByName("acme")
	k := NewValidityKey(t0.Add(time.Hour), acme.Index, NoSpan, 77)
	s = apply(t, s, t0, RegisterValidityKeyTx(k))

	v, ok := s.ViewValidityKey(t0.Add(time.Second), k)
	require.True(t, ok)
	assert.Equal(t, ViewActive, v.Kind())
	assert.Equal(t, k.HardExpiryAt(), v.ScheduledTransitionAt())
}

func TestScenarioB_InteractivityExtendsDeadline(t *testing.T) {
	s := withIssuer(t, genesis(t), "acme")
	k := NewValidityKey(t0.Add(time.Hour), 0, SpanOf(15*time.Minute), 77)
	s = apply(t, s, t0, RegisterValidityKeyTx(k))
	s = apply(t, s, t0.Add(10*time.Minute), UpdateInteractivityTx(k))

	v, ok := s.ViewValidityKey(t0.Add(11*time.Minute), k)
	require.True(t, ok)
	assert.Equal(t, t0.Add(10*time.Minute), v.LastModifiedAt())
	assert.Equal(t, t0.Add(25*time.Minute), v.ScheduledTransitionAt())
}

func TestScenarioC_InvalidateOnce(t *testing.T) {
	s := withIssuer(t, genesis(t), "acme")
	k := NewValidityKey(t0.Add(time.Hour), 0, NoSpan, 77)
	s = apply(t, s, t0, RegisterValidityKeyTx(k))
	s = apply(t, s, t0.Add(5*time.Minute), InvalidateTx(k))
	s = apply(t, s, t0.Add(6*time.Minute), InvalidateTx(k))

	v, ok := s.ViewValidityKey(t0.Add(7*time.Minute), k)
	require.True(t, ok)
	assert.Equal(t, ViewInvalidated, v.Kind())
	at, _ := v.InvalidatedAt()
	assert.Equal(t, t0.Add(5*time.Minute), at)
}

func TestScenarioD_CollectedKeyIsNotFound(t *testing.T) {
	s := withIssuer(t, genesis(t), "acme")
	k := NewValidityKey(t0.Add(time.Minute), 0, NoSpan, 77)
	s = apply(t, s, t0, RegisterValidityKeyTx(k), InvalidateTx(k))
	s = apply(t, s, t0.Add(2*time.Minute))

	_, ok := s.ViewValidityKey(t0.Add(30*time.Second), k)
	assert.False(t, ok)
}

func TestScenarioE_GraceBeforeConsensus(t *testing.T) {
	s := withIssuer(t, genesis(t), "acme")
	acme, _ := s.IssuerByName("acme")
	k := NewValidityKey(t0.Add(time.Hour), acme.Index, NoSpan, 77)
	sid := NewSessionIdentifierWithGrace(k, t0.Add(60*time.Second))

	_, known := s.ViewValidityKey(t0.Add(30*time.Second), k)
	require.False(t, known)
	require.True(t, sid.IsInGrace(t0.Add(30*time.Second)))
	v, err := sid.GraceView(t0.Add(30*time.Second), acme)
	require.NoError(t, err)
	assert.True(t, v.IsActive())
	assert.Equal(t, ViewGrace, v.Kind())

	_, known = s.ViewValidityKey(t0.Add(90*time.Second), k)
	require.False(t, known)
	require.False(t, sid.IsInGrace(t0.Add(90*time.Second)))
}
