// Package coordinator es el punto de entrada de las operaciones de la
// authority: valida la entrada del llamador contra la constitución, arma las
// transacciones y las envía al cluster, y resuelve lecturas sobre el snapshot
// publicado por la FSM.
package coordinator

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dropDatabas3/dtva/internal/cluster"
	"github.com/dropDatabas3/dtva/internal/observability/logger"
	"github.com/dropDatabas3/dtva/internal/validity"
	"go.uber.org/zap"
)

var (
	ErrUnknownIssuer         = errors.New("unknown issuer")
	ErrInvalidIssuerName     = errors.New("issuer name must not be empty")
	ErrHardExpiryOutOfPolicy = errors.New("hard expiry outside the constitution policy")
	ErrInvalidTimeout        = errors.New("interactivity timeout must be at least one second")
	ErrUnknownSelf           = errors.New("local participant is not part of the constitution")
)

// StateSource publica el snapshot vigente (la FSM).
type StateSource interface {
	Current() *validity.State
}

type Options struct {
	Submitter cluster.Submitter
	States    StateSource
	// SelfIdentifier es el identificador de este nodo en la constitución.
	SelfIdentifier []byte
	// ConsensusGraceSpan > 0 habilita el grace en los sids nuevos.
	ConsensusGraceSpan time.Duration
	// InteractivityDebounce agrupa señales de interactividad por clave.
	InteractivityDebounce time.Duration
	// Now reemplaza el reloj (tests).
	Now func() time.Time
}

type Coordinator struct {
	submitter cluster.Submitter
	states    StateSource
	selfID    []byte
	grace     time.Duration
	debounce  *Debouncer
	now       func() time.Time
	log       *zap.Logger
}

func New(opts Options) (*Coordinator, error) {
	if opts.Submitter == nil || opts.States == nil {
		return nil, errors.New("coordinator: submitter and state source are required")
	}
	c := &Coordinator{
		submitter: opts.Submitter,
		states:    opts.States,
		selfID:    append([]byte(nil), opts.SelfIdentifier...),
		grace:     opts.ConsensusGraceSpan.Truncate(time.Second),
		debounce:  NewDebouncer(opts.InteractivityDebounce),
		now:       opts.Now,
		log:       logger.Named("coordinator"),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if _, _, err := c.Self(); err != nil {
		return nil, err
	}
	return c, nil
}

// Now es el reloj local del coordinator.
func (c *Coordinator) Now() time.Time { return c.now() }

// NewNonce devuelve un nonce aleatorio no negativo. Es seguro para uso concurrente.
func (c *Coordinator) NewNonce() (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("nonce: %w", err)
	}
	return int64(binary.BigEndian.Uint64(b[:]) & math.MaxInt64), nil
}

// Self busca el participante local en la constitución.
func (c *Coordinator) Self() (validity.Participant, int, error) {
	cons := c.states.Current().Constitution()
	idx, ok := cons.ParticipantIndex(c.selfID)
	if !ok {
		return validity.Participant{}, -1, fmt.Errorf("%w: %q", ErrUnknownSelf, c.selfID)
	}
	p, _ := cons.Participant(idx)
	return p, idx, nil
}

// ConsensusGraceSpan devuelve el grace configurado; false si está deshabilitado.
func (c *Coordinator) ConsensusGraceSpan() (time.Duration, bool) {
	return c.grace, c.grace > 0
}

// WithStateAt ejecuta fn sobre el snapshot vigente evaluado en now.
func (c *Coordinator) WithStateAt(now time.Time, fn func(validity.StateView)) {
	fn(c.states.Current().At(now))
}

// Query es WithStateAt con resultado.
func Query[R any](c *Coordinator, now time.Time, fn func(validity.StateView) R) R {
	var out R
	c.WithStateAt(now, func(v validity.StateView) { out = fn(v) })
	return out
}

// IssuerStatus es el resultado de registrar un issuer.
type IssuerStatus uint8

const (
	// IssuerPending: la transacción se envió pero el issuer todavía no se ve en el estado.
	IssuerPending IssuerStatus = iota
	IssuerOwnedBySelf
	IssuerOwnedByOther
)

func (s IssuerStatus) String() string {
	switch s {
	case IssuerOwnedBySelf:
		return "owned"
	case IssuerOwnedByOther:
		return "conflict"
	default:
		return "pending"
	}
}

// IssuerOutcome describe el issuer después del registro.
type IssuerOutcome struct {
	Status IssuerStatus
	Issuer validity.Issuer
	Owner  validity.Participant
}

func (c *Coordinator) issuerOutcome(s *validity.State, name string, self int) (IssuerOutcome, bool) {
	iss, ok := s.IssuerByName(name)
	if !ok {
		return IssuerOutcome{Status: IssuerPending}, false
	}
	owner, _ := s.IssuingParticipant(iss)
	st := IssuerOwnedByOther
	if iss.ParticipantIndex == self {
		st = IssuerOwnedBySelf
	}
	return IssuerOutcome{Status: st, Issuer: iss, Owner: owner}, true
}

// RegisterIssuer registra name a nombre del participante local. Si el nombre
// ya existe no se envía nada y se informa el dueño actual.
func (c *Coordinator) RegisterIssuer(ctx context.Context, name string) (IssuerOutcome, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return IssuerOutcome{}, ErrInvalidIssuerName
	}
	_, self, err := c.Self()
	if err != nil {
		return IssuerOutcome{}, err
	}
	if out, ok := c.issuerOutcome(c.states.Current(), name, self); ok {
		return out, nil
	}

	idx, err := c.submitter.Submit(ctx, validity.RegisterIssuerTx(name))
	if err != nil {
		return IssuerOutcome{}, err
	}
	out, _ := c.issuerOutcome(c.states.Current(), name, self)
	c.log.Info("issuer registration submitted",
		logger.Issuer(name), logger.RaftIndex(idx), zap.Stringer("status", out.Status))
	return out, nil
}

// RegisterValidityKey valida la entrada, genera la clave y la envía. El sid
// devuelto lleva grace si está configurado. Si el envío vence por deadline y
// hay grace, se devuelve el sid igual: la entrada puede confirmarse después.
func (c *Coordinator) RegisterValidityKey(ctx context.Context, hardExpiry time.Time, issuerName string, timeout validity.Span) (validity.SessionIdentifier, error) {
	now := c.now()
	s := c.states.Current()

	iss, ok := s.IssuerByName(issuerName)
	if !ok {
		return validity.SessionIdentifier{}, fmt.Errorf("%w: %q", ErrUnknownIssuer, issuerName)
	}
	if hardExpiry.IsZero() || !hardExpiry.Truncate(time.Second).After(now) {
		return validity.SessionIdentifier{}, fmt.Errorf("%w: hard expiry must be in the future", ErrHardExpiryOutOfPolicy)
	}
	if maxIn := s.Constitution().MaxHardExpiryIn(); hardExpiry.After(now.Add(maxIn)) {
		return validity.SessionIdentifier{}, fmt.Errorf("%w: at most %s from now", ErrHardExpiryOutOfPolicy, maxIn)
	}
	if timeout.Valid && timeout.Duration < time.Second {
		return validity.SessionIdentifier{}, ErrInvalidTimeout
	}

	nonce, err := c.NewNonce()
	if err != nil {
		return validity.SessionIdentifier{}, err
	}
	key := validity.NewValidityKey(hardExpiry, iss.Index, timeout, nonce)
	sid := validity.NewSessionIdentifier(key)
	if span, ok := c.ConsensusGraceSpan(); ok {
		sid = validity.NewSessionIdentifierWithGrace(key, now.Add(span))
	}

	idx, err := c.submitter.Submit(ctx, validity.RegisterValidityKeyTx(key))
	if err != nil {
		if _, hasGrace := sid.ConsensusGrace(); hasGrace && errors.Is(err, context.DeadlineExceeded) {
			c.log.Warn("validity key submitted without confirmation", logger.Issuer(iss.Name), logger.Nonce(nonce), logger.Err(err))
			return sid, nil
		}
		return validity.SessionIdentifier{}, err
	}
	c.log.Debug("validity key registered", logger.Issuer(iss.Name), logger.Nonce(nonce), logger.RaftIndex(idx))
	return sid, nil
}

// SendInteractivity envía una actualización de interactividad. Devuelve false
// si el envío fue absorbido por el debounce.
func (c *Coordinator) SendInteractivity(ctx context.Context, key validity.ValidityKey) (bool, error) {
	if !c.debounce.Allow(key) {
		return false, nil
	}
	if _, err := c.submitter.Submit(ctx, validity.UpdateInteractivityTx(key)); err != nil {
		c.debounce.Forget(key)
		return false, err
	}
	return true, nil
}

func (c *Coordinator) SendInvalidation(ctx context.Context, key validity.ValidityKey) error {
	_, err := c.submitter.Submit(ctx, validity.InvalidateTx(key))
	return err
}

// Resolution indica de dónde salió la vista de Resolve.
type Resolution uint8

const (
	NotFound Resolution = iota
	Found
	InGrace
)

// Resolve evalúa un sid en now: primero el estado, luego el grace del sid.
// ErrUnknownIssuer si el sid está en grace pero su issuer no existe.
func (c *Coordinator) Resolve(now time.Time, sid validity.SessionIdentifier) (validity.View, Resolution, error) {
	s := c.states.Current()
	if v, ok := s.ViewValidityKey(now, sid.Key()); ok {
		return v, Found, nil
	}
	if !sid.IsInGrace(now) {
		return validity.View{}, NotFound, nil
	}
	iss, ok := s.IssuerAt(sid.Key().IssuerIndex())
	if !ok {
		return validity.View{}, NotFound, fmt.Errorf("%w: index %d", ErrUnknownIssuer, sid.Key().IssuerIndex())
	}
	v, err := sid.GraceView(now, iss)
	if err != nil {
		// grace posterior al hard expiry
		return validity.View{}, NotFound, nil
	}
	return v, InGrace, nil
}
