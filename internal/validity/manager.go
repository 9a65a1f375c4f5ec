package validity

import (
	"slices"
	"time"

	"github.com/dropDatabas3/dtva/internal/observability/logger"
	"go.uber.org/zap"
)

// NoSubmitter marca un batch sin participante autenticado. Las
// registraciones de issuer de un batch así se ignoran.
const NoSubmitter = -1

// Batch es un lote ordenado de transacciones. Submitter es el índice en la
// constitución del participante que envió el lote; los issuers registrados
// en el lote quedan ligados a él.
type Batch struct {
	Submitter    int
	Transactions []Transaction
}

// ApplyReport resume lo que hizo Apply; se usa para métricas y logs.
type ApplyReport struct {
	Collected       int
	Applied         int
	Ignored         int
	IssuersAdded    int
	KeysRegistered  int
	KeysUpdated     int
	KeysInvalidated int
}

// Apply es la función de transición. Es pura: el mismo (prior, batch,
// consensusTime) produce el mismo estado en todas las réplicas. prior no se
// modifica. Las condiciones esperadas (duplicados, claves desconocidas o ya
// terminadas) se registran en log y se ignoran.
func Apply(prior *State, batch Batch, consensusTime time.Time) (*State, ApplyReport) {
	log := logger.Named("validity").With(logger.ConsensusTime(consensusTime))
	consensusTime = truncSeconds(consensusTime)

	var rep ApplyReport
	txn := prior.keys.txn()
	rep.Collected = txn.TrimBefore(consensusTime.Unix())

	issuers := prior.issuers
	byName := prior.issuerByName
	issuersCopied := false

	for i, tx := range batch.Transactions {
		txLog := log.With(logger.TxKind(tx.Kind.String()), zap.Int("tx_index", i))
		switch tx.Kind {
		case TxRegisterIssuer:
			if _, exists := byName[tx.IssuerName]; exists {
				txLog.Debug("issuer already registered, ignoring", logger.Issuer(tx.IssuerName))
				rep.Ignored++
				continue
			}
			if _, ok := prior.constitution.Participant(batch.Submitter); !ok {
				txLog.Warn("issuer registration without a known submitter, ignoring",
					logger.Issuer(tx.IssuerName), zap.Int("submitter", batch.Submitter))
				rep.Ignored++
				continue
			}
			if !issuersCopied {
				issuers = slices.Clone(issuers)
				byName = make(map[string]int, len(prior.issuerByName)+1)
				for name, idx := range prior.issuerByName {
					byName[name] = idx
				}
				issuersCopied = true
			}
			iss := Issuer{Name: tx.IssuerName, Index: len(issuers), ParticipantIndex: batch.Submitter}
			issuers = append(issuers, iss)
			byName[iss.Name] = iss.Index
			rep.IssuersAdded++

		case TxRegisterValidityKey:
			if k := tx.Key.IssuerIndex(); k < 0 || k >= len(issuers) {
				txLog.Debug("validity key for unknown issuer, ignoring", logger.Key(tx.Key.String()))
				rep.Ignored++
				continue
			}
			rec, err := NewRecord(tx.Key.HardExpiryAt(), consensusTime, tx.Key.InteractivityTimeout())
			if err != nil {
				txLog.Debug("degenerate validity key, ignoring", logger.Key(tx.Key.String()), logger.Err(err))
				rep.Ignored++
				continue
			}
			if !txn.InsertIfAbsent(tx.Key, rec) {
				txLog.Info("duplicate validity key registration, ignoring", logger.Key(tx.Key.String()))
				rep.Ignored++
				continue
			}
			rep.KeysRegistered++

		case TxUpdateInteractivity:
			rec, ok := txn.Get(tx.Key)
			if !ok {
				rep.Ignored++
				continue
			}
			next, applied := rec.Updated(consensusTime)
			if !applied {
				rep.Ignored++
				continue
			}
			txn.Put(tx.Key, next)
			rep.KeysUpdated++

		case TxInvalidate:
			rec, ok := txn.Get(tx.Key)
			if !ok {
				rep.Ignored++
				continue
			}
			next, applied := rec.Invalidated(consensusTime)
			if !applied {
				rep.Ignored++
				continue
			}
			txn.Put(tx.Key, next)
			rep.KeysInvalidated++

		default:
			// ParseTransactions nunca produce un Kind fuera de rango.
			txLog.Error("unknown transaction kind in batch, ignoring")
			rep.Ignored++
			continue
		}
		rep.Applied++
	}

	if rep.Collected > 0 {
		log.Debug("garbage collected expired keys", logger.Count(rep.Collected))
	}

	return &State{
		constitution: prior.constitution,
		keys:         txn.Commit(),
		issuers:      issuers,
		issuerByName: byName,
	}, rep
}

// PeerInfo es la descripción de un participante tal como la entrega la plataforma de consenso.
type PeerInfo struct {
	Nickname   string
	Identifier []byte
}

// ConstitutionConfig es la política global fijada en génesis.
type ConstitutionConfig struct {
	MaxSessionDuration time.Duration
	TokenIssuer        bool
}

// DefaultMaxSessionDuration se usa cuando la configuración no fija un máximo.
const DefaultMaxSessionDuration = 24 * time.Hour

// CreateInitialState construye el estado génesis: constitución a partir de
// los peers y la política, sin claves ni issuers.
func CreateInitialState(peers []PeerInfo, cfg ConstitutionConfig) *State {
	maxSession := cfg.MaxSessionDuration
	if maxSession <= 0 {
		maxSession = DefaultMaxSessionDuration
	}
	participants := make([]Participant, 0, len(peers))
	for _, p := range peers {
		participants = append(participants, Participant{
			DisplayName:   p.Nickname,
			HasName:       p.Nickname != "",
			Identifier:    p.Identifier,
			IsTokenIssuer: cfg.TokenIssuer,
		})
	}
	return newState(NewConstitution(participants, maxSession))
}
