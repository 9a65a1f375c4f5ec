package validity

import (
	"net/http"
	"sync"
	"time"

	"github.com/dropDatabas3/dtva/internal/coordinator"
	dto "github.com/dropDatabas3/dtva/internal/http/dto/validity"
	"github.com/dropDatabas3/dtva/internal/http/helpers"
	"github.com/dropDatabas3/dtva/internal/observability/logger"
	domain "github.com/dropDatabas3/dtva/internal/validity"
)

// ReplicaInfo expone el progreso de la réplica local (la FSM).
type ReplicaInfo interface {
	AppliedIndex() uint64
	LastConsensusTime() time.Time
}

// StateController maneja GET /v1/state/digest. El digest se recalcula solo
// cuando cambia el snapshot publicado.
type StateController struct {
	coord   *coordinator.Coordinator
	replica ReplicaInfo

	mu     sync.Mutex
	last   *domain.State
	digest domain.Digest
}

func NewStateController(coord *coordinator.Coordinator, replica ReplicaInfo) *StateController {
	return &StateController{coord: coord, replica: replica}
}

func (c *StateController) digestOf(s *domain.State) (domain.Digest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == s {
		return c.digest, nil
	}
	d, err := domain.DigestState(s)
	if err != nil {
		return domain.Digest{}, err
	}
	c.last, c.digest = s, d
	return d, nil
}

// Digest maneja GET /v1/state/digest. Soporta If-None-Match.
func (c *StateController) Digest(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("StateController.Digest"))

	s := coordinator.Query(c.coord, c.coord.Now(), domain.StateView.State)
	d, err := c.digestOf(s)
	if err != nil {
		writeError(w, log, err)
		return
	}

	etag := helpers.ETag(d)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if helpers.IfNoneMatch(r, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	resp := dto.DigestResponse{
		Digest:  d.String(),
		Keys:    s.KeyCount(),
		Issuers: len(s.Issuers()),
	}
	if c.replica != nil {
		resp.AppliedIndex = c.replica.AppliedIndex()
		if ct := c.replica.LastConsensusTime(); !ct.IsZero() {
			resp.ConsensusTime = ct.Unix()
		}
	}
	helpers.Write(w, r, http.StatusOK, resp)
}
