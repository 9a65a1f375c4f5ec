// Package health contiene el service para health checks.
package health

import (
	"context"
	"fmt"
	"os"
	"time"

	dto "github.com/dropDatabas3/dtva/internal/http/dto/health"
	"github.com/dropDatabas3/dtva/internal/observability/logger"
)

// HealthService define las operaciones de health check.
type HealthService interface {
	Check(ctx context.Context) dto.HealthResponse
}

// ClusterChecker abstrae las operaciones de cluster para health.
type ClusterChecker interface {
	IsLeader() bool
	LeaderID() string
	Stats() map[string]string
	KnownPeers() int
}

// ReplicaChecker abstrae la FSM local.
type ReplicaChecker interface {
	Halted() error
	AppliedIndex() uint64
	LastConsensusTime() time.Time
}

// Deps contiene las dependencias inyectables para el health service.
type Deps struct {
	ClusterChecker  ClusterChecker
	Replica         ReplicaChecker
	LeaderRedirects []string
	// MaxConsensusLag: si el último consensus time es más viejo, el estado es degraded (0 = sin chequeo).
	MaxConsensusLag time.Duration
	Now             func() time.Time
}

type healthService struct {
	deps Deps
}

// NewHealthService crea un nuevo service de health check.
func NewHealthService(deps Deps) HealthService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &healthService{deps: deps}
}

const componentHealth = "health"

func (s *healthService) Check(ctx context.Context) dto.HealthResponse {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component(componentHealth),
		logger.Op("Check"),
	)

	now := s.deps.Now().UTC()
	response := dto.HealthResponse{
		Components: make(map[string]dto.HealthStatus),
		Timestamp:  now,
	}
	if v := os.Getenv("SERVICE_VERSION"); v != "" {
		response.Version = v
	}
	if git := os.Getenv("SERVICE_COMMIT"); git != "" {
		response.Commit = git
	}

	hasErrors := false
	hasCriticalErrors := false

	// 1) Réplica (crítico)
	if s.deps.Replica != nil {
		if err := s.deps.Replica.Halted(); err != nil {
			response.Components["replica"] = dto.HealthStatus{
				Status:  "error",
				Message: fmt.Sprintf("halted: %v", err),
			}
			hasCriticalErrors = true
			log.Error("replica halted", logger.Err(err))
		} else {
			response.Components["replica"] = dto.HealthStatus{
				Status:  "ok",
				Message: fmt.Sprintf("applied_index=%d", s.deps.Replica.AppliedIndex()),
			}
		}

		// 2) Frescura del consensus time (no crítico)
		last := s.deps.Replica.LastConsensusTime()
		switch {
		case s.deps.MaxConsensusLag <= 0:
			response.Components["consensus_time"] = dto.HealthStatus{Status: "disabled"}
		case last.IsZero():
			response.Components["consensus_time"] = dto.HealthStatus{Status: "ok", Message: "no entries applied yet"}
		case now.Sub(last) > s.deps.MaxConsensusLag:
			response.Components["consensus_time"] = dto.HealthStatus{
				Status:  "error",
				Message: fmt.Sprintf("last consensus time %s is %s old", last.Format(time.RFC3339), now.Sub(last).Truncate(time.Second)),
			}
			hasErrors = true
		default:
			response.Components["consensus_time"] = dto.HealthStatus{Status: "ok"}
		}
	} else {
		response.Components["replica"] = dto.HealthStatus{
			Status:  "error",
			Message: "fsm not initialized",
		}
		hasCriticalErrors = true
	}

	// 3) Cluster: sin líder conocido => degraded
	if s.deps.ClusterChecker != nil && s.deps.ClusterChecker.LeaderID() == "" {
		response.Components["leader"] = dto.HealthStatus{Status: "error", Message: "no known leader"}
		hasErrors = true
	} else if s.deps.ClusterChecker != nil {
		response.Components["leader"] = dto.HealthStatus{Status: "ok"}
	}
	response.Cluster = s.buildClusterInfo()

	if hasCriticalErrors {
		response.Status = "unavailable"
	} else if hasErrors {
		response.Status = "degraded"
	} else {
		response.Status = "ready"
	}

	return response
}

func (s *healthService) buildClusterInfo() map[string]any {
	mode := "off"
	if s.deps.ClusterChecker != nil {
		mode = "embedded"
	}

	clusterInfo := map[string]any{
		"mode": mode,
	}
	if s.deps.ClusterChecker == nil {
		return clusterInfo
	}

	role := "follower"
	if s.deps.ClusterChecker.IsLeader() {
		role = "leader"
	}

	st := s.deps.ClusterChecker.Stats()
	raftBlock := map[string]any{}
	for _, key := range []string{"applied_index", "commit_index", "last_log_index", "last_snapshot_index", "num_peers", "state", "last_contact"} {
		if v, ok := st[key]; ok {
			raftBlock[key] = v
		}
	}

	clusterInfo["role"] = role
	clusterInfo["leader_id"] = s.deps.ClusterChecker.LeaderID()
	if len(s.deps.LeaderRedirects) > 0 {
		clusterInfo["leader_redirects"] = s.deps.LeaderRedirects
	}
	if n := s.deps.ClusterChecker.KnownPeers(); n > 0 {
		clusterInfo["peers_configured"] = n
	}
	if v, ok := st["num_peers"]; ok {
		clusterInfo["peers_connected"] = v
	}
	if len(raftBlock) > 0 {
		clusterInfo["raft"] = raftBlock
	}
	return clusterInfo
}
