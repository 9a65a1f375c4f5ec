// Package cluster contiene el service de administración del cluster Raft.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/raft"

	appcluster "github.com/dropDatabas3/dtva/internal/cluster"
	dto "github.com/dropDatabas3/dtva/internal/http/dto/cluster"
)

// ErrInvalidNode indica un id o address vacío.
var ErrInvalidNode = errors.New("invalid node")

// Membership es lo que el service usa del nodo Raft.
type Membership interface {
	NodeID() string
	IsLeader() bool
	LeaderID() string
	Stats() map[string]string
	GetConfiguration(ctx context.Context) (raft.Configuration, error)
	AddVoter(ctx context.Context, id, addr string) error
	RemoveServer(ctx context.Context, id string) error
	Barrier(ctx context.Context) error
	Snapshot() error
}

// ClusterService define operaciones de gestión de cluster.
type ClusterService interface {
	GetNodes(ctx context.Context) ([]dto.NodeDTO, error)
	GetStats(ctx context.Context) (dto.StatsDTO, error)
	AddNode(ctx context.Context, req dto.AddNodeRequest) error
	RemoveNode(ctx context.Context, nodeID string) error
	// Snapshot fuerza un snapshot local; false si no había nada nuevo.
	Snapshot(ctx context.Context) (bool, error)
}

type clusterService struct {
	node Membership
}

func NewClusterService(node Membership) ClusterService {
	return &clusterService{node: node}
}

func (s *clusterService) GetNodes(ctx context.Context) ([]dto.NodeDTO, error) {
	conf, err := s.node.GetConfiguration(ctx)
	if err != nil {
		return nil, fmt.Errorf("get configuration: %w", err)
	}
	leader, self := s.node.LeaderID(), s.node.NodeID()
	nodes := make([]dto.NodeDTO, 0, len(conf.Servers))
	for _, srv := range conf.Servers {
		nodes = append(nodes, dto.NodeDTO{
			ID:       string(srv.ID),
			Address:  string(srv.Address),
			Suffrage: srv.Suffrage.String(),
			Leader:   leader != "" && (leader == string(srv.ID) || leader == string(srv.Address)),
			Self:     string(srv.ID) == self,
		})
	}
	return nodes, nil
}

func (s *clusterService) GetStats(_ context.Context) (dto.StatsDTO, error) {
	st := s.node.Stats()
	numPeers, _ := strconv.Atoi(st["num_peers"])
	out := dto.StatsDTO{
		NodeID:       s.node.NodeID(),
		Role:         strings.ToLower(st["state"]),
		LeaderID:     s.node.LeaderID(),
		Term:         parseUint(st["term"]),
		CommitIndex:  parseUint(st["commit_index"]),
		AppliedIndex: parseUint(st["applied_index"]),
		NumPeers:     numPeers,
	}
	out.Healthy = out.LeaderID != ""
	return out, nil
}

func (s *clusterService) AddNode(ctx context.Context, req dto.AddNodeRequest) error {
	id, addr := strings.TrimSpace(req.ID), strings.TrimSpace(req.Address)
	if id == "" || addr == "" {
		return fmt.Errorf("%w: id and address are required", ErrInvalidNode)
	}
	if !s.node.IsLeader() {
		return fmt.Errorf("%w: leader is %q", appcluster.ErrNotLeader, s.node.LeaderID())
	}
	return s.node.AddVoter(ctx, id, addr)
}

func (s *clusterService) RemoveNode(ctx context.Context, nodeID string) error {
	nodeID = strings.TrimSpace(nodeID)
	if nodeID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidNode)
	}
	if !s.node.IsLeader() {
		return fmt.Errorf("%w: leader is %q", appcluster.ErrNotLeader, s.node.LeaderID())
	}
	return s.node.RemoveServer(ctx, nodeID)
}

func (s *clusterService) Snapshot(ctx context.Context) (bool, error) {
	// En el líder, Barrier garantiza que el snapshot incluya todo lo comprometido.
	if s.node.IsLeader() {
		if err := s.node.Barrier(ctx); err != nil {
			return false, fmt.Errorf("barrier: %w", err)
		}
	}
	if err := s.node.Snapshot(); err != nil {
		if errors.Is(err, raft.ErrNothingNewToSnapshot) {
			return false, nil
		}
		return false, fmt.Errorf("snapshot: %w", err)
	}
	return true, nil
}

func parseUint(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}
