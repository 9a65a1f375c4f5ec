// Package cluster contiene los DTOs de administración del cluster Raft.
package cluster

// NodeDTO es un servidor de la configuración Raft.
type NodeDTO struct {
	ID       string `json:"id"`
	Address  string `json:"address"`
	Suffrage string `json:"suffrage"` // Voter | Nonvoter | Staging
	Leader   bool   `json:"leader"`
	Self     bool   `json:"self"`
}

// StatsDTO resume el estado Raft del nodo local.
type StatsDTO struct {
	NodeID       string `json:"node_id"`
	Role         string `json:"role"`
	LeaderID     string `json:"leader_id"`
	Term         uint64 `json:"term"`
	CommitIndex  uint64 `json:"commit_index"`
	AppliedIndex uint64 `json:"applied_index"`
	NumPeers     int    `json:"num_peers"`
	Healthy      bool   `json:"healthy"`
}

// AddNodeRequest es el body de POST /v1/cluster/nodes.
type AddNodeRequest struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

type NodesResponse struct {
	Nodes []NodeDTO `json:"nodes"`
}

type StatsResponse struct {
	Stats StatsDTO `json:"stats"`
}

// SnapshotResponse es la respuesta de POST /v1/cluster/snapshot.
type SnapshotResponse struct {
	Taken bool `json:"taken"`
}
