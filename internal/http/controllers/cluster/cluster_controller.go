// Package cluster contiene el controller de administración del cluster Raft.
package cluster

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appcluster "github.com/dropDatabas3/dtva/internal/cluster"
	dto "github.com/dropDatabas3/dtva/internal/http/dto/cluster"
	httperrors "github.com/dropDatabas3/dtva/internal/http/errors"
	"github.com/dropDatabas3/dtva/internal/http/helpers"
	svc "github.com/dropDatabas3/dtva/internal/http/services/cluster"
	"github.com/dropDatabas3/dtva/internal/observability/logger"
)

// ClusterController maneja /v1/cluster.
type ClusterController struct {
	service svc.ClusterService
}

func NewClusterController(service svc.ClusterService) *ClusterController {
	return &ClusterController{service: service}
}

// GetNodes maneja GET /v1/cluster/nodes.
func (c *ClusterController) GetNodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("ClusterController.GetNodes"))

	nodes, err := c.service.GetNodes(ctx)
	if err != nil {
		c.writeError(w, log, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.NodesResponse{Nodes: nodes})
}

// GetStats maneja GET /v1/cluster/stats.
func (c *ClusterController) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("ClusterController.GetStats"))

	stats, err := c.service.GetStats(ctx)
	if err != nil {
		c.writeError(w, log, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.StatsResponse{Stats: stats})
}

// AddNode maneja POST /v1/cluster/nodes.
func (c *ClusterController) AddNode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("ClusterController.AddNode"))

	var req dto.AddNodeRequest
	if !helpers.ReadBody(w, r, &req) {
		return
	}
	if err := c.service.AddNode(ctx, req); err != nil {
		c.writeError(w, log, err)
		return
	}
	log.Info("node added", logger.NodeID(req.ID), logger.String("address", req.Address))
	helpers.WriteJSON(w, http.StatusCreated, map[string]string{"message": "node added"})
}

// RemoveNode maneja DELETE /v1/cluster/nodes/{id}.
func (c *ClusterController) RemoveNode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("ClusterController.RemoveNode"))

	id := chi.URLParam(r, "id")
	if err := c.service.RemoveNode(ctx, id); err != nil {
		c.writeError(w, log, err)
		return
	}
	log.Info("node removed", logger.NodeID(id))
	helpers.WriteJSON(w, http.StatusOK, map[string]string{"message": "node removed"})
}

// Snapshot maneja POST /v1/cluster/snapshot.
func (c *ClusterController) Snapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("ClusterController.Snapshot"))

	taken, err := c.service.Snapshot(ctx)
	if err != nil {
		c.writeError(w, log, err)
		return
	}
	log.Info("snapshot requested", logger.Bool("taken", taken))
	helpers.WriteJSON(w, http.StatusOK, dto.SnapshotResponse{Taken: taken})
}

func (c *ClusterController) writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, svc.ErrInvalidNode):
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail(err.Error()))
	case errors.Is(err, appcluster.ErrNotLeader):
		httperrors.WriteError(w, httperrors.ErrNotLeader.WithDetail(err.Error()))
	case errors.Is(err, context.DeadlineExceeded):
		httperrors.WriteError(w, httperrors.ErrGatewayTimeout)
	default:
		log.Error("cluster operation failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
	}
}
