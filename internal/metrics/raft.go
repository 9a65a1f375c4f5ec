package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Métricas de raft y de la máquina de estados. Viven en un paquete aparte para
// evitar ciclos de import entre cluster y http.

var (
	RaftApplyLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "raft_apply_latency_ms",
		Help:    "Latencia de raft.Apply en milisegundos",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	RaftLeadershipChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "raft_leadership_changes_total",
		Help: "Cambios de rol a leader",
	})

	RaftLogSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "raft_log_size_bytes",
		Help: "Tamaño en bytes del archivo de log/stable (BoltDB)",
	})

	RaftAppliedIndex = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "raft_fsm_applied_index",
		Help: "Último índice de log aplicado por la FSM",
	})
)

// RegisterRaft registra las métricas de raft en reg (o en el default si es nil).
func RegisterRaft(reg prometheus.Registerer) error {
	return register(reg, RaftApplyLatency, RaftLeadershipChanges, RaftLogSizeBytes, RaftAppliedIndex)
}

func register(reg prometheus.Registerer, cs ...prometheus.Collector) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}
