package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TxApplied cuenta transacciones aplicadas por tipo.
	TxApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dtva_transactions_applied_total",
		Help: "Transacciones aplicadas al estado",
	}, []string{"kind"})

	// TxIgnored cuenta transacciones absorbidas (duplicadas, clave desconocida o terminada).
	TxIgnored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dtva_transactions_ignored_total",
		Help: "Transacciones ignoradas por la función de transición",
	})

	KeysCollected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dtva_keys_collected_total",
		Help: "Validity keys eliminadas por GC al pasar su hard expiry",
	})

	KeysStored = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dtva_keys_stored",
		Help: "Validity keys en el snapshot actual",
	})

	IssuersRegistered = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dtva_issuers",
		Help: "Issuers registrados",
	})

	// FSMHalted vale 1 cuando la réplica dejó de aplicar por un error fatal.
	FSMHalted = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dtva_fsm_halted",
		Help: "1 si la FSM se detuvo por un error de decode",
	})

	InteractivityDebounced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dtva_interactivity_debounced_total",
		Help: "Señales de interactividad descartadas por debounce local",
	})
)

// RegisterValidity registra las métricas de la máquina de estados.
func RegisterValidity(reg prometheus.Registerer) error {
	return register(reg, TxApplied, TxIgnored, KeysCollected, KeysStored, IssuersRegistered, FSMHalted, InteractivityDebounced)
}
