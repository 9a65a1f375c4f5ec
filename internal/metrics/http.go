package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Número total de requests procesadas",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Latencia de los requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_inflight_requests",
		Help: "Requests en vuelo por método y ruta",
	}, []string{"method", "path"})

	// LeaderRejects cuenta escrituras rechazadas o redirigidas en un follower.
	LeaderRejects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_leader_rejects_total",
		Help: "Escrituras recibidas por un follower",
	}, []string{"outcome"}) // outcome: conflict|redirect
)

// RegisterHTTP registra las métricas HTTP.
func RegisterHTTP(reg prometheus.Registerer) error {
	return register(reg, HTTPRequestsTotal, HTTPRequestDuration, HTTPInflight, LeaderRejects)
}

// RegisterAll registra todas las métricas del servicio.
func RegisterAll(reg prometheus.Registerer) error {
	if err := RegisterRaft(reg); err != nil {
		return err
	}
	if err := RegisterValidity(reg); err != nil {
		return err
	}
	return RegisterHTTP(reg)
}
