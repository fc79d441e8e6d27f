package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// lifecycleOps counts operations by name and outcome, where outcome is
	// "ok" or the error kind.
	lifecycleOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_operations_total",
			Help: "Request lifecycle operations by outcome.",
		},
		[]string{"op", "outcome"},
	)

	// lifecycleRetries counts retried follow-up attempts.
	lifecycleRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_retries_total",
			Help: "Retried attempts of idempotent lifecycle steps.",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(lifecycleOps, lifecycleRetries)
}

// observe records the outcome of op. Use it as `defer observe(op, &err)`.
func observe(op string, err *error) {
	outcome := "ok"
	if *err != nil {
		outcome = string(KindOf(*err))
		if outcome == "" {
			outcome = "internal"
		}
	}
	lifecycleOps.WithLabelValues(op, outcome).Inc()
}
