package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	poc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_preferences_operation_count",
		Help: "The number of preferences write operations (per backend and operation).",
	}, []string{"backend", "operation"})
)

func preferencesOperationCounter(backend, operation string) prometheus.Counter {
	return poc.With(prometheus.Labels{"backend": backend, "operation": operation})
}
