package sensor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rac = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sensor_read_attempt_count",
		Help: "The number of sensor attempts (per operation).",
	}, []string{"operation"})

	rfc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sensor_read_failure_count",
		Help: "The number of sensor operations that failed after all retries (per operation).",
	}, []string{"operation"})
)

func readAttemptCounter(op string) prometheus.Counter {
	return rac.With(prometheus.Labels{"operation": op})
}

func readFailureCounter(op string) prometheus.Counter {
	return rfc.With(prometheus.Labels{"operation": op})
}
