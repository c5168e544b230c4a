package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_join_count",
		Help: "The number of started OTAA joins.",
	})

	rc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_restore_count",
		Help: "The number of sessions restored from the persisted state.",
	})

	pfc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_persist_failure_count",
		Help: "The number of failed session persist attempts.",
	})

	sc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_send_count",
		Help: "The number of queued uplinks.",
	})

	sbc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_send_busy_count",
		Help: "The number of uplinks rejected because the MAC was busy.",
	})

	ec = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_event_count",
		Help: "The number of handled MAC events (per event).",
	}, []string{"event"})
)

func eventCounter(e string) prometheus.Counter {
	return ec.With(prometheus.Labels{"event": e})
}
