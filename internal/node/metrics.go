package node

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "node_uplink_count",
		Help: "The number of sensor readings queued for transmission.",
	})

	dc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "node_downlink_count",
		Help: "The number of received downlink payloads (per fport).",
	}, []string{"f_port"})
)

func uplinkCounter() prometheus.Counter {
	return uc
}

func downlinkCounter(fPort uint8) prometheus.Counter {
	return dc.With(prometheus.Labels{"f_port": strconv.Itoa(int(fPort))})
}
