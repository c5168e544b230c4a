package softmac

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jrc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "softmac_join_request_count",
		Help: "The number of transmitted join-requests.",
	})

	uc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "softmac_uplink_count",
		Help: "The number of transmitted data uplinks.",
	})

	dc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "softmac_downlink_count",
		Help: "The number of received (and valid) data downlinks.",
	})

	imc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "softmac_invalid_mic_count",
		Help: "The number of received downlinks with an invalid MIC.",
	})
)

func joinRequestCounter() prometheus.Counter {
	return jrc
}

func uplinkCounter() prometheus.Counter {
	return uc
}

func downlinkCounter() prometheus.Counter {
	return dc
}

func invalidMICCounter() prometheus.Counter {
	return imc
}
