package mqtt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "virtual_gateway_mqtt_published_count",
		Help: "The number of uplink and tx ack events published by the virtual gateway (per event type).",
	}, []string{"event"})

	pec = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "virtual_gateway_mqtt_publish_error_count",
		Help: "The number of events the virtual gateway failed to publish (per event type).",
	}, []string{"event"})

	drc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "virtual_gateway_mqtt_downlink_received_count",
		Help: "The number of received downlink commands (per result: queued, invalid, other_gateway or dropped).",
	}, []string{"result"})

	vgc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "virtual_gateway_mqtt_connect_count",
		Help: "The number of times the virtual gateway connected to the MQTT broker.",
	})

	vgl = promauto.NewCounter(prometheus.CounterOpts{
		Name: "virtual_gateway_mqtt_connection_lost_count",
		Help: "The number of times the virtual gateway lost the connection to the MQTT broker.",
	})
)

func publishedCounter(event string) prometheus.Counter {
	return pc.With(prometheus.Labels{"event": event})
}

func publishErrorCounter(event string) prometheus.Counter {
	return pec.With(prometheus.Labels{"event": event})
}

func downlinkReceivedCounter(result string) prometheus.Counter {
	return drc.With(prometheus.Labels{"result": result})
}

func connectCounter() prometheus.Counter {
	return vgc
}

func connectionLostCounter() prometheus.Counter {
	return vgl
}
