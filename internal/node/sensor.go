package node

import (
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/ttn-sensor-node/internal/config"
	"github.com/brocaar/ttn-sensor-node/internal/sensor"
	"github.com/brocaar/ttn-sensor-node/internal/sensor/am2315"
	"github.com/brocaar/ttn-sensor-node/internal/sensor/simulated"
)

// NewSensorReader returns the sensor reader for the configured sensor type.
func NewSensorReader(c config.Config) (*sensor.Reader, error) {
	var s sensor.Sensor

	switch c.Sensor.Type {
	case "", "simulated":
		s = simulated.New(c.Sensor.Simulated.Temperature, c.Sensor.Simulated.Humidity, c.Sensor.Simulated.StdDev)
	case "am2315":
		d, err := am2315.Open(c.Sensor.I2CBus, c.Sensor.I2CAddress)
		if err != nil {
			return nil, errors.Wrap(err, "open am2315 error")
		}
		s = d
	default:
		return nil, fmt.Errorf("node: unknown sensor type: %s", c.Sensor.Type)
	}

	policy := sensor.DefaultRetryPolicy
	if c.Sensor.Retry.MaxRetries != 0 {
		policy.MaxRetries = c.Sensor.Retry.MaxRetries
	}
	if c.Sensor.Retry.Backoff != 0 {
		policy.Backoff = c.Sensor.Retry.Backoff
	}

	log.WithFields(log.Fields{
		"type":        c.Sensor.Type,
		"max_retries": policy.MaxRetries,
		"backoff":     policy.Backoff,
	}).Info("node: sensor configured")

	return sensor.NewReader(s, policy, c.Sensor.SettleDelay), nil
}
