// Package test contains the fakes and helpers shared by the package tests.
package test

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/brocaar/ttn-sensor-node/internal/config"
)

func init() {
	log.SetLevel(log.ErrorLevel)
}

// GetConfig returns the test configuration.
func GetConfig() config.Config {
	log.SetLevel(log.FatalLevel)

	var c config.Config
	c.Device.AppEUI = "70B3D57ED0000000"
	c.Device.AppKey = "000102030405060708090A0B0C0D0E0F"
	c.Device.ChipID = "240AC4123456"

	c.Storage.Type = "memory"
	c.Storage.Namespace = "lora"

	c.Redis.Servers = []string{"localhost:6379"}
	c.Redis.KeyPrefix = "test:"

	c.PostgreSQL.DSN = "postgres://localhost/ttn_sensor_node_test?sslmode=disable"
	c.PostgreSQL.Automigrate = true

	c.LoRaWAN.Band = "EU868"
	c.LoRaWAN.TTNChannelPlan = true
	c.LoRaWAN.DataRate = 3
	c.LoRaWAN.TXPower = 14
	c.LoRaWAN.RXWindow = time.Second
	c.LoRaWAN.JoinRetryInterval = 10 * time.Second

	c.Gateway.GatewayID = "0102030405060708"
	c.Gateway.Backend.Type = "mqtt"
	c.Gateway.Backend.MQTT.Server = "tcp://localhost:1883"
	c.Gateway.Backend.MQTT.EventTopicTemplate = "gateway/{{ .GatewayID }}/event/{{ .EventType }}"
	c.Gateway.Backend.MQTT.CommandTopicTemplate = "gateway/{{ .GatewayID }}/command/{{ .CommandType }}"

	c.Sensor.Type = "simulated"
	c.Sensor.Retry.MaxRetries = 5
	c.Sensor.Retry.Backoff = time.Millisecond
	c.Sensor.Simulated.Temperature = 21.5
	c.Sensor.Simulated.Humidity = 55

	c.Node.FPort = 1
	c.Node.UplinkInterval = time.Minute
	c.Node.PumpInterval = 10 * time.Millisecond

	if v := os.Getenv("TEST_REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("TEST_POSTGRES_DSN"); v != "" {
		c.PostgreSQL.DSN = v
	}
	if v := os.Getenv("TEST_MQTT_SERVER"); v != "" {
		c.Gateway.Backend.MQTT.Server = v
	}

	return c
}

// Clock implements a manually advanced clock.
type Clock struct {
	now time.Time
}

// NewClock returns a new Clock set to the given time.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current time of the clock.
func (c *Clock) Now() time.Time {
	return c.now
}

// Add advances the clock by the given duration.
func (c *Clock) Add(d time.Duration) {
	c.now = c.now.Add(d)
}
