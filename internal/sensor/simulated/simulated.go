// Package simulated implements a sensor returning normally distributed
// readings around configured values.
package simulated

import (
	"context"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/brocaar/ttn-sensor-node/internal/sensor"
)

// Sensor implements a simulated sensor.
type Sensor struct {
	sync.Mutex

	temperature distuv.Normal
	humidity    distuv.Normal

	// Failures is the number of operations that fail before the sensor
	// starts answering.
	Failures int
}

// ensure Sensor implements sensor.Sensor
var _ sensor.Sensor = &Sensor{}

// New creates a new simulated sensor.
func New(temperature, humidity, stdDev float64) *Sensor {
	return &Sensor{
		temperature: distuv.Normal{Mu: temperature, Sigma: stdDev},
		humidity:    distuv.Normal{Mu: humidity, Sigma: stdDev},
	}
}

// Begin method.
func (s *Sensor) Begin(ctx context.Context) error {
	return s.fail()
}

// ReadTemperatureAndHumidity returns a reading. Readings are rounded to the
// 0.1 resolution of the real sensor and the humidity is clamped to 0-100%.
func (s *Sensor) ReadTemperatureAndHumidity(ctx context.Context) (sensor.Reading, error) {
	if err := s.fail(); err != nil {
		return sensor.Reading{}, err
	}

	return sensor.Reading{
		Temperature: round(s.temperature.Rand()),
		Humidity:    math.Max(0, math.Min(100, round(s.humidity.Rand()))),
	}, nil
}

func (s *Sensor) fail() error {
	s.Lock()
	defer s.Unlock()

	if s.Failures > 0 {
		s.Failures--
		return errSimulatedFailure
	}
	return nil
}

func round(v float64) float64 {
	return math.Round(v*10) / 10
}
