// Package sensor reads the temperature and humidity sensor with a bounded
// retry policy.
package sensor

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Errors
var (
	ErrSensorNotFound = errors.New("sensor not found")
	ErrReadFailed     = errors.New("sensor read failed")
)

// Reading holds a single sensor reading.
type Reading struct {
	// Temperature in degrees Celsius.
	Temperature float64
	// Humidity in percent relative humidity.
	Humidity float64
}

func (r Reading) String() string {
	return fmt.Sprintf("temp %.2f hum %.2f", r.Temperature, r.Humidity)
}

// Sensor defines the interface of a temperature and humidity sensor.
type Sensor interface {
	// Begin initializes the sensor. It can be called multiple times.
	Begin(ctx context.Context) error

	// ReadTemperatureAndHumidity performs a single measurement.
	ReadTemperatureAndHumidity(ctx context.Context) (Reading, error)
}

// RetryPolicy defines how often a failed operation is retried.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Backoff is the delay between two attempts.
	Backoff time.Duration
}

// DefaultRetryPolicy retries 5 times with 500ms in between.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 5,
	Backoff:    500 * time.Millisecond,
}

// Reader reads a Sensor using a RetryPolicy.
type Reader struct {
	sensor      Sensor
	policy      RetryPolicy
	settleDelay time.Duration
}

// NewReader creates a new Reader. The settle delay is the time waited
// between initializing the sensor and reading it.
func NewReader(s Sensor, p RetryPolicy, settleDelay time.Duration) *Reader {
	return &Reader{
		sensor:      s,
		policy:      p,
		settleDelay: settleDelay,
	}
}

// Read initializes the sensor and reads it. After exhausting the retries it
// returns ErrSensorNotFound or ErrReadFailed.
func (r *Reader) Read(ctx context.Context) (Reading, error) {
	err := r.retry(ctx, "begin", func() error {
		readAttemptCounter("begin").Inc()
		return r.sensor.Begin(ctx)
	})
	if err != nil {
		readFailureCounter("begin").Inc()
		return Reading{}, errors.Wrap(ErrSensorNotFound, err.Error())
	}

	if r.settleDelay > 0 {
		select {
		case <-ctx.Done():
			return Reading{}, ctx.Err()
		case <-time.After(r.settleDelay):
		}
	}

	var reading Reading
	err = r.retry(ctx, "read", func() error {
		readAttemptCounter("read").Inc()
		var err error
		reading, err = r.sensor.ReadTemperatureAndHumidity(ctx)
		return err
	})
	if err != nil {
		readFailureCounter("read").Inc()
		return Reading{}, errors.Wrap(ErrReadFailed, err.Error())
	}

	log.WithFields(log.Fields{
		"temperature": reading.Temperature,
		"humidity":    reading.Humidity,
	}).Info("sensor: reading")

	return reading, nil
}

func (r *Reader) retry(ctx context.Context, op string, f func() error) error {
	var b backoff.BackOff = backoff.NewConstantBackOff(r.policy.Backoff)
	b = backoff.WithMaxRetries(b, uint64(r.policy.MaxRetries))
	b = backoff.WithContext(b, ctx)

	return backoff.RetryNotify(f, b, func(err error, d time.Duration) {
		log.WithError(err).WithFields(log.Fields{
			"operation": op,
			"retry_in":  d,
		}).Warning("sensor: operation failed, retrying")
	})
}
