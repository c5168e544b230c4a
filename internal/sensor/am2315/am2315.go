// Package am2315 implements the AOSONG AM2315 temperature and humidity sensor
// on an I2C bus.
package am2315

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/snksoft/crc"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"

	"github.com/brocaar/ttn-sensor-node/internal/sensor"
)

// DefaultAddress is the I2C address of the AM2315.
const DefaultAddress uint16 = 0x5c

const (
	readRegisters byte = 0x03
	wakeDelay          = 2 * time.Millisecond
	measureDelay       = 10 * time.Millisecond
)

// modbus defines the CRC-16/MODBUS parameters.
var modbus = &crc.Parameters{
	Width:      16,
	Polynomial: 0x8005,
	Init:       0xffff,
	ReflectIn:  true,
	ReflectOut: true,
	FinalXor:   0x0,
}

var (
	errInvalidResponse = errors.New("invalid response")
	errInvalidCRC      = errors.New("invalid crc")
)

// bus is the subset of i2c.Bus used by the driver.
type bus interface {
	Tx(addr uint16, w, r []byte) error
}

// Device implements the AM2315 sensor.
type Device struct {
	bus   bus
	addr  uint16
	close func() error
	sleep func(time.Duration)
}

// ensure Device implements sensor.Sensor
var _ sensor.Sensor = &Device{}

// Open initializes the host drivers and opens the given I2C bus. An empty
// name opens the first available bus.
func Open(name string, addr uint16) (*Device, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "host init error")
	}

	b, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Wrap(err, "open i2c bus error")
	}

	log.WithFields(log.Fields{
		"bus":     b.String(),
		"address": addr,
	}).Info("sensor/am2315: i2c bus opened")

	d := New(b, addr)
	d.close = b.Close
	return d, nil
}

// New creates a new AM2315 on the given bus.
func New(b i2c.Bus, addr uint16) *Device {
	return newDevice(b, addr)
}

func newDevice(b bus, addr uint16) *Device {
	if addr == 0 {
		addr = DefaultAddress
	}

	return &Device{
		bus:   b,
		addr:  addr,
		sleep: time.Sleep,
	}
}

// Begin wakes the sensor and checks that it answers a register read.
func (d *Device) Begin(ctx context.Context) error {
	if _, err := d.read(); err != nil {
		return errors.Wrap(err, "probe error")
	}
	return nil
}

// ReadTemperatureAndHumidity reads the humidity and temperature registers.
func (d *Device) ReadTemperatureAndHumidity(ctx context.Context) (sensor.Reading, error) {
	b, err := d.read()
	if err != nil {
		return sensor.Reading{}, err
	}

	return decode(b), nil
}

// Close closes the bus when it was opened by Open.
func (d *Device) Close() error {
	if d.close == nil {
		return nil
	}
	return d.close()
}

// read returns the four register bytes (humidity high, low, temperature
// high, low).
func (d *Device) read() ([]byte, error) {
	// the sensor sleeps and NACKs the wake-up transaction
	_ = d.bus.Tx(d.addr, []byte{0x00}, nil)
	d.sleep(wakeDelay)

	if err := d.bus.Tx(d.addr, []byte{readRegisters, 0x00, 0x04}, nil); err != nil {
		return nil, errors.Wrap(err, "write read request error")
	}
	d.sleep(measureDelay)

	resp := make([]byte, 8)
	if err := d.bus.Tx(d.addr, nil, resp); err != nil {
		return nil, errors.Wrap(err, "read response error")
	}

	if resp[0] != readRegisters || resp[1] != 0x04 {
		return nil, errors.Wrapf(errInvalidResponse, "function 0x%02x, length %d", resp[0], resp[1])
	}

	// crc is sent low byte first
	expected := uint16(resp[7])<<8 | uint16(resp[6])
	if got := checksum(resp[:6]); got != expected {
		return nil, errors.Wrapf(errInvalidCRC, "expected 0x%04x, got 0x%04x", expected, got)
	}

	return resp[2:6], nil
}

func decode(b []byte) sensor.Reading {
	hum := uint16(b[0])<<8 | uint16(b[1])
	temp := uint16(b[2]&0x7f)<<8 | uint16(b[3])

	r := sensor.Reading{
		Humidity:    float64(hum) / 10,
		Temperature: float64(temp) / 10,
	}
	if b[2]&0x80 != 0 {
		r.Temperature = -r.Temperature
	}
	return r
}

func checksum(b []byte) uint16 {
	return uint16(crc.CalculateCRC(modbus, b))
}
