package am2315

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brocaar/ttn-sensor-node/internal/sensor"
)

var errBus = errors.New("bus error")

type tx struct {
	addr uint16
	w    []byte
	r    int
}

type testBus struct {
	txs      []tx
	response []byte
	readErr  error
}

func (b *testBus) Tx(addr uint16, w, r []byte) error {
	b.txs = append(b.txs, tx{addr: addr, w: w, r: len(r)})

	// wake-up
	if len(w) == 1 {
		return errors.New("nack")
	}

	if len(r) != 0 {
		if b.readErr != nil {
			return b.readErr
		}
		copy(r, b.response)
	}
	return nil
}

func TestChecksum(t *testing.T) {
	assert := require.New(t)
	assert.Equal(uint16(0x4b37), checksum([]byte("123456789")))
}

func TestReadTemperatureAndHumidity(t *testing.T) {
	tests := []struct {
		name     string
		response []byte
		readErr  error
		expected sensor.Reading
		err      error
	}{
		{
			name:     "valid",
			response: []byte{0x03, 0x04, 0x02, 0x26, 0x00, 0xd7, 0x51, 0xc5},
			expected: sensor.Reading{Temperature: 21.5, Humidity: 55},
		},
		{
			name:     "negative temperature",
			response: []byte{0x03, 0x04, 0x03, 0xe8, 0x80, 0x65, 0xd0, 0x73},
			expected: sensor.Reading{Temperature: -10.1, Humidity: 100},
		},
		{
			name:     "invalid crc",
			response: []byte{0x03, 0x04, 0x02, 0x26, 0x00, 0xd7, 0x52, 0xc5},
			err:      errInvalidCRC,
		},
		{
			name:     "invalid function",
			response: []byte{0x83, 0x04, 0x02, 0x26, 0x00, 0xd7, 0x51, 0xc5},
			err:      errInvalidResponse,
		},
		{
			name:    "bus error",
			readErr: errBus,
			err:     errBus,
		},
	}

	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			assert := require.New(t)

			b := &testBus{response: tst.response, readErr: tst.readErr}
			d := newDevice(b, 0)
			d.sleep = func(time.Duration) {}

			r, err := d.ReadTemperatureAndHumidity(context.Background())
			if tst.err != nil {
				assert.True(errors.Is(err, tst.err))
				return
			}

			assert.NoError(err)
			assert.InDelta(tst.expected.Temperature, r.Temperature, 0.001)
			assert.InDelta(tst.expected.Humidity, r.Humidity, 0.001)

			assert.Equal([]tx{
				{addr: DefaultAddress, w: []byte{0x00}},
				{addr: DefaultAddress, w: []byte{0x03, 0x00, 0x04}},
				{addr: DefaultAddress, r: 8},
			}, b.txs)
		})
	}
}

func TestBegin(t *testing.T) {
	assert := require.New(t)

	b := &testBus{readErr: errors.New("no device")}
	d := newDevice(b, 0x5c)
	d.sleep = func(time.Duration) {}
	assert.Error(d.Begin(context.Background()))

	b.readErr = nil
	b.response = []byte{0x03, 0x04, 0x02, 0x26, 0x00, 0xd7, 0x51, 0xc5}
	assert.NoError(d.Begin(context.Background()))
	assert.NoError(d.Close())
}
