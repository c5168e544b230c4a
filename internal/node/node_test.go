package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brocaar/ttn-sensor-node/internal/mac"
	"github.com/brocaar/ttn-sensor-node/internal/sensor"
	"github.com/brocaar/ttn-sensor-node/internal/test"
)

const testChipID = 0x240AC4123456

var testPayload = []byte{0x01, 0x67, 0x00, 0xd7, 0x02, 0x68, 0x6e}

func testJoinedEvent() mac.JoinedEvent {
	return mac.JoinedEvent{
		NetID:   3,
		DevAddr: 0x01020304,
		NwkSKey: [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 1, 2, 3, 4, 5, 6, 7, 8},
		AppSKey: [16]byte{8, 7, 6, 5, 4, 3, 2, 1, 8, 7, 6, 5, 4, 3, 2, 1},
	}
}

func TestNodeTick(t *testing.T) {
	assert := require.New(t)
	ctx := context.Background()

	conf := test.GetConfig()
	reader, err := NewSensorReader(conf)
	assert.NoError(err)

	stack := test.NewMACStack()
	n := New(conf, testChipID, func() (mac.Stack, error) { return stack, nil }, test.NewPreferences(), reader)
	assert.NoError(n.start(ctx))
	assert.Equal(1, stack.JoinCount)

	now := time.Now()

	t.Run("Not connected", func(t *testing.T) {
		assert := require.New(t)
		assert.False(n.tick(ctx, now))
		assert.Len(stack.TXData, 0)
	})

	t.Run("Joined", func(t *testing.T) {
		assert := require.New(t)
		stack.QueueEvents(testJoinedEvent())

		assert.False(n.tick(ctx, now))
		assert.Equal([]test.TXData{
			{FPort: 1, Data: testPayload, SeqnoUp: 1},
		}, stack.TXData)
	})

	t.Run("Within interval", func(t *testing.T) {
		assert := require.New(t)
		stack.Pending = false

		assert.False(n.tick(ctx, now.Add(time.Second)))
		assert.Len(stack.TXData, 1)
	})

	t.Run("Busy", func(t *testing.T) {
		assert := require.New(t)
		stack.Pending = true

		assert.False(n.tick(ctx, now.Add(time.Minute)))
		assert.Len(stack.TXData, 1)
	})

	t.Run("Retried after completion", func(t *testing.T) {
		assert := require.New(t)
		stack.QueueEvents(mac.TXCompleteEvent{
			Downlink: &mac.Downlink{FPort: 3, Data: []byte{0x01}},
		})

		assert.False(n.tick(ctx, now.Add(time.Minute+time.Second)))
		assert.Len(stack.TXData, 2)
		assert.Equal(test.TXData{FPort: 1, Data: testPayload, SeqnoUp: 2}, stack.TXData[1])
	})
}

type countingSensor struct {
	reads int
}

func (s *countingSensor) Begin(ctx context.Context) error {
	return nil
}

func (s *countingSensor) ReadTemperatureAndHumidity(ctx context.Context) (sensor.Reading, error) {
	s.reads++
	return sensor.Reading{Temperature: 21.5, Humidity: 55}, nil
}

func TestNodeBusySkipsSensorRead(t *testing.T) {
	assert := require.New(t)
	ctx := context.Background()

	conf := test.GetConfig()
	s := &countingSensor{}
	reader := sensor.NewReader(s, sensor.RetryPolicy{}, 0)

	stack := test.NewMACStack()
	n := New(conf, testChipID, func() (mac.Stack, error) { return stack, nil }, test.NewPreferences(), reader)
	assert.NoError(n.start(ctx))

	stack.QueueEvents(testJoinedEvent())
	stack.Pending = true

	now := time.Now()
	for i := 0; i < 10; i++ {
		assert.False(n.tick(ctx, now.Add(time.Duration(i)*time.Millisecond)))
	}
	assert.Equal(0, s.reads)
	assert.Len(stack.TXData, 0)

	stack.Pending = false
	assert.False(n.tick(ctx, now.Add(time.Second)))
	assert.Equal(1, s.reads)
	assert.Equal([]test.TXData{
		{FPort: 1, Data: testPayload, SeqnoUp: 1},
	}, stack.TXData)
}

func TestNodeJoinFailed(t *testing.T) {
	assert := require.New(t)
	ctx := context.Background()

	conf := test.GetConfig()
	reader, err := NewSensorReader(conf)
	assert.NoError(err)

	stack := test.NewMACStack()
	n := New(conf, testChipID, func() (mac.Stack, error) { return stack, nil }, test.NewPreferences(), reader)
	assert.NoError(n.start(ctx))

	assert.False(n.tick(ctx, time.Now()))

	stack.QueueEvents(mac.JoinFailedEvent{})
	assert.True(n.tick(ctx, time.Now()))
	assert.Len(stack.TXData, 0)
}

func TestNodeDeepSleep(t *testing.T) {
	assert := require.New(t)

	conf := test.GetConfig()
	conf.Node.DeepSleep = true
	conf.Node.UplinkInterval = time.Millisecond
	conf.Node.PumpInterval = time.Millisecond

	reader, err := NewSensorReader(conf)
	assert.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var stacks []*test.MACStack
	newStack := func() (mac.Stack, error) {
		s := test.NewMACStack()

		switch len(stacks) {
		case 0:
			s.QueueEvents(testJoinedEvent())
			s.QueueEvents(mac.TXCompleteEvent{})
		case 1:
			s.QueueEvents()
			s.QueueEvents(mac.TXCompleteEvent{})
		default:
			cancel()
		}

		stacks = append(stacks, s)
		return s, nil
	}

	n := New(conf, testChipID, newStack, test.NewPreferences(), reader)
	assert.NoError(n.Run(ctx))
	assert.Len(stacks, 3)

	// joined, first uplink after the join
	assert.Equal(1, stacks[0].JoinCount)
	assert.EqualValues(1, stacks[0].TXData[0].SeqnoUp)
	assert.True(stacks[0].Closed)

	// restored, the frame-counter continues
	assert.Equal(0, stacks[1].JoinCount)
	assert.NotNil(stacks[1].Session)
	assert.EqualValues(0x01020304, stacks[1].Session.DevAddr)
	assert.EqualValues(2, stacks[1].TXData[0].SeqnoUp)
	assert.True(stacks[1].Closed)

	assert.True(stacks[2].Closed)
	assert.Equal(2, n.sleepCycles)
}

func TestNewSensorReader(t *testing.T) {
	assert := require.New(t)

	conf := test.GetConfig()
	r, err := NewSensorReader(conf)
	assert.NoError(err)

	reading, err := r.Read(context.Background())
	assert.NoError(err)
	assert.Equal(21.5, reading.Temperature)
	assert.Equal(55.0, reading.Humidity)

	conf.Sensor.Type = "dht22"
	_, err = NewSensorReader(conf)
	assert.Error(err)
}
