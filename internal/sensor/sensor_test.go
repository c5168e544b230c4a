package sensor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testSensor struct {
	beginErrors int
	readErrors  int
	beginCalls  int
	readCalls   int
	reading     Reading
}

func (s *testSensor) Begin(ctx context.Context) error {
	s.beginCalls++
	if s.beginErrors > 0 {
		s.beginErrors--
		return errors.New("not found")
	}
	return nil
}

func (s *testSensor) ReadTemperatureAndHumidity(ctx context.Context) (Reading, error) {
	s.readCalls++
	if s.readErrors > 0 {
		s.readErrors--
		return Reading{Temperature: 99}, errors.New("crc error")
	}
	return s.reading, nil
}

func TestReader(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, Backoff: time.Millisecond}
	reading := Reading{Temperature: 21.5, Humidity: 55}

	tests := []struct {
		name        string
		beginErrors int
		readErrors  int
		beginCalls  int
		readCalls   int
		expected    Reading
		err         error
	}{
		{
			name:       "first attempt",
			beginCalls: 1,
			readCalls:  1,
			expected:   reading,
		},
		{
			name:        "begin retried",
			beginErrors: 5,
			beginCalls:  6,
			readCalls:   1,
			expected:    reading,
		},
		{
			name:        "sensor not found",
			beginErrors: 6,
			beginCalls:  6,
			err:         ErrSensorNotFound,
		},
		{
			name:       "read retried",
			readErrors: 3,
			beginCalls: 1,
			readCalls:  4,
			expected:   reading,
		},
		{
			name:       "read failed",
			readErrors: 10,
			beginCalls: 1,
			readCalls:  6,
			err:        ErrReadFailed,
		},
	}

	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			assert := require.New(t)

			s := &testSensor{
				beginErrors: tst.beginErrors,
				readErrors:  tst.readErrors,
				reading:     reading,
			}
			r := NewReader(s, policy, time.Millisecond)

			out, err := r.Read(context.Background())
			if tst.err != nil {
				assert.True(errors.Is(err, tst.err))
				assert.Equal(Reading{}, out)
			} else {
				assert.NoError(err)
				assert.Equal(tst.expected, out)
			}

			assert.Equal(tst.beginCalls, s.beginCalls)
			assert.Equal(tst.readCalls, s.readCalls)
		})
	}
}

func TestReaderContextCanceled(t *testing.T) {
	assert := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &testSensor{}
	r := NewReader(s, DefaultRetryPolicy, time.Hour)
	_, err := r.Read(ctx)
	assert.Equal(context.Canceled, err)
}
