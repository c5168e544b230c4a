package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brocaar/ttn-sensor-node/internal/storage"
)

func TestSessionStateFields(t *testing.T) {
	assert := require.New(t)

	s := SessionState{
		NetID:   0x00000013,
		DevAddr: 0x26011234,
		NwkSKey: testNwkSKey,
		AppSKey: testAppSKey,
	}

	fields := s.Fields()
	assert.Equal([]byte{0x13, 0x00, 0x00, 0x00}, fields["netId"])
	assert.Equal([]byte{0x34, 0x12, 0x01, 0x26}, fields["devAddr"])
	assert.Equal(testNwkSKey[:], fields["nwkKey"])
	assert.Equal(testAppSKey[:], fields["artKey"])

	var out SessionState
	assert.NoError(out.UnmarshalFields(fields))
	assert.Equal(s, out)
}

func TestUnmarshalFieldsLeavesStateUntouched(t *testing.T) {
	assert := require.New(t)

	s := SessionState{NetID: 1, DevAddr: 2}
	err := s.UnmarshalFields(map[string][]byte{
		"netId":   {0x03, 0x00, 0x00, 0x00},
		"devAddr": {0x04, 0x03, 0x02, 0x01},
		"nwkKey":  make([]byte, 16),
	})
	assert.True(errors.Is(err, ErrInvalidPersistedState))
	assert.Equal(SessionState{NetID: 1, DevAddr: 2}, s)
}

func TestLoadState(t *testing.T) {
	assert := require.New(t)
	ctx := context.Background()
	prefs := storage.NewMemoryPreferences()

	_, err := LoadState(ctx, prefs, "lora")
	assert.True(errors.Is(err, ErrInvalidPersistedState))

	s := SessionState{NetID: 3, DevAddr: 0x01020304, NwkSKey: testNwkSKey, AppSKey: testAppSKey}
	assert.NoError(prefs.Put(ctx, "lora", s.Fields()))

	out, err := LoadState(ctx, prefs, "lora")
	assert.NoError(err)
	assert.Equal(s, out)
}

func TestFrameCounter(t *testing.T) {
	assert := require.New(t)

	c := NewFrameCounter()
	assert.EqualValues(1, c.Get())

	c.Increment()
	c.Increment()
	assert.EqualValues(3, c.Get())

	c.Reset()
	assert.EqualValues(1, c.Get())
}

func TestStateString(t *testing.T) {
	assert := require.New(t)
	assert.Equal("NoSession", NoSession.String())
	assert.Equal("Joining", Joining.String())
	assert.Equal("Joined", Joined.String())
}
