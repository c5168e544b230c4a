package band

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brocaar/ttn-sensor-node/internal/config"
)

func TestTTNChannelPlan(t *testing.T) {
	assert := require.New(t)

	var c config.Config
	c.LoRaWAN.Band = "EU868"
	c.LoRaWAN.TTNChannelPlan = true
	assert.NoError(Setup(c))

	expected := []uint32{
		868100000,
		868300000,
		868500000,
		867100000,
		867300000,
		867500000,
		867700000,
		867900000,
		868800000,
	}

	indices := Band().GetUplinkChannelIndices()
	assert.Len(indices, len(expected))

	for i, freq := range expected {
		ch, err := Band().GetUplinkChannel(i)
		assert.NoError(err)
		assert.EqualValues(freq, ch.Frequency)
	}

	fsk, err := Band().GetUplinkChannel(8)
	assert.NoError(err)
	assert.Equal(7, fsk.MinDR)
	assert.Equal(7, fsk.MaxDR)
}

func TestDefaultBand(t *testing.T) {
	assert := require.New(t)

	b, err := New(config.Config{})
	assert.NoError(err)
	assert.Len(b.GetUplinkChannelIndices(), 3)
}

func TestUnknownBand(t *testing.T) {
	var c config.Config
	c.LoRaWAN.Band = "XX000"
	_, err := New(c)
	require.Error(t, err)
}
