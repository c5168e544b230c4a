package band

import (
	"github.com/pkg/errors"

	"github.com/brocaar/lorawan"
	loraband "github.com/brocaar/lorawan/band"

	"github.com/brocaar/ttn-sensor-node/internal/config"
)

var band loraband.Band

// Setup sets up the band with the given configuration.
func Setup(c config.Config) error {
	b, err := New(c)
	if err != nil {
		return err
	}
	band = b
	return nil
}

// New returns a new band for the given configuration. When the TTN channel
// plan is enabled, the five extra LoRa channels and the FSK channel of the
// TTN EU868 frequency plan are added on top of the three default channels.
func New(c config.Config) (loraband.Band, error) {
	name := c.LoRaWAN.Band
	if name == "" {
		name = "EU868"
	}

	b, err := loraband.GetConfig(loraband.Name(name), c.LoRaWAN.RepeaterCompatible, lorawan.DwellTimeNoLimit)
	if err != nil {
		return nil, errors.Wrap(err, "get band config error")
	}

	if !c.LoRaWAN.TTNChannelPlan {
		return b, nil
	}

	for _, err := range []error{
		b.AddChannel(867100000, 0, 5),
		b.AddChannel(867300000, 0, 5),
		b.AddChannel(867500000, 0, 5),
		b.AddChannel(867700000, 0, 5),
		b.AddChannel(867900000, 0, 5),
		b.AddChannel(868800000, 7, 7),
	} {
		if err != nil {
			return nil, errors.Wrap(err, "add channel error")
		}
	}

	return b, nil
}

// Band returns the configured band.
func Band() loraband.Band {
	return band
}
