// Package lpp encodes sensor readings as Cayenne LPP.
package lpp

import (
	cayennelpp "github.com/TheThingsNetwork/go-cayenne-lib"

	"github.com/brocaar/ttn-sensor-node/internal/sensor"
)

// Channels of the encoded values.
const (
	TemperatureChannel uint8 = 1
	HumidityChannel    uint8 = 2
)

// Encode returns the Cayenne LPP payload of the given reading.
func Encode(r sensor.Reading) []byte {
	e := cayennelpp.NewEncoder()
	e.AddTemperature(TemperatureChannel, r.Temperature)
	e.AddRelativeHumidity(HumidityChannel, r.Humidity)
	return e.Bytes()
}
