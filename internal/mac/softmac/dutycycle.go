package softmac

import (
	"time"

	"github.com/pkg/errors"

	"github.com/brocaar/lorawan/airtime"
	"github.com/brocaar/lorawan/band"
)

const preambleSymbols = 8

// subBand defines an ETSI EN300.220 sub-band.
type subBand struct {
	name      string
	minFreq   uint32
	maxFreq   uint32
	dutyCycle float64
}

var subBands = []subBand{
	{name: "g", minFreq: 863000000, maxFreq: 868000000, dutyCycle: 0.01},
	{name: "g1", minFreq: 868000000, maxFreq: 868600000, dutyCycle: 0.01},
	{name: "g2", minFreq: 868700000, maxFreq: 869200000, dutyCycle: 0.001},
	{name: "g3", minFreq: 869400000, maxFreq: 869650000, dutyCycle: 0.1},
	{name: "g4", minFreq: 869700000, maxFreq: 870000000, dutyCycle: 0.01},
}

// defaultSubBand is used for frequencies outside the known sub-bands.
var defaultSubBand = subBand{name: "default", dutyCycle: 0.01}

func getSubBand(freq uint32) subBand {
	for _, sb := range subBands {
		if freq >= sb.minFreq && freq < sb.maxFreq {
			return sb
		}
	}
	return defaultSubBand
}

// dutyCycle keeps track of the time-off per sub-band.
type dutyCycle struct {
	availableAt map[string]time.Time
}

func newDutyCycle() *dutyCycle {
	return &dutyCycle{
		availableAt: make(map[string]time.Time),
	}
}

func (d *dutyCycle) available(now time.Time, freq uint32) bool {
	return !now.Before(d.availableAt[getSubBand(freq).name])
}

// register registers a transmission of size bytes at the given time and
// returns the time-off of the sub-band.
func (d *dutyCycle) register(now time.Time, freq uint32, dr band.DataRate, size int) error {
	toa, err := timeOnAir(dr, size)
	if err != nil {
		return err
	}

	sb := getSubBand(freq)
	off := time.Duration(float64(toa) / sb.dutyCycle)
	d.availableAt[sb.name] = now.Add(off)
	return nil
}

func timeOnAir(dr band.DataRate, size int) (time.Duration, error) {
	switch dr.Modulation {
	case band.LoRaModulation:
		ldro := dr.SpreadFactor >= 11 && dr.Bandwidth == 125
		return airtime.CalculateLoRaAirtime(size, dr.SpreadFactor, dr.Bandwidth, preambleSymbols, airtime.CodingRate45, true, ldro)
	case band.FSKModulation:
		if dr.BitRate == 0 {
			return 0, errors.New("bit-rate must not be 0")
		}
		// preamble (5) + sync word (3) + length (1) + crc (2)
		bits := (size + 11) * 8
		return time.Duration(float64(bits) / float64(dr.BitRate) * float64(time.Second)), nil
	default:
		return 0, errors.Errorf("unknown modulation: %s", dr.Modulation)
	}
}
