package session

import (
	"github.com/brocaar/lorawan"
	"github.com/pkg/errors"

	"github.com/brocaar/ttn-sensor-node/internal/hexkey"
)

// Identity holds the OTAA identity of the device. The EUIs are stored least
// significant byte first.
type Identity struct {
	DevEUI [8]byte
	AppEUI [8]byte
	AppKey [16]byte
}

// NewIdentity derives the identity from the chip id and the configured
// application EUI and key.
func NewIdentity(chipID uint64, appEUI, appKey string) (Identity, error) {
	var id Identity

	if err := hexkey.ParseReversedInto(id.DevEUI[:], hexkey.FormatChipID(chipID)); err != nil {
		return id, errors.Wrap(err, "parse dev_eui error")
	}
	if err := hexkey.ParseReversedInto(id.AppEUI[:], appEUI); err != nil {
		return id, errors.Wrap(err, "parse app_eui error")
	}
	if err := hexkey.ParseForwardInto(id.AppKey[:], appKey); err != nil {
		return id, errors.Wrap(err, "parse app_key error")
	}

	return id, nil
}

// DevEUIString returns the DevEUI as shown in the network console.
func (id Identity) DevEUIString() string {
	return euiString(id.DevEUI)
}

// AppEUIString returns the AppEUI as shown in the network console.
func (id Identity) AppEUIString() string {
	return euiString(id.AppEUI)
}

func euiString(le [8]byte) string {
	var eui lorawan.EUI64
	for i := range le {
		eui[len(eui)-1-i] = le[i]
	}
	return eui.String()
}
