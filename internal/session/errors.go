package session

import (
	"github.com/pkg/errors"

	"github.com/brocaar/ttn-sensor-node/internal/hexkey"
)

// Errors
var (
	ErrRadioInitFailed       = errors.New("radio init failed")
	ErrTransmitBusy          = errors.New("transmit busy")
	ErrInvalidPersistedState = errors.New("invalid persisted session state")
	ErrPersistFailed         = errors.New("persist session failed")
	ErrInvalidHexString      = hexkey.ErrInvalidHexString
)
