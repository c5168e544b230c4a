// Package mac defines the contract between the session manager and a
// LoRaWAN MAC stack. The stack owns the join procedure, frame encryption,
// channel selection and duty-cycle. The session manager only drives it.
package mac

import "context"

// Stack is the interface of a LoRaWAN MAC stack.
//
// All methods are called from a single goroutine. Events are only produced
// by RunOnce.
type Stack interface {
	// Init initializes the radio interface and resets the MAC state. Any
	// session and pending transmission is discarded.
	Init(ctx context.Context) error

	// SetIdentity sets the OTAA identity. The EUIs are little-endian.
	SetIdentity(devEUI, appEUI [8]byte, appKey [16]byte)

	// SetLinkCheckMode enables or disables the link-check validation.
	SetLinkCheckMode(enabled bool)

	// SetDataRateTXPower sets the uplink data-rate index and the TX power (dBm).
	SetDataRateTXPower(dr int, txPower int) error

	// SetADRMode enables or disables adaptive data-rate.
	SetADRMode(enabled bool)

	// StartJoining schedules an OTAA join. Completion is signaled by a
	// JoinedEvent or JoinFailedEvent.
	StartJoining() error

	// SetSession restores a previously negotiated session without a network
	// handshake.
	SetSession(netID, devAddr uint32, nwkSKey, appSKey [16]byte)

	// TXRXPending returns true when a transmission or receive window is
	// pending.
	TXRXPending() bool

	// SetSeqnoUp sets the frame-counter of the next uplink.
	SetSeqnoUp(fCnt uint32)

	// SetTXData queues the given payload for transmission at the next
	// possible moment.
	SetTXData(fPort uint8, data []byte, confirmed bool) error

	// DevAddr returns the device address of the active session or 0.
	DevAddr() uint32

	// RunOnce advances the MAC state machine and returns the events that
	// occurred.
	RunOnce(ctx context.Context) []Event

	// Close releases the radio interface.
	Close() error
}
