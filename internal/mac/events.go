package mac

import "fmt"

// Event is an event raised by the MAC stack.
type Event interface {
	fmt.Stringer
	event()
}

// Downlink holds the application payload of a downlink frame.
type Downlink struct {
	FPort uint8
	Data  []byte
}

// JoiningEvent is raised when the join procedure starts.
type JoiningEvent struct{}

// JoinedEvent is raised when a join-accept has been received and the session
// keys have been derived.
type JoinedEvent struct {
	NetID   uint32
	DevAddr uint32
	NwkSKey [16]byte
	AppSKey [16]byte
}

// JoinFailedEvent is raised when the join procedure gave up.
type JoinFailedEvent struct{}

// JoinTXCompleteEvent is raised when a join-request was sent but no
// join-accept was received within the receive windows.
type JoinTXCompleteEvent struct{}

// TXStartEvent is raised when a frame is handed to the radio.
type TXStartEvent struct {
	Frequency uint32
	DR        int
}

// TXCompleteEvent is raised when an uplink and its receive windows completed.
type TXCompleteEvent struct {
	Ack      bool
	Downlink *Downlink
}

// TXCanceledEvent is raised when a queued uplink was dropped.
type TXCanceledEvent struct {
	Reason string
}

// RXStartEvent is raised when a receive window opens.
type RXStartEvent struct{}

// ResetEvent is raised when the MAC state was reset.
type ResetEvent struct{}

// LinkDeadEvent is raised when no downlink was received for too long while
// link-check validation is enabled.
type LinkDeadEvent struct{}

// LinkAliveEvent is raised when the network answered a link-check.
type LinkAliveEvent struct {
	Margin uint8
	GwCnt  uint8
}

func (JoiningEvent) event()        {}
func (JoinedEvent) event()         {}
func (JoinFailedEvent) event()     {}
func (JoinTXCompleteEvent) event() {}
func (TXStartEvent) event()        {}
func (TXCompleteEvent) event()     {}
func (TXCanceledEvent) event()     {}
func (RXStartEvent) event()        {}
func (ResetEvent) event()          {}
func (LinkDeadEvent) event()       {}
func (LinkAliveEvent) event()      {}

func (JoiningEvent) String() string        { return "EV_JOINING" }
func (JoinedEvent) String() string         { return "EV_JOINED" }
func (JoinFailedEvent) String() string     { return "EV_JOIN_FAILED" }
func (JoinTXCompleteEvent) String() string { return "EV_JOIN_TXCOMPLETE" }
func (TXStartEvent) String() string        { return "EV_TXSTART" }
func (TXCompleteEvent) String() string     { return "EV_TXCOMPLETE" }
func (TXCanceledEvent) String() string     { return "EV_TXCANCELED" }
func (RXStartEvent) String() string        { return "EV_RXSTART" }
func (ResetEvent) String() string          { return "EV_RESET" }
func (LinkDeadEvent) String() string       { return "EV_LINK_DEAD" }
func (LinkAliveEvent) String() string      { return "EV_LINK_ALIVE" }
