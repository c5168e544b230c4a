package test

import (
	"context"

	"github.com/brocaar/ttn-sensor-node/internal/mac"
)

// TXData holds the arguments of a SetTXData call.
type TXData struct {
	FPort     uint8
	Data      []byte
	Confirmed bool
	SeqnoUp   uint32
}

// Session holds the arguments of a SetSession call.
type Session struct {
	NetID   uint32
	DevAddr uint32
	NwkSKey [16]byte
	AppSKey [16]byte
}

// MACStack is a test MAC stack. It records the calls and returns the queued
// events on RunOnce.
type MACStack struct {
	InitError      error
	InitCount      int
	DevEUI         [8]byte
	AppEUI         [8]byte
	AppKey         [16]byte
	LinkCheck      bool
	LinkCheckCalls int
	DR             int
	TXPower        int
	ADR            bool
	JoinCount      int
	Session        *Session
	Pending        bool
	SeqnoUp        uint32
	TXData         []TXData
	Addr           uint32
	Closed         bool

	events [][]mac.Event
}

// ensure MACStack implements the mac.Stack interface
var _ mac.Stack = &MACStack{}

// NewMACStack returns a new MACStack.
func NewMACStack() *MACStack {
	return &MACStack{}
}

// QueueEvents queues the events for the next RunOnce call.
func (s *MACStack) QueueEvents(events ...mac.Event) {
	s.events = append(s.events, events)
}

// Init method.
func (s *MACStack) Init(ctx context.Context) error {
	s.InitCount++
	return s.InitError
}

// SetIdentity method.
func (s *MACStack) SetIdentity(devEUI, appEUI [8]byte, appKey [16]byte) {
	s.DevEUI = devEUI
	s.AppEUI = appEUI
	s.AppKey = appKey
}

// SetLinkCheckMode method.
func (s *MACStack) SetLinkCheckMode(enabled bool) {
	s.LinkCheck = enabled
	s.LinkCheckCalls++
}

// SetDataRateTXPower method.
func (s *MACStack) SetDataRateTXPower(dr int, txPower int) error {
	s.DR = dr
	s.TXPower = txPower
	return nil
}

// SetADRMode method.
func (s *MACStack) SetADRMode(enabled bool) {
	s.ADR = enabled
}

// StartJoining method.
func (s *MACStack) StartJoining() error {
	s.JoinCount++
	s.Addr = 0
	return nil
}

// SetSession method.
func (s *MACStack) SetSession(netID, devAddr uint32, nwkSKey, appSKey [16]byte) {
	s.Session = &Session{
		NetID:   netID,
		DevAddr: devAddr,
		NwkSKey: nwkSKey,
		AppSKey: appSKey,
	}
	s.Addr = devAddr
}

// TXRXPending method.
func (s *MACStack) TXRXPending() bool {
	return s.Pending
}

// SetSeqnoUp method.
func (s *MACStack) SetSeqnoUp(fCnt uint32) {
	s.SeqnoUp = fCnt
}

// SetTXData method. The stack is marked pending until an event is returned
// that completes the transmission.
func (s *MACStack) SetTXData(fPort uint8, data []byte, confirmed bool) error {
	b := make([]byte, len(data))
	copy(b, data)
	s.TXData = append(s.TXData, TXData{
		FPort:     fPort,
		Data:      b,
		Confirmed: confirmed,
		SeqnoUp:   s.SeqnoUp,
	})
	s.Pending = true
	return nil
}

// DevAddr method.
func (s *MACStack) DevAddr() uint32 {
	return s.Addr
}

// RunOnce method.
func (s *MACStack) RunOnce(ctx context.Context) []mac.Event {
	if len(s.events) == 0 {
		return nil
	}

	out := s.events[0]
	s.events = s.events[1:]

	for _, e := range out {
		switch v := e.(type) {
		case mac.JoinedEvent:
			s.Addr = v.DevAddr
		case mac.TXCompleteEvent:
			s.Pending = false
		}
	}

	return out
}

// Close method.
func (s *MACStack) Close() error {
	s.Closed = true
	return nil
}
