// Package softmac implements a LoRaWAN 1.0.x class-A end-device MAC in
// software. Frames are exchanged with the network through a gateway backend,
// which makes the node appear behind a (virtual) gateway.
package softmac

import (
	"context"
	"encoding/binary"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/chirpstack-api/go/v3/gw"
	"github.com/brocaar/lorawan"
	"github.com/brocaar/lorawan/band"

	"github.com/brocaar/ttn-sensor-node/internal/backend/gateway"
	"github.com/brocaar/ttn-sensor-node/internal/mac"
)

// op defines the current operation of the stack.
type op int

const (
	opIdle op = iota
	opJoinTX
	opJoinRX
	opDataTX
	opDataRX
)

func (o op) String() string {
	switch o {
	case opJoinTX:
		return "join_tx"
	case opJoinRX:
		return "join_rx"
	case opDataTX:
		return "data_tx"
	case opDataRX:
		return "data_rx"
	default:
		return "idle"
	}
}

const (
	defaultRXWindow          = time.Second
	defaultJoinRetryInterval = 10 * time.Second
	linkDeadAfter            = 64
	joinAttemptsPerDR        = 3
)

// Errors.
var (
	ErrNotInitialized = errors.New("stack is not initialized")
	ErrTXPending      = errors.New("tx data is already pending")
	ErrClosed         = errors.New("stack is closed")
)

// Config holds the stack configuration.
type Config struct {
	// Band holds the band (channel-plan and regional parameters).
	Band band.Band

	// Gateway is the backend used to exchange frames with the network.
	Gateway gateway.Gateway

	// RXWindow defines how long a receive window stays open.
	RXWindow time.Duration

	// DutyCycle enables the sub-band duty-cycle limitation.
	DutyCycle bool

	// JoinRetryInterval defines the delay between two join attempts.
	JoinRetryInterval time.Duration

	// MaxJoinAttempts defines the max. number of join attempts (0 = unlimited).
	MaxJoinAttempts int

	// Clock returns the current time. It defaults to time.Now.
	Clock func() time.Time

	// Rand is used for the DevNonce and channel selection.
	Rand *rand.Rand
}

type channel struct {
	frequency uint32
	minDR     int
	maxDR     int
}

type txData struct {
	fPort     uint8
	data      []byte
	confirmed bool
}

// Stack implements the mac.Stack interface.
type Stack struct {
	conf   Config
	now    func() time.Time
	rnd    *rand.Rand
	closed bool

	initialized bool
	channels    []channel
	dutyCycle   *dutyCycle

	// identity
	devEUI  lorawan.EUI64
	joinEUI lorawan.EUI64
	appKey  lorawan.AES128Key

	// settings
	linkCheck bool
	adr       bool
	dr        int
	txPower   int

	// session
	netID    lorawan.NetID
	devAddr  lorawan.DevAddr
	nwkSKey  lorawan.AES128Key
	appSKey  lorawan.AES128Key
	fCntUp   uint32
	fCntDown uint32
	rxDelay  time.Duration
	rx2DR    int

	// operation state
	op           op
	pending      *txData
	devNonce     lorawan.DevNonce
	txAt         time.Time
	rxStarted    bool
	rxQueue      []*gw.DownlinkFrame
	nextJoinAt   time.Time
	joinAttempts int
	ackDownlink  bool
	adrAckCnt    int
	linkDead     bool

	events []mac.Event
}

// ensure Stack implements the mac.Stack interface
var _ mac.Stack = &Stack{}

// New creates a new Stack.
func New(c Config) *Stack {
	if c.RXWindow == 0 {
		c.RXWindow = defaultRXWindow
	}
	if c.JoinRetryInterval == 0 {
		c.JoinRetryInterval = defaultJoinRetryInterval
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Stack{
		conf: c,
		now:  c.Clock,
		rnd:  c.Rand,
	}
}

// Init initializes the stack. It resets the session and the operation state
// and loads the channel-plan from the band.
func (s *Stack) Init(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if s.conf.Band == nil {
		return errors.New("softmac: band must not be nil")
	}
	if s.conf.Gateway == nil {
		return errors.New("softmac: gateway backend must not be nil")
	}

	s.channels = nil
	for _, i := range s.conf.Band.GetUplinkChannelIndices() {
		c, err := s.conf.Band.GetUplinkChannel(i)
		if err != nil {
			return errors.Wrap(err, "softmac: get uplink channel error")
		}
		s.channels = append(s.channels, channel{
			frequency: uint32(c.Frequency),
			minDR:     c.MinDR,
			maxDR:     c.MaxDR,
		})
	}
	if len(s.channels) == 0 {
		return errors.New("softmac: band has no uplink channels")
	}

	if s.conf.DutyCycle {
		s.dutyCycle = newDutyCycle()
	} else {
		s.dutyCycle = nil
	}

	s.resetSession()
	s.op = opIdle
	s.pending = nil
	s.rxQueue = nil
	s.events = nil
	s.initialized = true

	log.WithFields(log.Fields{
		"channels":   len(s.channels),
		"duty_cycle": s.conf.DutyCycle,
	}).Info("softmac: stack initialized")

	return nil
}

// SetIdentity sets the OTAA identity. The EUIs are given in little-endian
// byte order.
func (s *Stack) SetIdentity(devEUI, appEUI [8]byte, appKey [16]byte) {
	s.devEUI = euiFromLittleEndian(devEUI)
	s.joinEUI = euiFromLittleEndian(appEUI)
	s.appKey = lorawan.AES128Key(appKey)
}

// SetLinkCheckMode enables or disables the link-check validation.
func (s *Stack) SetLinkCheckMode(enabled bool) {
	s.linkCheck = enabled
	s.adrAckCnt = 0
	s.linkDead = false
}

// SetDataRateTXPower sets the uplink data-rate and tx-power.
func (s *Stack) SetDataRateTXPower(dr int, txPower int) error {
	if s.conf.Band == nil {
		return ErrNotInitialized
	}
	if _, err := s.conf.Band.GetDataRate(dr); err != nil {
		return errors.Wrap(err, "softmac: get data-rate error")
	}
	s.dr = dr
	s.txPower = txPower
	return nil
}

// SetADRMode sets the ADR bit of the uplinks.
func (s *Stack) SetADRMode(enabled bool) {
	s.adr = enabled
}

// StartJoining resets the session and starts the OTAA join procedure.
func (s *Stack) StartJoining() error {
	if !s.initialized {
		return ErrNotInitialized
	}

	if s.devAddr != (lorawan.DevAddr{}) {
		s.emit(mac.ResetEvent{})
	}
	s.resetSession()

	s.op = opJoinTX
	s.joinAttempts = 0
	s.nextJoinAt = s.now()
	s.emit(mac.JoiningEvent{})
	return nil
}

// SetSession sets an existing (ABP like) session. No join is performed.
func (s *Stack) SetSession(netID, devAddr uint32, nwkSKey, appSKey [16]byte) {
	s.resetSession()
	s.netID = netIDFromUint32(netID)
	binary.BigEndian.PutUint32(s.devAddr[:], devAddr)
	s.nwkSKey = lorawan.AES128Key(nwkSKey)
	s.appSKey = lorawan.AES128Key(appSKey)
	if s.op == opJoinTX || s.op == opJoinRX {
		s.op = opIdle
	}
	if s.pending != nil {
		s.op = opDataTX
	}
}

// TXRXPending returns true when a transmission or reception is in progress.
func (s *Stack) TXRXPending() bool {
	return s.op != opIdle
}

// SetSeqnoUp sets the uplink frame-counter used for the next uplink.
func (s *Stack) SetSeqnoUp(fCnt uint32) {
	s.fCntUp = fCnt
}

// SetTXData schedules the given payload for transmission. When the device
// is still joining, the payload is sent once the join has completed.
func (s *Stack) SetTXData(fPort uint8, data []byte, confirmed bool) error {
	if !s.initialized {
		return ErrNotInitialized
	}
	if s.pending != nil || s.op == opDataTX || s.op == opDataRX {
		return ErrTXPending
	}

	b := make([]byte, len(data))
	copy(b, data)
	s.pending = &txData{
		fPort:     fPort,
		data:      b,
		confirmed: confirmed,
	}

	if s.op == opIdle {
		s.op = opDataTX
	}
	return nil
}

// DevAddr returns the device address of the current session.
func (s *Stack) DevAddr() uint32 {
	return binary.BigEndian.Uint32(s.devAddr[:])
}

// RunOnce runs the pending work of the stack and returns the produced events.
func (s *Stack) RunOnce(ctx context.Context) []mac.Event {
	if !s.initialized || s.closed {
		return nil
	}

	s.receive()

	switch s.op {
	case opJoinTX:
		s.sendJoinRequest(ctx)
	case opJoinRX:
		s.handleJoinRX()
	case opDataTX:
		s.sendData(ctx)
	case opDataRX:
		s.handleDataRX()
	}

	out := s.events
	s.events = nil
	return out
}

// Close closes the stack. The gateway backend is not closed.
func (s *Stack) Close() error {
	s.closed = true
	s.initialized = false
	s.rxQueue = nil
	s.events = nil
	return nil
}

// receive queues the pending downlink frames when a receive window is
// expected. Frames received outside an rx operation are dropped.
func (s *Stack) receive() {
	for {
		select {
		case df, ok := <-s.conf.Gateway.DownlinkFrameChan():
			if !ok {
				return
			}
			if s.op != opJoinRX && s.op != opDataRX {
				log.WithField("op", s.op).Debug("softmac: dropping downlink frame, no receive window expected")
				continue
			}
			s.rxQueue = append(s.rxQueue, df)
		default:
			return
		}
	}
}

func (s *Stack) emit(e mac.Event) {
	s.events = append(s.events, e)
}

func (s *Stack) resetSession() {
	s.netID = lorawan.NetID{}
	s.devAddr = lorawan.DevAddr{}
	s.nwkSKey = lorawan.AES128Key{}
	s.appSKey = lorawan.AES128Key{}
	s.fCntDown = 0
	s.ackDownlink = false
	s.adrAckCnt = 0
	s.linkDead = false
	if s.conf.Band != nil {
		defaults := s.conf.Band.GetDefaults()
		s.rxDelay = defaults.ReceiveDelay1
		s.rx2DR = defaults.RX2DataRate
	}
}

// openRX returns the open and close time of the current rx operation.
func (s *Stack) openRX() (time.Time, time.Time) {
	if s.op == opJoinRX {
		defaults := s.conf.Band.GetDefaults()
		return s.txAt.Add(defaults.JoinAcceptDelay1), s.txAt.Add(defaults.JoinAcceptDelay2 + s.conf.RXWindow)
	}
	return s.txAt.Add(s.rxDelay), s.txAt.Add(s.rxDelay + time.Second + s.conf.RXWindow)
}

func euiFromLittleEndian(b [8]byte) lorawan.EUI64 {
	var eui lorawan.EUI64
	for i := range b {
		eui[len(eui)-1-i] = b[i]
	}
	return eui
}

func netIDFromUint32(n uint32) lorawan.NetID {
	return lorawan.NetID{byte(n >> 16), byte(n >> 8), byte(n)}
}

func netIDToUint32(n lorawan.NetID) uint32 {
	return uint32(n[0])<<16 | uint32(n[1])<<8 | uint32(n[2])
}
