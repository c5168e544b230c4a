// Package session implements the LoRaWAN session lifecycle on top of a MAC
// stack: restoring a persisted session or joining, capturing the session
// keys after a join and gating the uplinks.
package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/brocaar/lorawan"
	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/ttn-sensor-node/internal/config"
	"github.com/brocaar/ttn-sensor-node/internal/mac"
	"github.com/brocaar/ttn-sensor-node/internal/storage"
)

const (
	defaultNamespace = "lora"

	persistRetryInitialInterval = time.Second
	persistRetryMaxInterval     = 5 * time.Minute
)

// DownlinkHandler is called with the payload of a received downlink.
type DownlinkHandler func(fPort uint8, data []byte)

// UplinkCompleteHandler is called when an uplink and its receive windows
// completed.
type UplinkCompleteHandler func()

// Manager manages the session of a single MAC stack. It is not safe for
// concurrent use.
type Manager struct {
	stack   mac.Stack
	prefs   storage.Preferences
	counter *FrameCounter

	namespace string
	chipID    uint64
	appEUI    string
	appKey    string
	dataRate  int
	txPower   int
	adr       bool

	identity Identity
	state    State

	// pendingPersist holds a captured session which has not been written to
	// the preferences store yet.
	pendingPersist *SessionState
	persistBackOff *backoff.ExponentialBackOff
	nextPersistAt  time.Time
	now            func() time.Time

	downlinkHandler       DownlinkHandler
	uplinkCompleteHandler UplinkCompleteHandler
}

// NewManager creates a new Manager. When counter is nil, a new frame-counter
// is created.
func NewManager(c config.Config, chipID uint64, stack mac.Stack, prefs storage.Preferences, counter *FrameCounter) *Manager {
	if counter == nil {
		counter = NewFrameCounter()
	}

	namespace := c.Storage.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = persistRetryInitialInterval
	b.MaxInterval = persistRetryMaxInterval
	b.MaxElapsedTime = 0
	b.Reset()

	return &Manager{
		stack:          stack,
		prefs:          prefs,
		counter:        counter,
		namespace:      namespace,
		chipID:         chipID,
		appEUI:         c.Device.AppEUI,
		appKey:         c.Device.AppKey,
		dataRate:       c.LoRaWAN.DataRate,
		txPower:        c.LoRaWAN.TXPower,
		adr:            c.LoRaWAN.ADR,
		persistBackOff: b,
		now:            time.Now,
		state:          NoSession,
	}
}

// Setup derives the device identity, initializes the MAC stack and either
// restores the persisted session or starts a join.
func (m *Manager) Setup(ctx context.Context) error {
	id, err := NewIdentity(m.chipID, m.appEUI, m.appKey)
	if err != nil {
		return errors.Wrap(err, "derive identity error")
	}
	m.identity = id

	log.WithFields(log.Fields{
		"dev_eui": id.DevEUIString(),
		"app_eui": id.AppEUIString(),
	}).Info("session: device identity")

	if err := m.stack.Init(ctx); err != nil {
		return errors.Wrap(ErrRadioInitFailed, err.Error())
	}

	m.stack.SetIdentity(id.DevEUI, id.AppEUI, id.AppKey)
	m.stack.SetLinkCheckMode(false)
	if err := m.stack.SetDataRateTXPower(m.dataRate, m.txPower); err != nil {
		return errors.Wrap(ErrRadioInitFailed, err.Error())
	}
	m.stack.SetADRMode(m.adr)

	s, err := LoadState(ctx, m.prefs, m.namespace)
	if err != nil {
		if errors.Is(err, ErrInvalidPersistedState) {
			log.WithError(err).Info("session: no valid persisted session")
		} else {
			log.WithError(err).Error("session: read persisted session error")
		}
		return m.join()
	}

	m.stack.SetSession(s.NetID, s.DevAddr, s.NwkSKey, s.AppSKey)
	m.state = Joined
	rc.Inc()

	log.WithFields(log.Fields{
		"net_id":   s.NetID,
		"dev_addr": devAddrString(s.DevAddr),
		"f_cnt_up": m.counter.Get(),
	}).Info("session: session restored")
	logKeys(s)

	return nil
}

func (m *Manager) join() error {
	m.counter.Reset()
	if err := m.stack.StartJoining(); err != nil {
		return errors.Wrap(err, "start joining error")
	}
	m.state = Joining
	jc.Inc()

	log.Info("session: joining network")
	return nil
}

// Send queues the payload for transmission on the given port. It returns
// ErrTransmitBusy when a transmission or receive window is pending.
func (m *Manager) Send(payload []byte, port uint8) error {
	if m.stack.TXRXPending() {
		sbc.Inc()
		return ErrTransmitBusy
	}

	fCnt := m.counter.Get()
	m.stack.SetSeqnoUp(fCnt)
	if err := m.stack.SetTXData(port, payload, false); err != nil {
		return errors.Wrap(err, "set tx data error")
	}
	m.counter.Increment()
	sc.Inc()

	log.WithFields(log.Fields{
		"f_port":   port,
		"f_cnt_up": fCnt,
		"size":     len(payload),
	}).Info("session: uplink queued")

	return nil
}

// IsConnected returns true when the MAC stack holds an active session.
func (m *Manager) IsConnected() bool {
	return m.stack.DevAddr() != 0
}

// Busy returns true when a transmission or receive window is pending. Send
// returns ErrTransmitBusy in that case.
func (m *Manager) Busy() bool {
	return m.stack.TXRXPending()
}

// State returns the session state.
func (m *Manager) State() State {
	return m.state
}

// Identity returns the device identity. It is set by Setup.
func (m *Manager) Identity() Identity {
	return m.identity
}

// FrameCounter returns the uplink frame-counter.
func (m *Manager) FrameCounter() *FrameCounter {
	return m.counter
}

// PersistPending returns true when a captured session still needs to be
// written to the preferences store.
func (m *Manager) PersistPending() bool {
	return m.pendingPersist != nil
}

// PumpEvents advances the MAC stack and handles the events it produced.
func (m *Manager) PumpEvents(ctx context.Context) {
	if m.pendingPersist != nil && !m.now().Before(m.nextPersistAt) {
		m.persist(ctx)
	}

	for _, e := range m.stack.RunOnce(ctx) {
		m.handleEvent(ctx, e)
	}
}

// EraseSession removes the persisted session. The active session of the MAC
// stack is not affected.
func (m *Manager) EraseSession(ctx context.Context) error {
	if err := EraseState(ctx, m.prefs, m.namespace); err != nil {
		return err
	}

	m.pendingPersist = nil
	m.state = NoSession

	log.WithField("namespace", m.namespace).Info("session: persisted session erased")
	return nil
}

// RegisterDownlinkHandler registers the downlink handler. A nil handler
// unregisters the previous one.
func (m *Manager) RegisterDownlinkHandler(h DownlinkHandler) {
	m.downlinkHandler = h
}

// RegisterUplinkCompleteHandler registers the uplink-complete handler. A nil
// handler unregisters the previous one.
func (m *Manager) RegisterUplinkCompleteHandler(h UplinkCompleteHandler) {
	m.uplinkCompleteHandler = h
}

// Close closes the MAC stack.
func (m *Manager) Close() error {
	return m.stack.Close()
}

func (m *Manager) handleEvent(ctx context.Context, e mac.Event) {
	eventCounter(e.String()).Inc()

	switch v := e.(type) {
	case mac.JoiningEvent:
		log.Info("session: join procedure started")
	case mac.JoinedEvent:
		m.handleJoined(ctx, v)
	case mac.JoinFailedEvent:
		m.state = NoSession
		log.Error("session: join failed")
	case mac.JoinTXCompleteEvent:
		log.Info("session: no join-accept received")
	case mac.TXStartEvent:
		log.WithFields(log.Fields{
			"frequency": v.Frequency,
			"dr":        v.DR,
		}).Debug("session: transmission started")
	case mac.RXStartEvent:
		log.Debug("session: receive window opened")
	case mac.TXCompleteEvent:
		m.handleTXComplete(v)
	case mac.TXCanceledEvent:
		log.WithField("reason", v.Reason).Warning("session: transmission canceled")
	case mac.ResetEvent:
		log.Info("session: mac reset")
	case mac.LinkDeadEvent:
		log.Warning("session: link dead")
	case mac.LinkAliveEvent:
		log.WithFields(log.Fields{
			"margin": v.Margin,
			"gw_cnt": v.GwCnt,
		}).Info("session: link alive")
	default:
		log.WithField("event", e.String()).Warning("session: unknown event")
	}
}

func (m *Manager) handleJoined(ctx context.Context, e mac.JoinedEvent) {
	s := SessionState{
		NetID:   e.NetID,
		DevAddr: e.DevAddr,
		NwkSKey: e.NwkSKey,
		AppSKey: e.AppSKey,
	}

	m.state = Joined
	m.stack.SetLinkCheckMode(false)

	log.WithFields(log.Fields{
		"net_id":   s.NetID,
		"dev_addr": devAddrString(s.DevAddr),
	}).Info("session: joined network")
	logKeys(s)

	m.pendingPersist = &s
	m.persistBackOff.Reset()
	m.persist(ctx)
}

func (m *Manager) handleTXComplete(e mac.TXCompleteEvent) {
	log.WithField("ack", e.Ack).Info("session: transmission complete")

	if e.Downlink != nil {
		log.WithFields(log.Fields{
			"f_port": e.Downlink.FPort,
			"size":   len(e.Downlink.Data),
		}).Info("session: downlink received")

		if m.downlinkHandler != nil {
			m.downlinkHandler(e.Downlink.FPort, e.Downlink.Data)
		}
	}

	if m.uplinkCompleteHandler != nil {
		m.uplinkCompleteHandler()
	}
}

func (m *Manager) persist(ctx context.Context) {
	err := m.prefs.Put(ctx, m.namespace, m.pendingPersist.Fields())
	if err != nil {
		retryIn := m.persistBackOff.NextBackOff()
		m.nextPersistAt = m.now().Add(retryIn)
		pfc.Inc()
		log.WithError(errors.Wrap(ErrPersistFailed, err.Error())).WithField("retry_in", retryIn).Error("session: persist session error")
		return
	}

	m.pendingPersist = nil
	m.nextPersistAt = time.Time{}
	log.WithField("namespace", m.namespace).Info("session: session persisted")
}

func devAddrString(a uint32) string {
	return fmt.Sprintf("%08x", a)
}

func logKeys(s SessionState) {
	if !log.IsLevelEnabled(log.DebugLevel) {
		return
	}

	log.WithFields(log.Fields{
		"net_id":    strconv.FormatUint(uint64(s.NetID), 10),
		"dev_addr":  devAddrString(s.DevAddr),
		"nwk_s_key": lorawan.AES128Key(s.NwkSKey).String(),
		"app_s_key": lorawan.AES128Key(s.AppSKey).String(),
	}).Debug("session: session keys")
}
