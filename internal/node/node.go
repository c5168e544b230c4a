// Package node implements the sensor node application: it keeps the
// LoRaWAN session alive and periodically sends the sensor readings.
package node

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/ttn-sensor-node/internal/config"
	"github.com/brocaar/ttn-sensor-node/internal/logging"
	"github.com/brocaar/ttn-sensor-node/internal/lpp"
	"github.com/brocaar/ttn-sensor-node/internal/mac"
	"github.com/brocaar/ttn-sensor-node/internal/monitoring"
	"github.com/brocaar/ttn-sensor-node/internal/sensor"
	"github.com/brocaar/ttn-sensor-node/internal/session"
	"github.com/brocaar/ttn-sensor-node/internal/storage"
)

const (
	defaultUplinkInterval = 5 * time.Minute
	defaultPumpInterval   = 10 * time.Millisecond
	defaultFPort          = 1
)

// StackFunc returns a new MAC stack. It is called on startup and after
// every deep-sleep cycle.
type StackFunc func() (mac.Stack, error)

// Node implements the sensor node.
type Node struct {
	newStack StackFunc
	prefs    storage.Preferences
	reader   *sensor.Reader
	counter  *session.FrameCounter
	conf     config.Config
	chipID   uint64

	uplinkInterval time.Duration
	pumpInterval   time.Duration
	fPort          uint8
	deepSleep      bool

	manager     *session.Manager
	lastUplink  time.Time
	awaitingTX  bool
	uplinkDone  bool
	sleepCycles int
}

// New creates a new Node.
func New(c config.Config, chipID uint64, newStack StackFunc, prefs storage.Preferences, reader *sensor.Reader) *Node {
	n := Node{
		newStack:       newStack,
		prefs:          prefs,
		reader:         reader,
		counter:        session.NewFrameCounter(),
		conf:           c,
		chipID:         chipID,
		uplinkInterval: c.Node.UplinkInterval,
		pumpInterval:   c.Node.PumpInterval,
		fPort:          c.Node.FPort,
		deepSleep:      c.Node.DeepSleep,
	}

	if n.uplinkInterval == 0 {
		n.uplinkInterval = defaultUplinkInterval
	}
	if n.pumpInterval == 0 {
		n.pumpInterval = defaultPumpInterval
	}
	if n.fPort == 0 {
		n.fPort = defaultFPort
	}

	return &n
}

// Run runs the node until the context is canceled.
func (n *Node) Run(ctx context.Context) error {
	for {
		if err := n.start(ctx); err != nil {
			return err
		}

		sleep := n.loop(ctx)

		if err := n.manager.Close(); err != nil {
			log.WithError(err).Error("node: close mac stack error")
		}
		monitoring.SetJoined(false)

		if !sleep {
			log.Info("node: stopped")
			return nil
		}

		if n.manager.State() == session.NoSession {
			log.WithField("duration", n.uplinkInterval).Warning("node: join failed, restarting after interval")
		} else {
			n.sleepCycles++
			log.WithFields(log.Fields{
				"duration": n.uplinkInterval,
				"cycle":    n.sleepCycles,
			}).Info("node: entering deep-sleep")
		}

		select {
		case <-ctx.Done():
			log.Info("node: stopped")
			return nil
		case <-time.After(n.uplinkInterval):
		}
	}
}

// start creates the session manager and restores or joins the session.
func (n *Node) start(ctx context.Context) error {
	stack, err := n.newStack()
	if err != nil {
		return errors.Wrap(err, "new mac stack error")
	}

	n.manager = session.NewManager(n.conf, n.chipID, stack, n.prefs, n.counter)
	n.manager.RegisterDownlinkHandler(n.handleDownlink)
	n.manager.RegisterUplinkCompleteHandler(n.handleUplinkComplete)
	n.lastUplink = time.Time{}
	n.awaitingTX = false
	n.uplinkDone = false

	if err := n.manager.Setup(ctx); err != nil {
		return errors.Wrap(err, "session setup error")
	}

	return nil
}

// loop pumps the MAC events and sends the uplinks. It returns true when the
// node must enter deep-sleep.
func (n *Node) loop(ctx context.Context) bool {
	ticker := time.NewTicker(n.pumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case now := <-ticker.C:
			if n.tick(ctx, now) {
				return true
			}
		}
	}
}

// tick runs a single iteration of the main loop. It returns true when the
// node must enter deep-sleep.
func (n *Node) tick(ctx context.Context, now time.Time) bool {
	n.manager.PumpEvents(ctx)
	connected := n.manager.IsConnected()
	monitoring.SetJoined(connected)

	if n.deepSleep && n.uplinkDone {
		return true
	}

	// join attempts exhausted, start over after the uplink interval
	if n.manager.State() == session.NoSession {
		return true
	}

	if !connected {
		return false
	}

	if n.lastUplink.IsZero() || now.Sub(n.lastUplink) >= n.uplinkInterval {
		n.sendReading(ctx, now)
	}

	return false
}

func (n *Node) sendReading(ctx context.Context, now time.Time) {
	// the sensor is only read when the uplink can be queued
	if n.manager.Busy() {
		return
	}

	ctx, err := logging.WithContextID(ctx)
	if err != nil {
		log.WithError(err).Error("node: create context id error")
		return
	}

	r, err := n.reader.Read(ctx)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Error("node: read sensor error")
		n.lastUplink = now
		return
	}

	b := lpp.Encode(r)
	if err := n.manager.Send(b, n.fPort); err != nil {
		if errors.Is(err, session.ErrTransmitBusy) {
			logging.FromContext(ctx).Debug("node: mac busy, retrying on next tick")
			return
		}
		logging.FromContext(ctx).WithError(err).Error("node: send uplink error")
		n.lastUplink = now
		return
	}

	n.lastUplink = now
	n.awaitingTX = true
	uplinkCounter().Inc()

	logging.FromContext(ctx).WithFields(log.Fields{
		"f_port":      n.fPort,
		"temperature": r.Temperature,
		"humidity":    r.Humidity,
		"f_cnt_up":    n.counter.Get() - 1,
	}).Info("node: sensor reading sent")
}

func (n *Node) handleDownlink(fPort uint8, data []byte) {
	downlinkCounter(fPort).Inc()
	log.WithFields(log.Fields{
		"f_port": fPort,
		"data":   data,
	}).Info("node: downlink received")
}

func (n *Node) handleUplinkComplete() {
	if !n.awaitingTX {
		return
	}

	n.awaitingTX = false
	n.uplinkDone = true
	log.Info("node: uplink complete")
}
