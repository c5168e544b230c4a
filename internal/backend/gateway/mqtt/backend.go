package mqtt

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"os"
	"sync"
	"text/template"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/chirpstack-api/go/v3/gw"
	"github.com/brocaar/lorawan"

	"github.com/brocaar/ttn-sensor-node/internal/backend/gateway"
	"github.com/brocaar/ttn-sensor-node/internal/backend/gateway/marshaler"
	"github.com/brocaar/ttn-sensor-node/internal/config"
)

const (
	downlinkFrameChanSize = 10
	connectRetryInterval  = 2 * time.Second
)

// Backend implements a MQTT backend which publishes the node uplinks as
// events of a (virtual) gateway and consumes the downlink commands sent to it.
type Backend struct {
	sync.RWMutex

	wg     sync.WaitGroup
	closed bool

	conn              paho.Client
	downlinkFrameChan chan *gw.DownlinkFrame

	gatewayID    lorawan.EUI64
	qos          uint8
	marshaler    marshaler.Type
	eventTopic   *template.Template
	commandTopic string
}

// ensure Backend implements the gateway interface
var _ gateway.Gateway = &Backend{}

// NewBackend creates a new Backend.
func NewBackend(c config.Config) (*Backend, error) {
	conf := c.Gateway.Backend.MQTT

	b := Backend{
		qos:               conf.QOS,
		downlinkFrameChan: make(chan *gw.DownlinkFrame, downlinkFrameChanSize),
	}

	if err := b.gatewayID.UnmarshalText([]byte(c.Gateway.GatewayID)); err != nil {
		return nil, errors.Wrap(err, "gateway/mqtt: decode gateway id error")
	}

	var err error
	b.marshaler, err = marshaler.ParseType(conf.Marshaler)
	if err != nil {
		return nil, errors.Wrap(err, "gateway/mqtt")
	}

	b.eventTopic, err = template.New("event").Parse(conf.EventTopicTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "gateway/mqtt: parse event-topic template error")
	}

	commandTopic, err := template.New("command").Parse(conf.CommandTopicTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "gateway/mqtt: parse command-topic template error")
	}
	b.commandTopic, err = executeTopic(commandTopic, b.gatewayID, "CommandType", "down")
	if err != nil {
		return nil, errors.Wrap(err, "gateway/mqtt: execute command-topic template error")
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(conf.Server)
	opts.SetUsername(conf.Username)
	opts.SetPassword(conf.Password)
	opts.SetCleanSession(conf.CleanSession)
	opts.SetClientID(conf.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(b.onConnected)
	opts.SetConnectionLostHandler(b.onConnectionLost)
	if conf.MaxReconnectInterval != 0 {
		opts.SetMaxReconnectInterval(conf.MaxReconnectInterval)
	}

	tlsconfig, err := newTLSConfig(conf.CACert, conf.TLSCert, conf.TLSKey)
	if err != nil {
		return nil, errors.Wrap(err, "gateway/mqtt: load tls configuration error")
	}
	if tlsconfig != nil {
		opts.SetTLSConfig(tlsconfig)
	}

	log.WithFields(log.Fields{
		"server":     conf.Server,
		"gateway_id": b.gatewayID,
	}).Info("gateway/mqtt: connecting to mqtt broker")

	b.conn = paho.NewClient(opts)
	for {
		if token := b.conn.Connect(); token.Wait() && token.Error() != nil {
			log.WithError(token.Error()).Errorf("gateway/mqtt: connecting to mqtt broker failed, will retry in %s", connectRetryInterval)
			time.Sleep(connectRetryInterval)
			continue
		}
		break
	}

	return &b, nil
}

// Close closes the backend.
func (b *Backend) Close() error {
	b.Lock()
	b.closed = true
	b.Unlock()

	log.Info("gateway/mqtt: closing backend")

	log.WithField("topic", b.commandTopic).Info("gateway/mqtt: unsubscribing from command topic")
	if token := b.conn.Unsubscribe(b.commandTopic); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "gateway/mqtt: unsubscribe from %s error", b.commandTopic)
	}

	log.Info("gateway/mqtt: handling last messages")
	b.wg.Wait()
	close(b.downlinkFrameChan)
	b.conn.Disconnect(250)
	return nil
}

// DownlinkFrameChan returns the downlink-frame channel.
func (b *Backend) DownlinkFrameChan() chan *gw.DownlinkFrame {
	return b.downlinkFrameChan
}

// SendUplinkFrame publishes the given uplink-frame as gateway up event.
func (b *Backend) SendUplinkFrame(uf *gw.UplinkFrame) error {
	if uf.RxInfo == nil {
		return errors.New("gateway/mqtt: rx_info must not be nil")
	}
	if uf.TxInfo == nil {
		return errors.New("gateway/mqtt: tx_info must not be nil")
	}
	uf.RxInfo.GatewayId = b.gatewayID[:]

	bb, err := marshaler.MarshalUplinkFrame(b.marshaler, uf)
	if err != nil {
		return errors.Wrap(err, "gateway/mqtt: marshal uplink frame error")
	}

	return b.publishEvent("up", bb)
}

func (b *Backend) publishEvent(event string, bb []byte) error {
	topic, err := executeTopic(b.eventTopic, b.gatewayID, "EventType", event)
	if err != nil {
		return errors.Wrap(err, "gateway/mqtt: execute event-topic template error")
	}

	log.WithFields(log.Fields{
		"topic": topic,
		"qos":   b.qos,
		"event": event,
	}).Debug("gateway/mqtt: publishing event")

	if token := b.conn.Publish(topic, b.qos, false, bb); token.Wait() && token.Error() != nil {
		publishErrorCounter(event).Inc()
		return errors.Wrap(token.Error(), "gateway/mqtt: publish event error")
	}
	publishedCounter(event).Inc()

	return nil
}

func (b *Backend) downlinkFrameHandler(c paho.Client, msg paho.Message) {
	b.wg.Add(1)
	defer b.wg.Done()

	b.RLock()
	closed := b.closed
	b.RUnlock()
	if closed {
		return
	}

	var df gw.DownlinkFrame
	if _, err := marshaler.UnmarshalDownlinkFrame(msg.Payload(), &df); err != nil {
		downlinkReceivedCounter("invalid").Inc()
		log.WithFields(log.Fields{
			"data_base64": base64.StdEncoding.EncodeToString(msg.Payload()),
		}).WithError(err).Error("gateway/mqtt: unmarshal downlink frame error")
		return
	}

	if len(df.GatewayId) != 0 && !bytes.Equal(df.GatewayId, b.gatewayID[:]) {
		downlinkReceivedCounter("other_gateway").Inc()
		log.WithFields(log.Fields{
			"gateway_id": b.gatewayID,
			"topic":      msg.Topic(),
		}).Warning("gateway/mqtt: ignoring downlink frame for other gateway")
		return
	}

	log.WithFields(log.Fields{
		"token":      df.Token,
		"items":      len(df.Items),
		"gateway_id": b.gatewayID,
	}).Debug("gateway/mqtt: downlink frame received")

	select {
	case b.downlinkFrameChan <- &df:
		downlinkReceivedCounter("queued").Inc()
	default:
		downlinkReceivedCounter("dropped").Inc()
		log.Warning("gateway/mqtt: downlink frame channel full, dropping frame")
		return
	}

	bb, err := marshaler.MarshalDownlinkTXAck(b.marshaler, newDownlinkTXAck(b.gatewayID, &df))
	if err != nil {
		log.WithError(err).Error("gateway/mqtt: marshal downlink tx ack error")
		return
	}
	if err := b.publishEvent("ack", bb); err != nil {
		log.WithError(err).Error("gateway/mqtt: publish downlink tx ack error")
	}
}

func (b *Backend) onConnected(c paho.Client) {
	connectCounter().Inc()
	log.Info("gateway/mqtt: connected to mqtt server")

	for {
		log.WithFields(log.Fields{
			"topic": b.commandTopic,
			"qos":   b.qos,
		}).Info("gateway/mqtt: subscribing to command topic")
		if token := b.conn.Subscribe(b.commandTopic, b.qos, b.downlinkFrameHandler); token.Wait() && token.Error() != nil {
			log.WithError(token.Error()).WithFields(log.Fields{
				"topic": b.commandTopic,
				"qos":   b.qos,
			}).Error("gateway/mqtt: subscribe error")
			time.Sleep(time.Second)
			continue
		}
		break
	}
}

func (b *Backend) onConnectionLost(c paho.Client, reason error) {
	connectionLostCounter().Inc()
	log.WithError(reason).Error("gateway/mqtt: mqtt connection error")
}

// newDownlinkTXAck acknowledges the first item of the given frame. The
// virtual gateway always "transmits" the first item, the remaining items are
// not evaluated.
func newDownlinkTXAck(gatewayID lorawan.EUI64, df *gw.DownlinkFrame) *gw.DownlinkTXAck {
	ack := gw.DownlinkTXAck{
		GatewayId:  gatewayID[:],
		Token:      df.Token,
		DownlinkId: df.DownlinkId,
	}

	for i := range df.Items {
		status := gw.TxAckStatus_IGNORED
		if i == 0 {
			status = gw.TxAckStatus_OK
		}
		ack.Items = append(ack.Items, &gw.DownlinkTXAckItem{
			Status: status,
		})
	}

	return &ack
}

func executeTopic(t *template.Template, gatewayID lorawan.EUI64, key, value string) (string, error) {
	topic := bytes.NewBuffer(nil)
	if err := t.Execute(topic, map[string]string{
		"GatewayID": gatewayID.String(),
		key:         value,
	}); err != nil {
		return "", err
	}
	return topic.String(), nil
}

func newTLSConfig(cafile, certFile, certKeyFile string) (*tls.Config, error) {
	if cafile == "" && certFile == "" && certKeyFile == "" {
		return nil, nil
	}

	tlsConfig := &tls.Config{}

	// Import trusted certificates from CAfile.pem.
	if cafile != "" {
		cacert, err := os.ReadFile(cafile)
		if err != nil {
			log.WithError(err).Error("gateway/mqtt: could not load ca certificate")
			return nil, err
		}
		certpool := x509.NewCertPool()
		certpool.AppendCertsFromPEM(cacert)

		tlsConfig.RootCAs = certpool
	}

	// Import certificate and the key
	if certFile != "" && certKeyFile != "" {
		kp, err := tls.LoadX509KeyPair(certFile, certKeyFile)
		if err != nil {
			log.WithError(err).Error("gateway/mqtt: could not load mqtt tls key-pair")
			return nil, err
		}
		tlsConfig.Certificates = []tls.Certificate{kp}
	}

	return tlsConfig, nil
}
