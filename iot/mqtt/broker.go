package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/DrmagicE/gmqtt"
	"github.com/DrmagicE/gmqtt/pkg/packets"

	"github.com/relabs-tech/twinrelay/core/logger"
	"github.com/relabs-tech/twinrelay/core/metrics"
	"github.com/relabs-tech/twinrelay/iot"
	"github.com/relabs-tech/twinrelay/iot/patch"
	"github.com/relabs-tech/twinrelay/iot/twin"
)

// TwinStore is the part of the twin graph used by the broker
type TwinStore interface {
	Get(ctx context.Context, id string) (twin.Twin, error)
	Apply(ctx context.Context, id string, doc patch.Document) (twin.Twin, error)
}

// Broker is a MQTT broker for IoT.
type Broker struct {
	p *plugin
}

var _ iot.MessagePublisher = (*Broker)(nil)

// Builder is a builder helper for the Broker
type Builder struct {
	// Twins receives the telemetry of the devices. This is mandatory.
	Twins TwinStore
	// Metrics is optional
	Metrics *metrics.Metrics
	// Address is the TLS listen address. Defaults to ":8883".
	Address string
	// CACertFile is the file path to the X.509 certificate of the certificate authority.
	// This is mandatory
	CACertFile string
	// CertFile is the file path to the X.509 certificate file. This is mandatory.
	CertFile string
	// KeyFile is the file path to the X.509 private key file. This is mandatory.
	KeyFile string
}

// plugin is the plugin for GMQTT
type plugin struct {
	tlsln          net.Listener
	deviceIdsRwmux sync.RWMutex
	deviceIds      map[net.Conn]string

	publish func(topic string, payload []byte)

	twins   TwinStore
	metrics *metrics.Metrics
}

// NewBroker returns a new broker. The broker will not
// actually run until you call Run()
func NewBroker(bb *Builder) *Broker {

	if len(bb.CACertFile) == 0 {
		panic("ca-cert file misssing")
	}

	if len(bb.CertFile) == 0 {
		panic("cert file missing")
	}

	if len(bb.KeyFile) == 0 {
		panic("key file missing")
	}

	if bb.Twins == nil {
		panic("Twins is missing")
	}

	crt, err := tls.LoadX509KeyPair(bb.CertFile, bb.KeyFile)
	if err != nil {
		panic(err)
	}

	caCert, err := os.ReadFile(bb.CACertFile)
	if err != nil {
		panic(err)
	}
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		panic("no certificate found in " + bb.CACertFile)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{crt},
		ClientCAs:    caCertPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
	}
	address := bb.Address
	if address == "" {
		address = ":8883"
	}
	tlsln, err := tls.Listen("tcp", address, tlsConfig)
	if err != nil {
		panic(err)
	}

	return &Broker{p: newPlugin(tlsln, bb.Twins, bb.Metrics)}
}

func newPlugin(ln net.Listener, twins TwinStore, m *metrics.Metrics) *plugin {
	return &plugin{
		tlsln:     ln,
		deviceIds: make(map[net.Conn]string),
		twins:     twins,
		metrics:   m,
		publish: func(topic string, _ []byte) {
			logger.Default().Errorln("Error 4801: broker not running, dropped message on", topic)
		},
	}
}

// Run is blocking and runs the server until ctx is done
func (b *Broker) Run(ctx context.Context) error {
	s := gmqtt.NewServer(
		gmqtt.WithTCPListener(b.p.tlsln),
		gmqtt.WithPlugin(b.p),
	)
	s.Run()
	logger.Default().Infoln("mqtt broker started on", b.p.tlsln.Addr())
	<-ctx.Done()
	s.Stop(context.Background())
	logger.Default().Infoln("mqtt broker stopped")
	return nil
}

// PublishMessageQ1 publishes an MQTT messsage with quality level 1
func (b *Broker) PublishMessageQ1(topic string, payload []byte) {
	logger.Default().Debugf("PublishMessageQ1 on %s (%d bytes)", topic, len(payload))
	b.p.publish(topic, payload)
}

// Report implements simulator.Reporter. Simulated devices report like connected devices on
// their telemetry topic, but without a network connection.
func (b *Broker) Report(ctx context.Context, deviceID string, values map[string]any) error {
	body, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return b.p.handleTelemetry(ctx, deviceID, body)
}

// Load implements plugin interface
func (p *plugin) Load(service gmqtt.Server) error {
	logger.Default().Infoln("load twinrelay broker plugin")
	p.publish = func(topic string, payload []byte) {
		service.PublishService().Publish(gmqtt.NewMessage(topic, payload, packets.QOS_1))
	}
	return nil
}

// Unload implements plugin interface
func (p *plugin) Unload() error {
	return nil
}

// Name implements plugin interface
func (p *plugin) Name() string { return "twinrelay broker" }

// HookWrapper implements plugin interface
func (p *plugin) HookWrapper() gmqtt.HookWrapper {
	return gmqtt.HookWrapper{
		OnAcceptWrapper:     p.OnAcceptWrapper,
		OnConnectWrapper:    p.OnConnectWrapper,
		OnSubscribeWrapper:  p.OnSubscribeWrapper,
		OnSubscribedWrapper: p.OnSubscribedWrapper,
		OnMsgArrivedWrapper: p.OnMsgArrivedWrapper,
		OnCloseWrapper:      p.OnCloseWrapper,
	}
}

func (p *plugin) deviceIDFromConnection(conn net.Conn) string {
	p.deviceIdsRwmux.RLock()
	defer p.deviceIdsRwmux.RUnlock()
	return p.deviceIds[conn]
}

// validDeviceID rejects ids which cannot be used as a single topic level
func validDeviceID(id string) bool {
	return id != "" && !strings.ContainsAny(id, "/+#")
}

// OnAcceptWrapper authorizes clients via TLS certificates
func (p *plugin) OnAcceptWrapper(accept gmqtt.OnAccept) gmqtt.OnAccept {
	return func(ctx context.Context, conn net.Conn) bool {
		tlsConn, ok := conn.(*tls.Conn)
		if ok {
			err := tlsConn.Handshake()
			if err != nil {
				return false
			}
			state := tlsConn.ConnectionState()
			if len(state.VerifiedChains) == 0 || len(state.VerifiedChains[0]) == 0 {
				return false
			}
			commonName := state.VerifiedChains[0][0].Subject.CommonName
			if !validDeviceID(commonName) {
				logger.Default().Warnln("invalid device ID in certificate:", commonName)
				return false
			}

			p.deviceIdsRwmux.Lock()
			p.deviceIds[conn] = commonName
			p.deviceIdsRwmux.Unlock()
			logger.Default().Debugln("accept", commonName)
		}
		return accept(ctx, conn)
	}
}

// OnCloseWrapper forgets the device id of the closed connection
func (p *plugin) OnCloseWrapper(closed gmqtt.OnClose) gmqtt.OnClose {
	return func(ctx context.Context, client gmqtt.Client, err error) {
		p.forget(client.Connection())
		closed(ctx, client, err)
	}
}

func (p *plugin) forget(conn net.Conn) {
	p.deviceIdsRwmux.Lock()
	delete(p.deviceIds, conn)
	p.deviceIdsRwmux.Unlock()
}

// OnConnectWrapper enforces that the MQTT client ID matches the certificate common name
func (p *plugin) OnConnectWrapper(connect gmqtt.OnConnect) gmqtt.OnConnect {
	return func(ctx context.Context, client gmqtt.Client) (code uint8) {
		deviceID := p.deviceIDFromConnection(client.Connection())
		if client.OptionsReader().ClientID() != deviceID {
			logger.Default().Warnln("connect denied,", client.OptionsReader().ClientID(), "not authorized")
			return packets.CodeNotAuthorized
		}
		logger.Default().Infoln("connect", deviceID)
		return connect(ctx, client)
	}
}

// OnMsgArrivedWrapper intercepts messages
func (p *plugin) OnMsgArrivedWrapper(arrived gmqtt.OnMsgArrived) gmqtt.OnMsgArrived {
	return func(ctx context.Context, client gmqtt.Client, msg packets.Message) (valid bool) {
		deviceID := client.OptionsReader().ClientID()
		switch msg.Topic() {
		case iot.TelemetryTopic(deviceID):
			if err := p.handleTelemetry(ctx, deviceID, msg.Payload()); err != nil {
				return false
			}
		case iot.TwinGetTopic(deviceID):
			p.handleTwinGet(ctx, deviceID)
		default:
			if strings.HasPrefix(msg.Topic(), iot.TopicPrefix) {
				logger.Default().Warnln("device", deviceID, "publish to", msg.Topic(), "denied!")
				return false
			}
		}
		return arrived(ctx, client, msg)
	}
}

// handleTelemetry turns a telemetry message into a patch of the device's twin
func (p *plugin) handleTelemetry(ctx context.Context, deviceID string, body []byte) (err error) {
	defer func() { p.metrics.RecordTelemetry(err) }()
	ctx, rlog := logger.ContextWithTwin(ctx, deviceID)

	doc, err := patch.FromTelemetry(body)
	if err != nil {
		rlog.WithError(err).Errorln("Error 4802: invalid telemetry")
		return err
	}
	if len(doc) == 0 {
		return nil
	}
	if _, err = p.twins.Apply(ctx, deviceID, doc); err != nil {
		rlog.WithError(err).Errorln("Error 4803: cannot apply telemetry")
		return err
	}
	return nil
}

// handleTwinGet publishes the device's twin on its twin topic. A device without twin
// receives an empty twin.
func (p *plugin) handleTwinGet(ctx context.Context, deviceID string) {
	ctx, rlog := logger.ContextWithTwin(ctx, deviceID)
	t, err := p.twins.Get(ctx, deviceID)
	if err != nil && !errors.Is(err, twin.ErrNotFound) {
		rlog.WithError(err).Errorln("Error 4804: cannot read twin")
		return
	}
	if len(t.Properties) == 0 {
		t.Properties = json.RawMessage("{}")
	}
	payload, err := json.Marshal(t)
	if err != nil {
		rlog.WithError(err).Errorln("Error 4805: cannot marshal twin")
		return
	}
	p.publish(iot.TwinTopic(deviceID), payload)
}

// subscriptionAllowed is the topic policy: a device may only subscribe to its own twin and
// patch topics
func subscriptionAllowed(deviceID, topic string) bool {
	return topic == iot.TwinTopic(deviceID) || topic == iot.PatchTopic(deviceID)
}

// OnSubscribeWrapper enforces topic policy
func (p *plugin) OnSubscribeWrapper(subscribe gmqtt.OnSubscribe) gmqtt.OnSubscribe {
	return func(ctx context.Context, client gmqtt.Client, topic packets.Topic) (qos uint8) {
		deviceID := client.OptionsReader().ClientID()
		if !subscriptionAllowed(deviceID, topic.Name) {
			logger.Default().Warnln("OnSubscribe", deviceID, topic.Name, "denied!")
			return packets.SUBSCRIBE_FAILURE
		}
		return subscribe(ctx, client, topic)
	}
}

// OnSubscribedWrapper logs the subscription
func (p *plugin) OnSubscribedWrapper(subscribed gmqtt.OnSubscribed) gmqtt.OnSubscribed {
	return func(ctx context.Context, client gmqtt.Client, topic packets.Topic) {
		logger.Default().Debugln("OnSubscribed", client.OptionsReader().ClientID(), topic.Name)
		subscribed(ctx, client, topic)
	}
}
