package mqtt

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/DrmagicE/gmqtt"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/twinrelay/core/metrics"
	"github.com/relabs-tech/twinrelay/iot/patch"
	"github.com/relabs-tech/twinrelay/iot/twin"
)

type fakeTwins struct {
	applied map[string][]patch.Document
	twins   map[string]twin.Twin
	err     error
}

func (f *fakeTwins) Get(_ context.Context, id string) (twin.Twin, error) {
	if f.err != nil {
		return twin.Twin{}, f.err
	}
	t, ok := f.twins[id]
	if !ok {
		return twin.Twin{ID: id}, twin.ErrNotFound
	}
	return t, nil
}

func (f *fakeTwins) Apply(_ context.Context, id string, doc patch.Document) (twin.Twin, error) {
	if f.err != nil {
		return twin.Twin{}, f.err
	}
	f.applied[id] = append(f.applied[id], doc)
	return twin.Twin{ID: id}, nil
}

type published struct {
	topic   string
	payload string
}

func newTestPlugin(t *testing.T, twins *fakeTwins) (*plugin, *[]published) {
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	p := newPlugin(nil, twins, m)
	messages := &[]published{}
	p.publish = func(topic string, payload []byte) {
		*messages = append(*messages, published{topic, string(payload)})
	}
	return p, messages
}

func TestHandleTelemetry(t *testing.T) {
	twins := &fakeTwins{applied: map[string][]patch.Document{}}
	p, _ := newTestPlugin(t, twins)

	err := p.handleTelemetry(context.Background(), "hvac1", []byte(`{"temperature":21.5,"airflow":42,"humidity":3}`))
	require.NoError(t, err)
	require.Len(t, twins.applied["hvac1"], 1)
	doc := twins.applied["hvac1"][0]
	require.Len(t, doc, 2)
	assert.Equal(t, "/temperature", doc[0].Path)
	assert.Equal(t, "/airflow", doc[1].Path)

	require.NoError(t, p.handleTelemetry(context.Background(), "hvac1", []byte(`{"humidity":3}`)))
	assert.Len(t, twins.applied["hvac1"], 1)

	err = p.handleTelemetry(context.Background(), "hvac1", []byte(`not json`))
	assert.Error(t, err)
}

func TestHandleTelemetry_StoreError(t *testing.T) {
	twins := &fakeTwins{err: errors.New("database down")}
	p, _ := newTestPlugin(t, twins)
	assert.Error(t, p.handleTelemetry(context.Background(), "hvac1", []byte(`{"State":true}`)))
}

func TestHandleTwinGet(t *testing.T) {
	twins := &fakeTwins{twins: map[string]twin.Twin{
		"thermostat67": {ID: "thermostat67", Properties: json.RawMessage(`{"Temperature":43}`), Version: 2},
	}}
	p, messages := newTestPlugin(t, twins)

	p.handleTwinGet(context.Background(), "thermostat67")
	p.handleTwinGet(context.Background(), "hvac1")
	require.Len(t, *messages, 2)

	assert.Equal(t, "twinrelay/thermostat67/twin", (*messages)[0].topic)
	received := twin.Twin{}
	require.NoError(t, json.Unmarshal([]byte((*messages)[0].payload), &received))
	assert.Equal(t, 2, received.Version)
	assert.JSONEq(t, `{"Temperature":43}`, string(received.Properties))

	assert.Equal(t, "twinrelay/hvac1/twin", (*messages)[1].topic)
	require.NoError(t, json.Unmarshal([]byte((*messages)[1].payload), &received))
	assert.JSONEq(t, `{}`, string(received.Properties))
}

func TestHandleTwinGet_StoreError(t *testing.T) {
	p, messages := newTestPlugin(t, &fakeTwins{err: errors.New("database down")})
	p.handleTwinGet(context.Background(), "hvac1")
	assert.Empty(t, *messages)
}

func TestBroker_Report(t *testing.T) {
	twins := &fakeTwins{applied: map[string][]patch.Document{}}
	p, _ := newTestPlugin(t, twins)
	b := &Broker{p: p}

	err := b.Report(context.Background(), "motion1", map[string]any{"IsOccupied": 1})
	assert.Error(t, err, "IsOccupied must be a boolean")

	require.NoError(t, b.Report(context.Background(), "motion1", map[string]any{"IsOccupied": true}))
	require.Len(t, twins.applied["motion1"], 1)
	assert.Equal(t, patch.Document{{Op: patch.Add, Path: "/IsOccupied", Value: json.RawMessage(`true`)}}, twins.applied["motion1"][0])
}

func TestSubscriptionAllowed(t *testing.T) {
	assert.True(t, subscriptionAllowed("hvac1", "twinrelay/hvac1/twin"))
	assert.True(t, subscriptionAllowed("hvac1", "twinrelay/hvac1/twin/patch"))
	assert.False(t, subscriptionAllowed("hvac1", "twinrelay/hvac2/twin"))
	assert.False(t, subscriptionAllowed("hvac1", "twinrelay/hvac1/telemetry"))
	assert.False(t, subscriptionAllowed("hvac1", "twinrelay/#"))
}

func TestValidDeviceID(t *testing.T) {
	assert.True(t, validDeviceID("thermostat67"))
	assert.False(t, validDeviceID(""))
	assert.False(t, validDeviceID("a/b"))
	assert.False(t, validDeviceID("a+"))
	assert.False(t, validDeviceID("#"))
}

func TestNewBroker_MandatoryFields(t *testing.T) {
	assert.Panics(t, func() { NewBroker(&Builder{}) })
	assert.Panics(t, func() { NewBroker(&Builder{CACertFile: "ca.pem", CertFile: "c.pem", KeyFile: "k.pem"}) })
}

type closedClient struct {
	gmqtt.Client
	conn net.Conn
}

func (c closedClient) Connection() net.Conn { return c.conn }

func TestOnCloseWrapper_ForgetsDevice(t *testing.T) {
	p, _ := newTestPlugin(t, &fakeTwins{})
	conn, other := net.Pipe()
	defer conn.Close()
	defer other.Close()

	p.deviceIds[conn] = "hvac1"
	p.deviceIds[other] = "motion1"
	require.Equal(t, "hvac1", p.deviceIDFromConnection(conn))

	called := false
	onClose := p.OnCloseWrapper(func(ctx context.Context, client gmqtt.Client, err error) {
		called = true
	})
	onClose(context.Background(), closedClient{conn: conn}, nil)

	assert.True(t, called)
	assert.Empty(t, p.deviceIDFromConnection(conn))
	assert.Equal(t, "motion1", p.deviceIDFromConnection(other))
	assert.Len(t, p.deviceIds, 1)
}
