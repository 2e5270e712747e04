package broadcast

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/twinrelay/core/metrics"
	"github.com/relabs-tech/twinrelay/iot/patch"
)

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestHub_PublishChange(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	require.NoError(t, err)
	hub := NewHub(m)
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	conn := dial(t, server)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	msg := patch.Message{
		EntityIdentifier: "thermostat67",
		ModelID:          "dtmi:foobar:Thermostat;1",
		Patch:            patch.Document{{Op: patch.Replace, Path: "/Front/Temperature", Value: json.RawMessage(`43`)}},
	}
	require.NoError(t, hub.PublishChange(context.Background(), msg))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"target":"newMessage","arguments":[
		{"twinId":"thermostat67","modelId":"dtmi:foobar:Thermostat;1","/Front/Temperature":43}]}`, string(data))

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(registry, "twinrelay_broadcast_clients"))
}

func TestHub_PublishChange_MissingIdentifier(t *testing.T) {
	hub := NewHub(nil)
	err := hub.PublishChange(context.Background(), patch.Message{})
	assert.ErrorIs(t, err, patch.ErrMalformedInput)
}

func TestHub_DropsSlowClients(t *testing.T) {
	hub := NewHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	// the client never reads, the buffers fill up eventually
	payload := []byte(strings.Repeat("x", 64*1024))
	require.Eventually(t, func() bool {
		hub.Send(payload)
		return hub.Clients() == 0
	}, 10*time.Second, time.Millisecond)
}
