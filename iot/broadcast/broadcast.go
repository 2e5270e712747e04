/*Package broadcast pushes twin changes to websocket clients

Every connected client receives one JSON frame per change:

	{"target":"newMessage","arguments":[{"twinId":"thermostat67","modelId":"...","/Front/Temperature":43}]}

The argument is the change message flattened with patch.Broadcast. Clients which cannot keep
up are disconnected.
*/
package broadcast

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/twinrelay/core/logger"
	"github.com/relabs-tech/twinrelay/core/metrics"
	"github.com/relabs-tech/twinrelay/iot"
	"github.com/relabs-tech/twinrelay/iot/patch"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

// Frame is the websocket frame sent to clients
type Frame struct {
	Target    string `json:"target"`
	Arguments []any  `json:"arguments"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub keeps track of the connected websocket clients
type Hub struct {
	upgrader  websocket.Upgrader
	clientsMu sync.RWMutex
	clients   map[*client]bool
	metrics   *metrics.Metrics
}

var (
	_ http.Handler        = (*Hub)(nil)
	_ iot.ChangePublisher = (*Hub)(nil)
)

// NewHub returns a hub. Metrics is optional.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]bool),
		metrics: m,
	}
}

// ServeHTTP upgrades the request to a websocket connection and registers the client
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.FromContext(r.Context()).WithError(err).Warnln("websocket upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.clientsMu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.clientsMu.Unlock()
	h.metrics.SetHubClients(count)

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards incoming frames and unregisters the client when the connection closes
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(c)
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// remove unregisters c. It is safe to call remove more than once.
func (h *Hub) remove(c *client) {
	h.clientsMu.Lock()
	if !h.clients[c] {
		h.clientsMu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.clientsMu.Unlock()
	h.metrics.SetHubClients(count)
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Send sends a raw frame to all clients. Clients whose send buffer is full are dropped.
func (h *Hub) Send(data []byte) {
	var slow []*client
	h.clientsMu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.clientsMu.RUnlock()
	for _, c := range slow {
		logger.Default().Warnln("dropping slow websocket client", c.conn.RemoteAddr())
		h.remove(c)
	}
}

// PublishChange implements iot.ChangePublisher
func (h *Hub) PublishChange(_ context.Context, msg patch.Message) error {
	argument, err := patch.Broadcast(msg)
	if err != nil {
		return err
	}
	data, err := json.Marshal(Frame{Target: patch.BroadcastTarget, Arguments: []any{argument}})
	if err != nil {
		return err
	}
	h.Send(data)
	return nil
}

// Close disconnects all clients
func (h *Hub) Close() {
	h.clientsMu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.clientsMu.Unlock()
	h.metrics.SetHubClients(0)
}
