package mockapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/martinsuchenak/netpulse/internal/log"
	"github.com/martinsuchenak/netpulse/internal/model"
	"github.com/martinsuchenak/netpulse/internal/transport"
)

const (
	sendBufferSize = 256
	writeWait      = 5 * time.Second

	// TypeHeartbeat matches the liveness message of the real service.
	TypeHeartbeat = "heartbeat"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub fans push messages out to every connected websocket client.
type Hub struct {
	logger    log.Logger
	heartbeat time.Duration
	keepalive time.Duration

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func newHub(heartbeat, keepalive time.Duration, logger log.Logger) *Hub {
	return &Hub{
		logger:    logger,
		heartbeat: heartbeat,
		keepalive: keepalive,
		clients:   make(map[*wsClient]struct{}),
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}
	h.register(c)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("Websocket client connected", "clients", n)
}

// unregister closes c.send exactly once, whoever gets here first.
func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(c.send)
		h.logger.Debug("Websocket client disconnected", "clients", n)
	}
}

func (h *Hub) snapshot() []*wsClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

// Broadcast sends one typed message to every client.
func (h *Hub) Broadcast(msgType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal push payload", "type", msgType, "error", err)
		return
	}
	frame, err := json.Marshal(transport.Message{Type: msgType, Data: data})
	if err != nil {
		h.logger.Error("Failed to marshal push message", "type", msgType, "error", err)
		return
	}
	h.SendRaw(frame)
}

// BroadcastDevices sends a device_update with one device or a list.
func (h *Hub) BroadcastDevices(devices ...model.Device) {
	if len(devices) == 1 {
		h.Broadcast(model.PushTypeDeviceUpdate, devices[0])
		return
	}
	h.Broadcast(model.PushTypeDeviceUpdate, devices)
}

// SendRaw writes frame as-is, so tests can send keepalives or garbage.
func (h *Hub) SendRaw(frame []byte) {
	clients := h.snapshot()
	for _, c := range clients {
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("Dropping slow websocket client")
			h.unregister(c)
		}
	}
	if len(clients) > 0 {
		h.logger.Debug("Push sent", "recipients", len(clients))
	}
}

// DropConnections closes every socket without a close frame, the way a
// crashed server or a network cut looks to a client.
func (h *Hub) DropConnections() {
	for _, c := range h.snapshot() {
		c.conn.Close()
		h.unregister(c)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	for _, c := range h.snapshot() {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		c.conn.Close()
		h.unregister(c)
	}
}

// readPump only watches for the client going away; clients send nothing.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("Websocket read error", "error", err)
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	tick := every(c.hub.heartbeat)
	defer tick.stop()
	keepalive := every(c.hub.keepalive)
	defer keepalive.stop()
	defer c.conn.Close()

	heartbeat, _ := json.Marshal(map[string]string{"type": TypeHeartbeat, "data": "alive"})

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-tick.c:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, heartbeat); err != nil {
				return
			}
		case <-keepalive.c:
			// Bare text, not JSON. Clients are expected to drop it.
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				return
			}
		}
	}
}

// ticker whose channel stays nil when the interval is disabled.
type ticker struct {
	t *time.Ticker
	c <-chan time.Time
}

func every(d time.Duration) ticker {
	if d <= 0 {
		return ticker{}
	}
	t := time.NewTicker(d)
	return ticker{t: t, c: t.C}
}

func (t ticker) stop() {
	if t.t != nil {
		t.t.Stop()
	}
}
