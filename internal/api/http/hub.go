package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oshokin/security-zone/internal/events"
	"github.com/oshokin/security-zone/internal/logger"
)

const (
	// clientBuffer is the number of events queued per websocket client.
	clientBuffer = 64
	// writeTimeout bounds a single websocket write.
	writeTimeout = 10 * time.Second
)

// Hub streams events to websocket clients. It implements events.Sink;
// a client that cannot keep up loses events instead of slowing the emitter.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		//nolint:exhaustruct // Default buffer sizes are fine.
		upgrader: websocket.Upgrader{
			// The feed is read-only and served to local dashboards.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handle queues the event for every connected client.
func (h *Hub) Handle(ctx context.Context, event events.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.WarnKV(ctx, "Failed to encode event for websocket clients", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			logger.DebugKV(ctx, "Websocket client is too slow, event dropped",
				"remote", c.conn.RemoteAddr().String(),
				"event_id", event.ID,
			)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithName(r.Context(), "websocket")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnKV(ctx, "Websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	logger.DebugKV(ctx, "Websocket client connected", "remote", conn.RemoteAddr().String())

	go c.writeLoop()

	// Incoming messages are ignored; reading detects the close.
	for {
		if _, _, err = conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	close(c.send)

	logger.DebugKV(ctx, "Websocket client disconnected", "remote", conn.RemoteAddr().String())
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		_ = c.conn.Close()
	}
}

func (c *client) writeLoop() {
	defer c.conn.Close()

	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))

		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
}
