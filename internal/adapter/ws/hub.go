// Package ws streams calibration status snapshots to AR clients over
// WebSocket.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/couchcryptid/flood-overlay/internal/domain"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 8
)

type client struct {
	conn *websocket.Conn
	send chan domain.CalibrationStatus
}

// Hub fans calibration status out to connected clients. A newly connected
// client first receives the most recent status. Clients that fall behind are
// disconnected.
//
// Hub implements pipeline.StatusPublisher and http.Handler.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	last    *domain.CalibrationStatus
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and streams status until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	c := &client{conn: conn, send: make(chan domain.CalibrationStatus, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- *h.last
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "remote", r.RemoteAddr, "clients", n)

	go h.writeLoop(c)

	// Inbound messages are ignored; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(c)
	h.logger.Debug("websocket client disconnected", "remote", r.RemoteAddr)
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for st := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(st); err != nil {
			h.logger.Debug("websocket write failed", "error", err)
			h.drop(c)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

// drop unregisters c and closes its send channel once.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// PublishStatus queues st for every client. It never blocks on a slow client.
func (h *Hub) PublishStatus(_ context.Context, st domain.CalibrationStatus) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &st
	for c := range h.clients {
		select {
		case c.send <- st:
		default:
			h.logger.Warn("websocket client too slow, disconnecting")
			delete(h.clients, c)
			close(c.send)
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
