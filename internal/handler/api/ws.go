package api

import (
	"net/http"
	"sync"
	"time"

	xlogger "predeval/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// UpdateEvent is pushed to WebSocket subscribers when a miner's history
// file grows.
type UpdateEvent struct {
	Type      string    `json:"type"`
	Miner     string    `json:"miner"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub fans miner-update events out to connected WebSocket clients. A slow
// or dead client is dropped, never waited on.
type Hub struct {
	logger *xlogger.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewHub(logger *xlogger.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Handle upgrades the connection and keeps it registered until the client
// goes away.
func (h *Hub) Handle(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	if h.logger != nil {
		h.logger.Debug("ws client connected", xlogger.Int("clients", n))
	}

	// drain incoming frames; the read loop doubles as disconnect detection
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return nil
}

// NotifyUpdate broadcasts a miner-update event to every client.
func (h *Hub) NotifyUpdate(miner string) {
	h.broadcast(UpdateEvent{
		Type:      "update",
		Miner:     miner,
		Timestamp: time.Now().UTC(),
	})
}

func (h *Hub) broadcast(v interface{}) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(v); err != nil {
			h.drop(conn)
		}
	}
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.clients = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()

	if ok {
		_ = conn.Close()
		if h.logger != nil {
			h.logger.Debug("ws client disconnected")
		}
	}
}
