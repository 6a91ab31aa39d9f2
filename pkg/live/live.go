// Package live broadcasts a Collection's state snapshots to connected
// WebSocket clients, so a browser can mirror server-driven changes without
// polling.
package live

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vitaliisemenov/collectionengine/pkg/collection"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	broadcastDepth = 256
)

// Hub manages WebSocket connections and broadcasts Collection snapshots to
// all of them. One Hub serves one Collection.
type Hub[T any, C any] struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan collection.State[T, C]
	register   chan *websocket.Conn
	unregister chan *websocket.Conn

	mu       sync.RWMutex
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHub creates a Hub. checkOrigin defaults to allow-all when nil; callers
// serving browsers across origins should supply a real check.
func NewHub[T any, C any](logger *slog.Logger, checkOrigin func(*http.Request) bool) *Hub[T, C] {
	if logger == nil {
		logger = slog.Default()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub[T, C]{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan collection.State[T, C], broadcastDepth),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Subscribe wires col's snapshots into the hub's broadcast channel. Returns
// an unsubscribe function that also stops forwarding further snapshots.
func (h *Hub[T, C]) Subscribe(col *collection.Collection[T, C]) func() {
	return col.Subscribe(func(state collection.State[T, C]) {
		select {
		case h.broadcast <- state:
		default:
			h.logger.Warn("live broadcast channel full, dropping snapshot")
		}
	})
}

// Run processes register/unregister/broadcast events until ctx is cancelled.
// Call it in its own goroutine.
func (h *Hub[T, C]) Run(ctx context.Context) {
	h.logger.Info("live hub starting")
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("live hub stopping")
			h.closeAll()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("live client registered", "total_clients", n)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("live client unregistered", "total_clients", n)

		case state := <-h.broadcast:
			h.mu.RLock()
			for conn := range h.clients {
				go h.send(conn, state)
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub[T, C]) send(conn *websocket.Conn, state collection.State[T, C]) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(state); err != nil {
		h.logger.Warn("live send failed, unregistering client", "error", err)
		h.unregister <- conn
	}
}

// ServeHTTP upgrades the connection and starts its read pump.
func (h *Hub[T, C]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("live upgrade failed", "error", err)
		return
	}
	h.register <- conn
	go h.readPump(conn)
}

// readPump keeps the connection alive with ping/pong; the engine never reads
// client-sent payloads.
func (h *Hub[T, C]) readPump(conn *websocket.Conn) {
	defer func() { h.unregister <- conn }()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Hub[T, C]) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
}

// ActiveConnections reports the current connected-client count.
func (h *Hub[T, C]) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
