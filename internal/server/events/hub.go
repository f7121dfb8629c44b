// Package events pushes server events to connected SDK clients over websocket.
package events

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/playerid/pkg/api"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// connection - websocket соединение игрока со своим мьютексом записи
type connection struct {
	conn       *websocket.Conn
	writeMutex sync.Mutex
}

func (c *connection) write(messageType int, data []byte) error {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(messageType, data)
}

func (c *connection) writeJSON(v any) error {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// Hub хранит соединения по ID игрока; у игрока может быть несколько устройств
type Hub struct {
	connections map[string]map[*connection]struct{}
	upgrader    websocket.Upgrader
	logger      *slog.Logger
	now         func() time.Time
	mu          sync.RWMutex
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		connections: make(map[string]map[*connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// SDK не браузер: Origin не проверяем, аутентификация по Bearer
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
		now:    time.Now,
	}
}

func (h *Hub) add(playerID string, c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.connections[playerID]
	if !ok {
		set = make(map[*connection]struct{})
		h.connections[playerID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) remove(playerID string, c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.connections[playerID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.connections, playerID)
		}
	}
}

// Connected returns the number of open connections of the player.
func (h *Hub) Connected(playerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[playerID])
}

// Publish sends the event to every connection of the player.
// Returns the number of connections the event was written to.
func (h *Hub) Publish(ctx context.Context, playerID string, event api.Event) int {
	if event.Timestamp == 0 {
		event.Timestamp = h.now().Unix()
	}

	h.mu.RLock()
	targets := make([]*connection, 0, len(h.connections[playerID]))
	for c := range h.connections[playerID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if err := c.writeJSON(event); err != nil {
			h.logger.WarnContext(ctx, "Failed to push event",
				"player_id", playerID,
				"type", event.Type,
				"error", err,
			)
			_ = c.conn.Close()
			continue
		}
		delivered++
	}

	h.logger.DebugContext(ctx, "Event published",
		"player_id", playerID,
		"type", event.Type,
		"delivered", delivered,
	)
	return delivered
}

// Serve upgrades the request and keeps the connection registered until the
// client goes away. The caller has already authenticated playerID.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, playerID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		h.logger.WarnContext(r.Context(), "Websocket upgrade failed", "error", err)
		return
	}

	c := &connection{conn: conn}
	h.add(playerID, c)
	h.logger.InfoContext(r.Context(), "Events listener connected", "player_id", playerID)

	defer func() {
		h.remove(playerID, c)
		_ = conn.Close()
		h.logger.InfoContext(r.Context(), "Events listener disconnected", "player_id", playerID)
	}()

	done := make(chan struct{})
	defer close(done)
	go h.ping(c, done)

	// Клиент ничего не шлет; чтение нужно для control frames и обнаружения разрыва
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) ping(c *connection, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// CloseAll closes every connection; used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for playerID, set := range h.connections {
		for c := range set {
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
			_ = c.conn.Close()
		}
		delete(h.connections, playerID)
	}
}
