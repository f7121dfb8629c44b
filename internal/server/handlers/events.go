package handlers

import (
	"net/http"

	"github.com/iudanet/playerid/internal/server/middleware"
)

// Streamer держит websocket соединение игрока
type Streamer interface {
	Serve(w http.ResponseWriter, r *http.Request, playerID string)
}

// EventsHandler обрабатывает GET /api/v1/events (websocket)
type EventsHandler struct {
	stream Streamer
}

// NewEventsHandler создает handler событий
func NewEventsHandler(stream Streamer) *EventsHandler {
	return &EventsHandler{stream: stream}
}

// Events upgrades the authenticated request to a websocket.
func (h *EventsHandler) Events(w http.ResponseWriter, r *http.Request) {
	h.stream.Serve(w, r, middleware.PlayerID(r.Context()))
}
