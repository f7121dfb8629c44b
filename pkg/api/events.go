package api

// Типы событий, отправляемых сервером по websocket
const (
	EventAccessRevoked = "access_revoked"
	EventLinksChanged  = "links_changed"
)

// Event is a server push delivered over the events websocket.
type Event struct {
	Type      string `json:"type"`
	Provider  string `json:"provider,omitempty"`
	Timestamp int64  `json:"timestamp"`
}
