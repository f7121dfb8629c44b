package handlers

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/playerid/internal/server/middleware"
)

// Router собирает handlers и middleware в один http.Handler
type Router struct {
	Logger      *slog.Logger
	Auth        *AuthHandler
	Player      *PlayerHandler
	Links       *LinksHandler
	Friends     *FriendsHandler
	Events      *EventsHandler
	Health      *HealthHandler
	Metrics     *middleware.Metrics
	RateLimiter *middleware.RateLimiter
	// Authenticator проверяет access token защищенных маршрутов
	Authenticator middleware.Authenticator
}

// Handler возвращает корневой handler сервера.
// Порядок: recovery, логирование, rate limit, затем маршрут.
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	requireAuth := middleware.Auth(rt.Logger, rt.Authenticator)

	handle := func(pattern string, h http.HandlerFunc, protected bool) {
		var next http.Handler = h
		if protected {
			next = requireAuth(next)
		}
		if rt.Metrics != nil {
			next = rt.Metrics.Instrument(pattern, next)
		}
		mux.Handle(pattern, next)
	}

	// Публичные маршруты
	handle("POST /api/v1/auth/register", rt.Auth.Register, false)
	handle("POST /api/v1/auth/refresh", rt.Auth.Refresh, false)
	handle("GET /api/v1/health", rt.Health.Health, false)
	// ключ ретранслятора проверяется в самом handler
	handle("POST /api/v1/providers/{provider}/revocations", rt.Links.Revoke, false)

	// Защищенные маршруты
	handle("POST /api/v1/auth/logout", rt.Auth.Logout, true)
	handle("GET /api/v1/player/me", rt.Player.Me, true)
	handle("GET /api/v1/links", rt.Links.List, true)
	handle("POST /api/v1/links/{provider}", rt.Links.Link, true)
	handle("DELETE /api/v1/links/{provider}", rt.Links.Unlink, true)
	handle("GET /api/v1/friends", rt.Friends.List, true)
	handle("POST /api/v1/friends", rt.Friends.Add, true)
	handle("GET /api/v1/friends/leaderboard", rt.Friends.Leaderboard, true)
	handle("DELETE /api/v1/friends/{id}", rt.Friends.Remove, true)
	handle("GET /api/v1/events", rt.Events.Events, true)

	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics.Handler())
	}

	var root http.Handler = mux
	if rt.RateLimiter != nil {
		root = rt.RateLimiter.Middleware(root)
	}
	root = middleware.Logging(rt.Logger, "/api/v1/health", "/metrics")(root)
	return middleware.Recovery(rt.Logger)(root)
}
