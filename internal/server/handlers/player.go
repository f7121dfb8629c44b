package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/iudanet/playerid/internal/server/middleware"
	"github.com/iudanet/playerid/internal/server/storage"
	"github.com/iudanet/playerid/pkg/api"
)

// PlayerHandler отдает профиль игрока
type PlayerHandler struct {
	logger        *slog.Logger
	playerStorage storage.PlayerStorage
	now           func() time.Time
}

// NewPlayerHandler создает handler профиля
func NewPlayerHandler(logger *slog.Logger, players storage.PlayerStorage) *PlayerHandler {
	return &PlayerHandler{logger: logger, playerStorage: players, now: time.Now}
}

// Me обрабатывает GET /api/v1/player/me
func (h *PlayerHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	player, err := h.playerStorage.GetPlayerByID(ctx, middleware.PlayerID(ctx))
	if err != nil {
		if errors.Is(err, storage.ErrPlayerNotFound) {
			sendError(h.logger, w, "player not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get player", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	// access token мог быть выдан до блокировки
	if player.Banned {
		sendAuthError(h.logger, w, http.StatusForbidden, api.CodeBannedUser, "player is banned", banNotice(player, h.now()))
		return
	}

	props := map[string]string{
		"device_id": player.DeviceID,
		"score":     strconv.FormatInt(player.Score, 10),
	}
	if player.LastLogin != nil {
		props["last_login"] = strconv.FormatInt(player.LastLogin.Unix(), 10)
	}

	sendJSON(h.logger, w, api.PlayerInfoResponse{
		Username:   player.Username,
		UUID:       player.ID,
		Name:       player.Name,
		AppID:      player.AppID,
		BundleID:   player.AppID,
		Country:    player.Country,
		CreatedAt:  player.CreatedAt.Unix(),
		Platform:   player.Platform,
		Version:    player.Version,
		Build:      player.Build,
		Properties: props,
	}, http.StatusOK)
}
