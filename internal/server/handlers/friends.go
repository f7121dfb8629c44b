package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/playerid/internal/models"
	"github.com/iudanet/playerid/internal/server/middleware"
	"github.com/iudanet/playerid/internal/server/storage"
	"github.com/iudanet/playerid/pkg/api"
)

// FriendsHandler обрабатывает список друзей и рейтинг
type FriendsHandler struct {
	logger        *slog.Logger
	friendStorage storage.FriendStorage
	now           func() time.Time
}

// NewFriendsHandler создает handler друзей
func NewFriendsHandler(logger *slog.Logger, friends storage.FriendStorage) *FriendsHandler {
	return &FriendsHandler{logger: logger, friendStorage: friends, now: time.Now}
}

// List обрабатывает GET /api/v1/friends
func (h *FriendsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	friends, err := h.friendStorage.ListFriends(ctx, middleware.PlayerID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list friends", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.FriendsResponse{Friends: make([]api.Friend, 0, len(friends))}
	for _, f := range friends {
		resp.Friends = append(resp.Friends, api.Friend{
			PlayerID: f.PlayerID,
			Username: f.Username,
			Score:    f.Score,
			AddedAt:  f.AddedAt.Unix(),
		})
	}

	sendJSON(h.logger, w, resp, http.StatusOK)
}

// Add обрабатывает POST /api/v1/friends
func (h *FriendsHandler) Add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	playerID := middleware.PlayerID(ctx)

	var req api.AddFriendRequest
	if err := decodeJSON(w, r, &req); err != nil || req.FriendID == "" {
		sendError(h.logger, w, "friend_id is required", http.StatusBadRequest)
		return
	}
	if req.FriendID == playerID {
		sendError(h.logger, w, "cannot add yourself as a friend", http.StatusBadRequest)
		return
	}

	err := h.friendStorage.AddFriend(ctx, &models.Friendship{
		PlayerID:  playerID,
		FriendID:  req.FriendID,
		CreatedAt: h.now().UTC(),
	})
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrPlayerNotFound):
		sendError(h.logger, w, "player not found", http.StatusNotFound)
		return
	case errors.Is(err, storage.ErrFriendAlreadyExists):
		sendError(h.logger, w, "already friends", http.StatusConflict)
		return
	default:
		h.logger.ErrorContext(ctx, "failed to add friend", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// Remove обрабатывает DELETE /api/v1/friends/{id}
func (h *FriendsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	err := h.friendStorage.RemoveFriend(ctx, middleware.PlayerID(ctx), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrFriendNotFound) {
			sendError(h.logger, w, "friend not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to remove friend", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Leaderboard обрабатывает GET /api/v1/friends/leaderboard.
// Игрок с равным счетом получает тот же ранг (1, 2, 2, 4).
func (h *FriendsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rows, err := h.friendStorage.Leaderboard(ctx, middleware.PlayerID(ctx))
	if err != nil {
		if errors.Is(err, storage.ErrPlayerNotFound) {
			sendError(h.logger, w, "player not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to build leaderboard", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.LeaderboardResponse{Entries: make([]api.LeaderboardEntry, 0, len(rows))}
	for i, row := range rows {
		rank := i + 1
		if i > 0 && row.Score == rows[i-1].Score {
			rank = resp.Entries[i-1].Rank
		}
		resp.Entries = append(resp.Entries, api.LeaderboardEntry{
			Rank:     rank,
			PlayerID: row.PlayerID,
			Username: row.Username,
			Score:    row.Score,
		})
	}

	sendJSON(h.logger, w, resp, http.StatusOK)
}
