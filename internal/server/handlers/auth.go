package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/playerid/internal/crypto"
	"github.com/iudanet/playerid/internal/models"
	"github.com/iudanet/playerid/internal/server/auth"
	"github.com/iudanet/playerid/internal/server/middleware"
	"github.com/iudanet/playerid/internal/server/storage"
	"github.com/iudanet/playerid/internal/validation"
	"github.com/iudanet/playerid/pkg/api"
)

// AuthHandler обрабатывает регистрацию устройств и обновление токенов
type AuthHandler struct {
	logger        *slog.Logger
	playerStorage storage.PlayerStorage
	tokenStorage  storage.TokenStorage
	issuer        *auth.Issuer
	now           func() time.Time
}

// NewAuthHandler создает новый handler для авторизации
func NewAuthHandler(logger *slog.Logger, players storage.PlayerStorage, tokens storage.TokenStorage, issuer *auth.Issuer) *AuthHandler {
	return &AuthHandler{
		logger:        logger,
		playerStorage: players,
		tokenStorage:  tokens,
		issuer:        issuer,
		now:           time.Now,
	}
}

// Register обрабатывает POST /api/v1/auth/register
// Первый вызов с устройства создает игрока, повторные выдают новую пару токенов
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode register request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	// 1. Валидация полей
	if err := validation.ValidateAppID(req.AppID); err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateDeviceID(req.DeviceID); err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.SecretHash == "" {
		sendError(h.logger, w, "secret_hash is required", http.StatusBadRequest)
		return
	}
	if req.Assertion == "" {
		sendError(h.logger, w, "assertion is required", http.StatusBadRequest)
		return
	}

	// 2. Проверка assertion приложения
	if err := h.issuer.VerifyAssertion(req.Assertion, req.AppID, req.DeviceID); err != nil {
		h.logger.WarnContext(ctx, "registration assertion rejected",
			slog.String("app_id", req.AppID),
			slog.Any("error", err))
		switch {
		case errors.Is(err, auth.ErrUnknownApp), errors.Is(err, auth.ErrEnvironmentMismatch):
			sendAuthError(h.logger, w, http.StatusForbidden, api.CodeEnvironmentMismatch, err.Error())
		default:
			sendAuthError(h.logger, w, http.StatusUnauthorized, api.CodeClientInvalidUser, "invalid app assertion")
		}
		return
	}

	// 3. Находим или создаем игрока
	player, created, err := h.findOrCreatePlayer(r, &req)
	if err != nil {
		if errors.Is(err, errCredentialMismatch) {
			sendAuthError(h.logger, w, http.StatusUnauthorized, api.CodeClientInvalidUser, "device credential mismatch")
			return
		}
		h.logger.ErrorContext(ctx, "failed to register player", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	// 4. Заблокированный игрок получает уведомление с номером обращения
	if player.Banned {
		h.sendBanned(w, r, player)
		return
	}

	// 5. Выпускаем токены
	resp, err := h.issue(r, player)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue tokens", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}

	h.logger.InfoContext(ctx, "device registered",
		slog.String("player_id", player.ID),
		slog.String("app_id", player.AppID),
		slog.Bool("new_player", created))

	sendJSON(h.logger, w, resp, status)
}

var errCredentialMismatch = errors.New("device credential mismatch")

func (h *AuthHandler) findOrCreatePlayer(r *http.Request, req *api.RegisterRequest) (*models.Player, bool, error) {
	ctx := r.Context()

	player, err := h.playerStorage.GetPlayerByDevice(ctx, req.AppID, req.DeviceID)
	switch {
	case err == nil:
		if !crypto.SecretHashesEqual(player.SecretHash, req.SecretHash) {
			return nil, false, errCredentialMismatch
		}
		if player.Platform != req.Platform || player.Version != req.Version || player.Build != req.Build {
			player.Platform, player.Version, player.Build = req.Platform, req.Version, req.Build
			if err := h.playerStorage.UpdatePlayer(ctx, player); err != nil {
				return nil, false, err
			}
		}
		return player, false, nil
	case !errors.Is(err, storage.ErrPlayerNotFound):
		return nil, false, err
	}

	id := uuid.New()
	player = &models.Player{
		ID:         id.String(),
		Username:   "player_" + id.String()[:8],
		Name:       "Player " + id.String()[:4],
		AppID:      req.AppID,
		DeviceID:   req.DeviceID,
		SecretHash: req.SecretHash,
		Country:    r.Header.Get("X-Country-Code"),
		Platform:   req.Platform,
		Version:    req.Version,
		Build:      req.Build,
		CreatedAt:  h.now().UTC(),
	}

	if err := h.playerStorage.CreatePlayer(ctx, player); err != nil {
		if errors.Is(err, storage.ErrPlayerAlreadyExists) {
			// параллельная регистрация с того же устройства
			existing, getErr := h.playerStorage.GetPlayerByDevice(ctx, req.AppID, req.DeviceID)
			if getErr != nil {
				return nil, false, getErr
			}
			if !crypto.SecretHashesEqual(existing.SecretHash, req.SecretHash) {
				return nil, false, errCredentialMismatch
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	return player, true, nil
}

// Refresh обрабатывает POST /api/v1/auth/refresh
// Refresh token одноразовый: при успехе он заменяется новым
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		sendError(h.logger, w, "refresh_token is required", http.StatusBadRequest)
		return
	}

	stored, err := h.tokenStorage.GetRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			h.logger.WarnContext(ctx, "unknown refresh token")
			sendAuthError(h.logger, w, http.StatusUnauthorized, api.CodeClientInvalidTokenExpired, "refresh token is invalid or revoked")
			return
		}
		h.logger.ErrorContext(ctx, "failed to get refresh token", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	if !h.now().Before(stored.ExpiresAt) {
		_ = h.tokenStorage.DeleteRefreshToken(ctx, stored.Token)
		sendAuthError(h.logger, w, http.StatusUnauthorized, api.CodeClientInvalidTokenExpired, "refresh token expired")
		return
	}

	player, err := h.playerStorage.GetPlayerByID(ctx, stored.PlayerID)
	if err != nil {
		if errors.Is(err, storage.ErrPlayerNotFound) {
			sendAuthError(h.logger, w, http.StatusUnauthorized, api.CodeClientInvalidUser, "player not found")
			return
		}
		h.logger.ErrorContext(ctx, "failed to get player", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	if player.Banned {
		if _, err := h.tokenStorage.DeletePlayerTokens(ctx, player.ID); err != nil {
			h.logger.ErrorContext(ctx, "failed to revoke tokens of banned player", slog.Any("error", err))
		}
		h.sendBanned(w, r, player)
		return
	}

	issued, err := h.issuer.Issue(player)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue tokens", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	next := &models.RefreshToken{
		Token:     issued.RefreshToken,
		PlayerID:  player.ID,
		ExpiresAt: issued.RefreshUntil,
		CreatedAt: issued.IssuedAt,
	}
	if err := h.tokenStorage.RotateRefreshToken(ctx, stored.Token, next); err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			// токен уже использован параллельным запросом
			sendAuthError(h.logger, w, http.StatusUnauthorized, api.CodeClientInvalidTokenExpired, "refresh token already used")
			return
		}
		h.logger.ErrorContext(ctx, "failed to rotate refresh token", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "tokens refreshed", slog.String("player_id", player.ID))

	sendJSON(h.logger, w, tokenResponse(player.ID, issued), http.StatusOK)
}

// Logout обрабатывает POST /api/v1/auth/logout (за auth middleware).
// С refresh_token в теле отзывается только он, без тела все токены игрока.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	playerID := middleware.PlayerID(ctx)

	var req api.LogoutRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	if req.RefreshToken != "" {
		stored, err := h.tokenStorage.GetRefreshToken(ctx, req.RefreshToken)
		switch {
		case errors.Is(err, storage.ErrTokenNotFound):
			// уже отозван
		case err != nil:
			h.logger.ErrorContext(ctx, "failed to get refresh token", slog.Any("error", err))
			sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
			return
		case stored.PlayerID != playerID:
			sendError(h.logger, w, "refresh token belongs to another player", http.StatusForbidden)
			return
		default:
			if err := h.tokenStorage.DeleteRefreshToken(ctx, stored.Token); err != nil && !errors.Is(err, storage.ErrTokenNotFound) {
				h.logger.ErrorContext(ctx, "failed to delete refresh token", slog.Any("error", err))
				sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
				return
			}
		}

		h.logger.InfoContext(ctx, "player logged out", slog.String("player_id", playerID))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	deleted, err := h.tokenStorage.DeletePlayerTokens(ctx, playerID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to delete player tokens", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "player logged out",
		slog.String("player_id", playerID),
		slog.Int("tokens_deleted", deleted))

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) issue(r *http.Request, player *models.Player) (*api.TokenResponse, error) {
	ctx := r.Context()

	issued, err := h.issuer.Issue(player)
	if err != nil {
		return nil, err
	}

	refresh := &models.RefreshToken{
		Token:     issued.RefreshToken,
		PlayerID:  player.ID,
		ExpiresAt: issued.RefreshUntil,
		CreatedAt: issued.IssuedAt,
	}
	if err := h.tokenStorage.SaveRefreshToken(ctx, refresh); err != nil {
		return nil, err
	}

	if err := h.playerStorage.UpdateLastLogin(ctx, player.ID, issued.IssuedAt); err != nil {
		// не критично для выдачи токенов
		h.logger.WarnContext(ctx, "failed to update last login", slog.Any("error", err))
	}

	return tokenResponse(player.ID, issued), nil
}

func (h *AuthHandler) sendBanned(w http.ResponseWriter, r *http.Request, player *models.Player) {
	h.logger.WarnContext(r.Context(), "banned player rejected",
		slog.String("player_id", player.ID),
		slog.String("case_id", player.BanCaseID))

	sendAuthError(h.logger, w, http.StatusForbidden, api.CodeBannedUser, "player is banned", banNotice(player, h.now()))
}

// banNotice описывает блокировку для службы поддержки
func banNotice(player *models.Player, now time.Time) api.Notification {
	return api.Notification{
		ID:        uuid.New().String(),
		Message:   "This player account has been suspended. Contact support with the case ID.",
		CaseID:    player.BanCaseID,
		PlayerID:  player.ID,
		ProjectID: player.AppID,
		CreatedAt: now.Unix(),
	}
}

func tokenResponse(playerID string, issued *auth.Issued) *api.TokenResponse {
	return &api.TokenResponse{
		UserID:       playerID,
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
		ExpiresIn:    int64(issued.ExpiresIn / time.Second),
		IssuedAt:     issued.IssuedAt.Unix(),
	}
}
