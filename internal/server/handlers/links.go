package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/playerid/internal/models"
	"github.com/iudanet/playerid/internal/server/middleware"
	"github.com/iudanet/playerid/internal/server/provider"
	"github.com/iudanet/playerid/internal/server/storage"
	"github.com/iudanet/playerid/pkg/api"
)

// Exchanger проверяет артефакт провайдера
type Exchanger interface {
	Exchange(ctx context.Context, p models.Provider, req api.LinkRequest) (*provider.Identity, error)
}

// Publisher доставляет события подключенным клиентам игрока
type Publisher interface {
	Publish(ctx context.Context, playerID string, event api.Event) int
}

// LinksHandler обрабатывает привязки сторонних провайдеров
type LinksHandler struct {
	logger        *slog.Logger
	linkStorage   storage.LinkStorage
	exchanger     Exchanger
	events        Publisher
	now           func() time.Time
	revocationKey string
}

// NewLinksHandler создает handler привязок.
// Пустой revocationKey отключает прием отзывов от провайдеров.
func NewLinksHandler(logger *slog.Logger, links storage.LinkStorage, exchanger Exchanger, events Publisher, revocationKey string) *LinksHandler {
	return &LinksHandler{
		logger:        logger,
		linkStorage:   links,
		exchanger:     exchanger,
		events:        events,
		now:           time.Now,
		revocationKey: revocationKey,
	}
}

// List обрабатывает GET /api/v1/links
func (h *LinksHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, err := h.linkStorage.ListLinks(ctx, middleware.PlayerID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list links", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	links := make([]api.Link, 0, len(records))
	for _, rec := range records {
		links = append(links, linkToWire(rec))
	}

	sendJSON(h.logger, w, api.ListLinksResponse{Links: links}, http.StatusOK)
}

// Link обрабатывает POST /api/v1/links/{provider}
func (h *LinksHandler) Link(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	playerID := middleware.PlayerID(ctx)

	p, err := models.ParseProvider(r.PathValue("provider"))
	if err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	var req api.LinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	identity, err := h.exchanger.Exchange(ctx, p, req)
	if err != nil {
		h.logger.WarnContext(ctx, "provider exchange failed",
			slog.String("provider", p.String()),
			slog.Any("error", err))
		switch {
		case errors.Is(err, provider.ErrNotConfigured), errors.Is(err, provider.ErrInvalidArtifact):
			sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		default:
			sendError(h.logger, w, "provider unavailable", http.StatusServiceUnavailable)
		}
		return
	}

	record := &models.LinkRecord{
		ID:          uuid.New().String(),
		PlayerID:    playerID,
		Provider:    p,
		PartyUserID: identity.PartyUserID,
		Detail:      identity.Detail,
		CreatedAt:   h.now().UTC(),
	}
	if err := h.linkStorage.SaveLink(ctx, record); err != nil {
		if errors.Is(err, storage.ErrLinkConflict) {
			sendError(h.logger, w, "provider account is linked to another player", http.StatusConflict)
			return
		}
		h.logger.ErrorContext(ctx, "failed to save link", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	saved, err := h.linkStorage.GetLink(ctx, playerID, p)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read saved link", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "provider linked",
		slog.String("player_id", playerID),
		slog.String("provider", p.String()))
	h.events.Publish(ctx, playerID, api.Event{Type: api.EventLinksChanged, Provider: p.String()})

	sendJSON(h.logger, w, api.LinkResponse{Link: linkToWire(saved)}, http.StatusOK)
}

// Unlink обрабатывает DELETE /api/v1/links/{provider}
func (h *LinksHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	playerID := middleware.PlayerID(ctx)

	p, err := models.ParseProvider(r.PathValue("provider"))
	if err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	record, err := h.linkStorage.GetLink(ctx, playerID, p)
	if err == nil {
		err = h.linkStorage.DeleteLink(ctx, playerID, p)
	}
	if err != nil {
		if errors.Is(err, storage.ErrLinkNotFound) {
			sendError(h.logger, w, "no link for provider", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to unlink provider", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "provider unlinked",
		slog.String("player_id", playerID),
		slog.String("provider", p.String()))
	h.events.Publish(ctx, playerID, api.Event{Type: api.EventLinksChanged, Provider: p.String()})

	sendJSON(h.logger, w, api.LinkResponse{Link: linkToWire(record)}, http.StatusOK)
}

// Revoke обрабатывает POST /api/v1/providers/{provider}/revocations.
// Вызывается провайдером (или его ретранслятором) с ключом revocation_key.
func (h *LinksHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.revocationKey == "" {
		sendError(h.logger, w, "revocations are disabled", http.StatusForbidden)
		return
	}
	key, ok := middleware.BearerToken(r)
	if !ok || subtle.ConstantTimeCompare([]byte(key), []byte(h.revocationKey)) != 1 {
		sendError(h.logger, w, "invalid revocation key", http.StatusUnauthorized)
		return
	}

	p, err := models.ParseProvider(r.PathValue("provider"))
	if err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	var req api.RevocationRequest
	if err := decodeJSON(w, r, &req); err != nil || req.PartyUserID == "" {
		sendError(h.logger, w, "party_user_id is required", http.StatusBadRequest)
		return
	}

	record, err := h.linkStorage.FindLinkByParty(ctx, p, req.PartyUserID)
	if err == nil {
		err = h.linkStorage.DeleteLink(ctx, record.PlayerID, p)
	}
	if err != nil {
		if errors.Is(err, storage.ErrLinkNotFound) {
			sendError(h.logger, w, "no link for provider account", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to revoke link", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	delivered := h.events.Publish(ctx, record.PlayerID, api.Event{Type: api.EventAccessRevoked, Provider: p.String()})
	h.logger.InfoContext(ctx, "provider access revoked",
		slog.String("player_id", record.PlayerID),
		slog.String("provider", p.String()),
		slog.Int("notified", delivered))

	w.WriteHeader(http.StatusNoContent)
}

func linkToWire(rec *models.LinkRecord) api.Link {
	return api.Link{
		Provider:    rec.Provider.String(),
		PartyUserID: rec.PartyUserID,
		LinkedAt:    rec.CreatedAt.Unix(),
		Detail:      rec.Detail,
	}
}
