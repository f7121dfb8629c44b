package storage

import (
	"context"

	"github.com/iudanet/playerid/internal/models"
)

// LinkStorage defines interface for third-party link persistence.
// A player has at most one link per provider, and a provider account
// belongs to at most one player.
type LinkStorage interface {
	// SaveLink inserts or replaces the player's link for the provider
	// Returns ErrLinkConflict if the provider account is linked to another player
	SaveLink(ctx context.Context, link *models.LinkRecord) error

	// GetLink retrieves the player's link for the provider
	// Returns ErrLinkNotFound if there is none
	GetLink(ctx context.Context, playerID string, provider models.Provider) (*models.LinkRecord, error)

	// ListLinks returns all links of the player ordered by provider
	ListLinks(ctx context.Context, playerID string) ([]*models.LinkRecord, error)

	// DeleteLink removes the player's link for the provider
	// Returns ErrLinkNotFound if there is none
	DeleteLink(ctx context.Context, playerID string, provider models.Provider) error

	// FindLinkByParty finds the link that owns the provider account
	// Returns ErrLinkNotFound if there is none
	FindLinkByParty(ctx context.Context, provider models.Provider, partyUserID string) (*models.LinkRecord, error)
}
