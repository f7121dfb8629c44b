package storage

import (
	"context"

	"github.com/iudanet/playerid/internal/models"
)

// LinkStorage is the local durable cache of third-party links, keyed by provider.
type LinkStorage interface {
	// SaveLink upserts the link for its provider
	SaveLink(ctx context.Context, link models.Link) error

	// GetLink returns ErrLinkNotFound if the provider is not linked
	GetLink(ctx context.Context, provider models.Provider) (*models.Link, error)

	// DeleteLink returns ErrLinkNotFound if the provider is not linked
	DeleteLink(ctx context.Context, provider models.Provider) error

	// ListLinks returns cached links ordered by provider
	ListLinks(ctx context.Context) ([]models.Link, error)

	// ReplaceLinks atomically replaces the whole cache with the given snapshot
	ReplaceLinks(ctx context.Context, links []models.Link) error
}
