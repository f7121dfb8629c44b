package storage

import (
	"context"
	"time"

	"github.com/iudanet/playerid/internal/models"
)

// TokenStorage defines interface for refresh token persistence
type TokenStorage interface {
	// SaveRefreshToken stores a new refresh token
	// If token with same token value exists, it will be replaced
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error

	// GetRefreshToken retrieves refresh token by token value
	// Returns ErrTokenNotFound if token doesn't exist
	GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)

	// RotateRefreshToken atomically replaces old with next.
	// Returns ErrTokenNotFound if old was already used or revoked
	RotateRefreshToken(ctx context.Context, old string, next *models.RefreshToken) error

	// ListPlayerTokens retrieves all refresh tokens of a player, newest first
	ListPlayerTokens(ctx context.Context, playerID string) ([]*models.RefreshToken, error)

	// DeleteRefreshToken deletes refresh token by token value
	// Returns ErrTokenNotFound if token doesn't exist
	DeleteRefreshToken(ctx context.Context, token string) error

	// DeletePlayerTokens deletes all refresh tokens of a player
	// Returns number of deleted tokens
	DeletePlayerTokens(ctx context.Context, playerID string) (int, error)

	// DeleteExpiredTokens removes tokens expired before now
	// Returns number of deleted tokens
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error)
}
