package storage

import (
	"context"
	"time"

	"github.com/iudanet/playerid/internal/models"
)

// PlayerStorage defines interface for player persistence
type PlayerStorage interface {
	// CreatePlayer creates a new player
	// Returns ErrPlayerAlreadyExists if (app_id, device_id) is already registered
	CreatePlayer(ctx context.Context, player *models.Player) error

	// GetPlayerByID retrieves player by ID
	// Returns ErrPlayerNotFound if player doesn't exist
	GetPlayerByID(ctx context.Context, playerID string) (*models.Player, error)

	// GetPlayerByDevice retrieves player registered from the device for the app
	// Returns ErrPlayerNotFound if player doesn't exist
	GetPlayerByDevice(ctx context.Context, appID, deviceID string) (*models.Player, error)

	// UpdatePlayer overwrites mutable player fields (client info, ban, score)
	// Returns ErrPlayerNotFound if player doesn't exist
	UpdatePlayer(ctx context.Context, player *models.Player) error

	// UpdateLastLogin updates the last login timestamp
	UpdateLastLogin(ctx context.Context, playerID string, lastLogin time.Time) error
}
