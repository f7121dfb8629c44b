package storage

import (
	"context"

	"github.com/iudanet/playerid/internal/models"
)

// MetadataStorage defines interface for storing client metadata
type MetadataStorage interface {
	// SavePlayerInfo stores the last fetched player snapshot
	SavePlayerInfo(ctx context.Context, info models.UserInfo) error

	// GetPlayerInfo returns ErrPlayerInfoNotFound if nothing was fetched yet
	GetPlayerInfo(ctx context.Context) (*models.UserInfo, error)

	// DeletePlayerInfo removes the cached snapshot, missing snapshot is not an error
	DeletePlayerInfo(ctx context.Context) error

	// SaveDeviceID stores the stable identifier of this installation
	SaveDeviceID(ctx context.Context, deviceID string) error

	// GetDeviceID returns ErrDeviceIDNotFound on first start
	GetDeviceID(ctx context.Context) (string, error)
}
