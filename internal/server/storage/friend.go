package storage

import (
	"context"

	"github.com/iudanet/playerid/internal/models"
)

// FriendStorage defines interface for friend list persistence
type FriendStorage interface {
	// AddFriend creates a directed friendship
	// Returns ErrPlayerNotFound if the friend doesn't exist, ErrFriendAlreadyExists on duplicates
	AddFriend(ctx context.Context, friendship *models.Friendship) error

	// RemoveFriend deletes a directed friendship
	// Returns ErrFriendNotFound if it doesn't exist
	RemoveFriend(ctx context.Context, playerID, friendID string) error

	// ListFriends returns the player's friends, oldest first
	ListFriends(ctx context.Context, playerID string) ([]*models.FriendInfo, error)

	// Leaderboard returns the player and their friends ordered by score, highest first
	Leaderboard(ctx context.Context, playerID string) ([]*models.FriendInfo, error)
}
