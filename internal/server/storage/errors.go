package storage

import "errors"

// Common storage errors
var (
	// ErrPlayerNotFound indicates that player was not found in storage
	ErrPlayerNotFound = errors.New("player not found")

	// ErrPlayerAlreadyExists indicates that the device is already registered for the app
	ErrPlayerAlreadyExists = errors.New("player already exists")

	// ErrTokenNotFound indicates that refresh token was not found
	ErrTokenNotFound = errors.New("refresh token not found")

	// ErrLinkNotFound indicates that the player has no link for the provider
	ErrLinkNotFound = errors.New("link not found")

	// ErrLinkConflict indicates that the provider account is linked to another player
	ErrLinkConflict = errors.New("provider account already linked to another player")

	// ErrFriendNotFound indicates that the friendship does not exist
	ErrFriendNotFound = errors.New("friend not found")

	// ErrFriendAlreadyExists indicates that the friendship already exists
	ErrFriendAlreadyExists = errors.New("friend already exists")
)
