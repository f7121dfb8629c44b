package storage

import "errors"

// Common client storage errors
var (
	// ErrAuthNotFound indicates that no authentication data exists
	ErrAuthNotFound = errors.New("authentication data not found")

	// ErrLinkNotFound indicates that the provider is not linked in the local cache
	ErrLinkNotFound = errors.New("link not found")

	// ErrPlayerInfoNotFound indicates that player info was never cached
	ErrPlayerInfoNotFound = errors.New("player info not found")

	// ErrDeviceIDNotFound indicates that the device identifier was never generated
	ErrDeviceIDNotFound = errors.New("device id not found")
)
