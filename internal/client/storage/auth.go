package storage

import (
	"context"
)

// AuthStorage defines interface for storing authentication data on client.
// This is the lowest storage layer - it works with raw data (already encrypted tokens)
// and doesn't perform any encryption/decryption itself.
// Only one record exists: the current device session.
type AuthStorage interface {
	// SaveAuth stores authentication data as-is (tokens should already be encrypted)
	SaveAuth(ctx context.Context, auth *AuthData) error

	// GetAuth retrieves stored authentication data as-is (tokens will be encrypted)
	// Returns ErrAuthNotFound if no auth data exists
	GetAuth(ctx context.Context) (*AuthData, error)

	// DeleteAuth removes stored authentication data (logout)
	// Returns ErrAuthNotFound if no auth data exists
	DeleteAuth(ctx context.Context) error
}

// AuthData represents authentication information in storage.
// IMPORTANT: tokens are stored encrypted (base64 nonce||ciphertext),
// the encryption/decryption happens in auth.TokenStore.
type AuthData struct {
	UserID       string `json:"user_id"`
	AppID        string `json:"app_id"`
	DeviceID     string `json:"device_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IssuedAt     int64  `json:"issued_at"`  // unix seconds
	ExpiresIn    int64  `json:"expires_in"` // seconds
	UpdatedAt    int64  `json:"updated_at"`
}
