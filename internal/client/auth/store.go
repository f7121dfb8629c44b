package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/playerid/internal/client/storage"
	"github.com/iudanet/playerid/internal/crypto"
)

// TokenStore is the encryption layer between the Manager and storage.
// It seals tokens with the device storage key before saving and opens
// them when loading. The device ID is bound as associated data.
type TokenStore struct {
	storage storage.AuthStorage
}

// NewTokenStore creates a TokenStore over raw auth storage
func NewTokenStore(s storage.AuthStorage) *TokenStore {
	return &TokenStore{storage: s}
}

// SaveAuth сохраняет незашифрованные auth данные,
// сам шифрует токены и передает в хранилище
func (s *TokenStore) SaveAuth(ctx context.Context, auth *storage.AuthData, storageKey []byte) error {
	if auth == nil {
		return fmt.Errorf("auth data is nil")
	}

	sealer, err := crypto.NewSealer(storageKey)
	if err != nil {
		return fmt.Errorf("failed to init sealer: %w", err)
	}

	// Шифруем токены
	encryptedAccessToken, err := sealer.Seal(auth.AccessToken, auth.DeviceID)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}

	encryptedRefreshToken, err := sealer.Seal(auth.RefreshToken, auth.DeviceID)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	authCopy := *auth // копируем структуру, чтобы не менять входящую
	authCopy.AccessToken = encryptedAccessToken
	authCopy.RefreshToken = encryptedRefreshToken

	// Сохраняем в storage (уже с зашифрованными токенами)
	return s.storage.SaveAuth(ctx, &authCopy)
}

// GetAuthDecryptData загружает данные из storage и расшифровывает токены
func (s *TokenStore) GetAuthDecryptData(ctx context.Context, storageKey []byte) (*storage.AuthData, error) {
	storedAuth, err := s.storage.GetAuth(ctx)
	if err != nil {
		return nil, err
	}

	sealer, err := crypto.NewSealer(storageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to init sealer: %w", err)
	}

	accessToken, err := sealer.Open(storedAuth.AccessToken, storedAuth.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	refreshToken, err := sealer.Open(storedAuth.RefreshToken, storedAuth.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	// Копируем все в новую структуру, возвращаем с расшифрованными токенами
	auth := *storedAuth
	auth.AccessToken = accessToken
	auth.RefreshToken = refreshToken

	return &auth, nil
}

// GetAuthEncryptData загружает данные без расшифровки (для app/device/user ID)
func (s *TokenStore) GetAuthEncryptData(ctx context.Context) (*storage.AuthData, error) {
	storedAuth, err := s.storage.GetAuth(ctx)
	if err != nil {
		return nil, err
	}

	auth := *storedAuth
	return &auth, nil
}

// DeleteAuth удаляет данные; отсутствие данных не считается ошибкой
func (s *TokenStore) DeleteAuth(ctx context.Context) error {
	if err := s.storage.DeleteAuth(ctx); err != nil && !errors.Is(err, storage.ErrAuthNotFound) {
		return err
	}
	return nil
}
