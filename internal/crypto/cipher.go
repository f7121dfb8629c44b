package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// KeySize - требуемая длина ключа AES-256
const KeySize = 32

// ErrOpen is returned when ciphertext fails authentication.
var ErrOpen = errors.New("failed to decrypt: authentication failed or corrupted data")

// Sealer шифрует короткие строки (токены) AES-256-GCM.
// Формат: base64(nonce || ciphertext || tag). Associated data привязывает
// шифротекст к владельцу (например, device ID), чтобы его нельзя было
// переставить в чужую запись.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer создает Sealer для 32-байтного ключа
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext bound to ad.
func (s *Sealer) Seal(plaintext, ad string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("plaintext cannot be empty")
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(ad))
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal with the same ad.
func (s *Sealer) Open(sealed, ad string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	ns := s.aead.NonceSize()
	if len(raw) < ns+s.aead.Overhead() {
		return "", fmt.Errorf("encrypted data too short")
	}

	plaintext, err := s.aead.Open(nil, raw[:ns], raw[ns:], []byte(ad))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return string(plaintext), nil
}
