package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// DeviceKeys содержит ключи, производные от секрета устройства
type DeviceKeys struct {
	AuthKey    []byte // доказывает владение устройством backend'у (отправляется только хеш)
	StorageKey []byte // шифрует токены в локальном хранилище, никогда не покидает клиент
}

// Параметры Argon2id
const (
	// Argon2Time - количество итераций (time cost)
	Argon2Time = 1
	// Argon2Memory - объем памяти в KB (64MB = 64*1024 KB)
	Argon2Memory = 64 * 1024
	// Argon2Threads - количество параллельных потоков
	Argon2Threads = 4
	// Argon2KeyLen - длина выходного ключа в байтах
	Argon2KeyLen = 32
	// SaltSize - размер соли в байтах
	SaltSize = 32
)

// GenerateSaltBase64 генерирует криптографически случайную соль в Base64
func GenerateSaltBase64() (string, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(salt), nil
}

// DeviceSaltBase64 возвращает детерминированную соль устройства (SaltSize байт, base64).
func DeviceSaltBase64(appID, deviceID string) string {
	sum := sha256.Sum256([]byte("playerid-device-salt\x00" + appID + "\x00" + deviceID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// DeriveDeviceKeys derives two independent keys from the device secret.
// Domain separation uses distinct context strings, as with the auth/encrypt split.
func DeriveDeviceKeys(secret, deviceID, saltBase64 string) (*DeviceKeys, error) {
	if secret == "" {
		return nil, fmt.Errorf("device secret cannot be empty")
	}
	if deviceID == "" {
		return nil, fmt.Errorf("device id cannot be empty")
	}

	salt, err := base64.StdEncoding.DecodeString(saltBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(salt))
	}

	base := []byte(secret + "\x00" + deviceID)

	authInput := append(append([]byte{}, base...), "auth"...)
	storageInput := append(append([]byte{}, base...), "storage"...)

	return &DeviceKeys{
		AuthKey:    argon2.IDKey(authInput, salt, Argon2Time, Argon2Memory, Argon2Threads, Argon2KeyLen),
		StorageKey: argon2.IDKey(storageInput, salt, Argon2Time, Argon2Memory, Argon2Threads, Argon2KeyLen),
	}, nil
}
