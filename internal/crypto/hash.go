package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// HashAuthKey хеширует auth_key с использованием SHA256 (hex)
func HashAuthKey(authKey []byte) (string, error) {
	if len(authKey) == 0 {
		return "", fmt.Errorf("auth key cannot be empty")
	}
	hash := sha256.Sum256(authKey)
	return hex.EncodeToString(hash[:]), nil
}

// SecretHashesEqual compares two hex hashes in constant time.
func SecretHashesEqual(stored, presented string) bool {
	if stored == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
