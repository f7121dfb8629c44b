package validation

import (
	"fmt"
	"regexp"
)

// AppIDPattern определяет допустимый формат идентификатора приложения
// Латинские буквы, цифры, точка, дефис и подчеркивание (reverse-DNS bundle id тоже подходит)
// Длина: 3-128 символов
var AppIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,128}$`)

// DeviceIDPattern - ID устройства: UUID или непрозрачная строка платформы без пробелов
var DeviceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{8,128}$`)

const (
	// MinDeviceSecretLen минимальная длина секрета устройства
	MinDeviceSecretLen = 16
)

// ValidateAppID проверяет формат идентификатора приложения
func ValidateAppID(appID string) error {
	if appID == "" {
		return fmt.Errorf("app id cannot be empty")
	}
	if !AppIDPattern.MatchString(appID) {
		return fmt.Errorf("app id must be 3-128 characters of letters, digits, '.', '-' or '_'")
	}
	return nil
}

// ValidateDeviceID проверяет формат ID устройства
func ValidateDeviceID(deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("device id cannot be empty")
	}
	if !DeviceIDPattern.MatchString(deviceID) {
		return fmt.Errorf("device id must be 8-128 characters of letters, digits, '-' or '_'")
	}
	return nil
}

// ValidateDeviceSecret проверяет минимальные требования к секрету устройства
func ValidateDeviceSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("device secret cannot be empty")
	}
	if len(secret) < MinDeviceSecretLen {
		return fmt.Errorf("device secret must be at least %d characters long", MinDeviceSecretLen)
	}
	return nil
}
