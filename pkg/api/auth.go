package api

// RegisterRequest представляет запрос на регистрацию устройства игрока
type RegisterRequest struct {
	AppID      string `json:"app_id"`      // идентификатор приложения
	DeviceID   string `json:"device_id"`   // стабильный ID устройства
	SecretHash string `json:"secret_hash"` // SHA256 хеш auth_key устройства (hex-encoded)
	Assertion  string `json:"assertion"`   // JWT, подписанный секретом приложения
	Platform   string `json:"platform,omitempty"`
	Version    string `json:"version,omitempty"`
	Build      string `json:"build,omitempty"`
}

// TokenResponse представляет ответ с токенами доступа
type TokenResponse struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`  // JWT access token
	RefreshToken string `json:"refresh_token"` // refresh token
	ExpiresIn    int64  `json:"expires_in"`    // время жизни access token в секундах
	IssuedAt     int64  `json:"issued_at"`     // unix seconds
}

// Notification is a support notice attached to an authentication failure.
type Notification struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	CaseID    string `json:"case_id,omitempty"`
	PlayerID  string `json:"player_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error         string         `json:"error"`             // описание ошибки
	Message       string         `json:"message,omitempty"` // дополнительное сообщение
	Code          int            `json:"code,omitempty"`    // код ошибки аутентификации (100-106)
	Notifications []Notification `json:"notifications,omitempty"`
}

// PlayerInfoResponse is the backend view of the authenticated player.
type PlayerInfoResponse struct {
	Username   string            `json:"username"`
	UUID       string            `json:"uuid"`
	Name       string            `json:"name"`
	AppID      string            `json:"app_id"`
	BundleID   string            `json:"bundle_id,omitempty"`
	Country    string            `json:"country,omitempty"`
	CreatedAt  int64             `json:"created_at"`
	Platform   string            `json:"platform,omitempty"`
	Version    string            `json:"version,omitempty"`
	Build      string            `json:"build,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// RefreshRequest представляет запрос на обновление токенов
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest представляет запрос на выход (отзыв refresh token)
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Коды ошибок аутентификации в поле ErrorResponse.Code
const (
	CodeClientInvalidUserState    = 100
	CodeClientInvalidUser         = 101
	CodeClientInvalidToken        = 102
	CodeClientInvalidTokenState   = 103
	CodeClientInvalidTokenExpired = 104
	CodeEnvironmentMismatch       = 105
	CodeBannedUser                = 106
)
