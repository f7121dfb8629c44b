package models

import "time"

// UserInfo is an immutable snapshot of the backend-reported player identity.
// It is replaced wholesale on every fetch and never mutated in place.
type UserInfo struct {
	CreatedAt  time.Time
	Properties map[string]string
	Username   string
	UUID       string
	Name       string
	AppID      string
	BundleID   string
	Country    string
	Platform   string
	Version    string
	Build      string
}

// Property возвращает свойство платформы/сборки по ключу
func (u UserInfo) Property(key string) (string, bool) {
	v, ok := u.Properties[key]
	return v, ok
}

// Player представляет игрока на стороне backend
type Player struct {
	CreatedAt  time.Time  `json:"created_at"`  // время создания
	LastLogin  *time.Time `json:"last_login"`  // время последнего входа
	ID         string     `json:"id"`          // UUID игрока
	Username   string     `json:"username"`    // сгенерированный username
	Name       string     `json:"name"`        // отображаемое имя
	AppID      string     `json:"app_id"`      // приложение, в котором зарегистрирован игрок
	DeviceID   string     `json:"device_id"`   // устройство, с которого выполнена регистрация
	SecretHash string     `json:"secret_hash"` // SHA256 хеш auth_key устройства
	Country    string     `json:"country"`     // код страны
	Platform   string     `json:"platform"`    // платформа клиента
	Version    string     `json:"version"`     // версия клиента
	Build      string     `json:"build"`       // номер сборки
	BanCaseID  string     `json:"ban_case_id"` // ID обращения, если игрок заблокирован
	Score      int64      `json:"score"`       // очки для рейтинга друзей
	Banned     bool       `json:"banned"`      // игрок заблокирован
}

// RefreshToken представляет refresh token игрока
type RefreshToken struct {
	ExpiresAt time.Time `json:"expires_at"` // время истечения
	CreatedAt time.Time `json:"created_at"` // время создания
	Token     string    `json:"token"`      // значение токена
	PlayerID  string    `json:"player_id"`  // ID игрока
}
