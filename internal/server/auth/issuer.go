// Package auth issues and verifies the backend's session tokens.
//
// Access tokens are signed with the secret of the app the player registered
// in, so the SDK can check them locally with the same secret. Refresh tokens
// are opaque random strings stored server side.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/playerid/internal/models"
	"github.com/iudanet/playerid/internal/token"
)

// Claims of access tokens and registration assertions
const (
	ClaimAppID       = "app_id"
	ClaimDeviceID    = "device_id"
	ClaimEnvironment = "env"
)

// AssertionLifetime ограничивает возраст assertion без exp
const AssertionLifetime = 5 * time.Minute

var (
	// ErrUnknownApp - приложение не зарегистрировано на сервере
	ErrUnknownApp = errors.New("unknown app")
	// ErrEnvironmentMismatch - assertion выписан для другого приложения или окружения
	ErrEnvironmentMismatch = errors.New("environment mismatch")
	// ErrInvalidAssertion - подпись или формат assertion неверны
	ErrInvalidAssertion = errors.New("invalid assertion")
	// ErrTokenExpired - срок access token истек
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidToken - access token не прошел проверку
	ErrInvalidToken = errors.New("invalid token")
)

// App is a registered client application.
type App struct {
	ID          string
	Environment string
	Secret      []byte
}

// Claims извлеченные из проверенного access token
type Claims struct {
	PlayerID string
	AppID    string
	DeviceID string
}

// Issued is a freshly minted token pair.
type Issued struct {
	IssuedAt     time.Time
	ExpiresAt    time.Time
	AccessToken  string
	RefreshToken string
	RefreshUntil time.Time
	ExpiresIn    time.Duration
}

// Option настраивает Issuer
type Option func(*Issuer)

// WithClock подменяет источник времени (тесты)
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// Issuer выпускает и проверяет токены
type Issuer struct {
	apps       map[string]App
	now        func() time.Time
	codec      *token.Codec
	assertions *token.Codec
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewIssuer creates an Issuer for the given apps.
func NewIssuer(apps []App, accessTTL, refreshTTL time.Duration, opts ...Option) *Issuer {
	i := &Issuer{
		apps:       make(map[string]App, len(apps)),
		now:        time.Now,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
	for _, app := range apps {
		i.apps[app.ID] = app
	}
	for _, opt := range opts {
		opt(i)
	}

	i.codec = token.New(token.WithClock(i.now))
	i.assertions = token.New(token.WithClock(i.now), token.WithLifetime(AssertionLifetime))
	return i
}

// App returns the registered app by id.
func (i *Issuer) App(appID string) (App, bool) {
	app, ok := i.apps[appID]
	return app, ok
}

// VerifyAssertion проверяет, что assertion подписан секретом приложения
// и выписан для этого устройства в окружении приложения.
func (i *Issuer) VerifyAssertion(assertion, appID, deviceID string) error {
	app, ok := i.apps[appID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownApp, appID)
	}

	claims, result := i.assertions.Decode(assertion, app.Secret, 0)
	if result != token.Valid {
		return fmt.Errorf("%w: %s", ErrInvalidAssertion, result)
	}

	if token.StringClaim(claims, ClaimAppID) != appID {
		return fmt.Errorf("%w: assertion issued for another app", ErrEnvironmentMismatch)
	}
	if token.StringClaim(claims, ClaimDeviceID) != deviceID {
		return fmt.Errorf("%w: assertion issued for another device", ErrInvalidAssertion)
	}
	if env := token.StringClaim(claims, ClaimEnvironment); env != app.Environment {
		return fmt.Errorf("%w: client %q, app %q", ErrEnvironmentMismatch, env, app.Environment)
	}

	return nil
}

// Issue mints an access token for the player and a new refresh token.
func (i *Issuer) Issue(player *models.Player) (*Issued, error) {
	app, ok := i.apps[player.AppID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownApp, player.AppID)
	}

	now := i.now().Truncate(time.Second)
	expiresAt := now.Add(i.accessTTL)

	access, err := i.codec.Encode(map[string]any{
		token.ClaimSubject:   player.ID,
		token.ClaimIssuedAt:  now.Unix(),
		token.ClaimExpiresAt: expiresAt.Unix(),
		ClaimAppID:           player.AppID,
		ClaimDeviceID:        player.DeviceID,
	}, app.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refresh, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	return &Issued{
		IssuedAt:     now,
		ExpiresAt:    expiresAt,
		ExpiresIn:    i.accessTTL,
		AccessToken:  access,
		RefreshToken: refresh,
		RefreshUntil: now.Add(i.refreshTTL),
	}, nil
}

// Authenticate проверяет access token и возвращает его claims.
// Секрет выбирается по claim app_id до проверки подписи.
func (i *Issuer) Authenticate(accessToken string) (*Claims, error) {
	unverified, err := token.PeekClaims(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	app, ok := i.apps[token.StringClaim(unverified, ClaimAppID)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown app", ErrInvalidToken)
	}

	claims, result := i.codec.Decode(accessToken, app.Secret, 0)
	switch result {
	case token.Valid:
	case token.Expired:
		return nil, ErrTokenExpired
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, result)
	}

	playerID := token.StringClaim(claims, token.ClaimSubject)
	if playerID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &Claims{
		PlayerID: playerID,
		AppID:    app.ID,
		DeviceID: token.StringClaim(claims, ClaimDeviceID),
	}, nil
}

// GenerateRefreshToken генерирует случайный refresh token (32 байта, base64url)
func GenerateRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
