// Package cli реализует команды клиента playerid.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/iudanet/playerid/internal/client/auth"
	"github.com/iudanet/playerid/internal/client/iocli"
	"github.com/iudanet/playerid/internal/client/linking"
	"github.com/iudanet/playerid/internal/client/session"
	"github.com/iudanet/playerid/internal/client/storage"
	"github.com/iudanet/playerid/internal/config"
	"github.com/iudanet/playerid/internal/models"
	"github.com/iudanet/playerid/internal/validation"
	"github.com/iudanet/playerid/pkg/api"
)

// Session управляет сессией устройства (*session.Session)
type Session interface {
	Start(ctx context.Context, cred auth.DeviceCredential) (models.UserInfo, error)
	Resume(ctx context.Context, cred auth.DeviceCredential) (models.UserInfo, error)
	Logout(ctx context.Context) error
	State() session.State
	UserInfo() (models.UserInfo, bool)
	TokenPair() models.TokenPair
}

// Links управляет привязками провайдеров (*linking.Manager)
type Links interface {
	Link(ctx context.Context, provider models.Provider) (*linking.LinkResult, error)
	Unlink(ctx context.Context, provider models.Provider) (*linking.UnlinkResult, error)
	ListLinks(ctx context.Context) ([]models.Link, error)
	CachedLinks(ctx context.Context) ([]models.Link, error)
}

// Friends - API друзей (*api.Client)
type Friends interface {
	GetFriends(ctx context.Context, accessToken string) ([]api.Friend, error)
	AddFriend(ctx context.Context, accessToken, friendID string) error
	RemoveFriend(ctx context.Context, accessToken, friendID string) error
	GetFriendsLeaderboard(ctx context.Context, accessToken string) ([]api.LeaderboardEntry, error)
}

// TokenSource выдает действующий access token (*auth.Manager)
type TokenSource interface {
	EnsureValidAccessToken(ctx context.Context) (string, error)
}

// EventListener слушает серверные события (*notify.Listener)
type EventListener interface {
	Run(ctx context.Context) error
}

// Devices хранит идентификатор устройства
type Devices interface {
	SaveDeviceID(ctx context.Context, deviceID string) error
	GetDeviceID(ctx context.Context) (string, error)
}

// Deps - зависимости команд
type Deps struct {
	IO       iocli.IO
	Session  Session
	Links    Links
	Friends  Friends
	Tokens   TokenSource
	Listener EventListener
	Devices  Devices
}

type Cli struct {
	io       iocli.IO
	session  Session
	links    Links
	friends  Friends
	tokens   TokenSource
	listener EventListener
	devices  Devices
	cfg      *config.ClientConfig
}

func New(cfg *config.ClientConfig, deps Deps) *Cli {
	return &Cli{
		io:       deps.IO,
		session:  deps.Session,
		links:    deps.Links,
		friends:  deps.Friends,
		tokens:   deps.Tokens,
		listener: deps.Listener,
		devices:  deps.Devices,
		cfg:      cfg,
	}
}

var errNotRegistered = errors.New("device is not registered. Please run 'playerid register' first")

// credential собирает учетные данные устройства. create разрешает
// сгенерировать ID устройства при первом запуске.
func (c *Cli) credential(ctx context.Context, create bool) (auth.DeviceCredential, error) {
	deviceID, err := c.devices.GetDeviceID(ctx)
	switch {
	case errors.Is(err, storage.ErrDeviceIDNotFound) && create:
		deviceID = uuid.NewString()
		if err := c.devices.SaveDeviceID(ctx, deviceID); err != nil {
			return auth.DeviceCredential{}, fmt.Errorf("failed to save device id: %w", err)
		}
	case errors.Is(err, storage.ErrDeviceIDNotFound):
		return auth.DeviceCredential{}, errNotRegistered
	case err != nil:
		return auth.DeviceCredential{}, fmt.Errorf("failed to get device id: %w", err)
	}

	secret, err := c.getDeviceSecret(create)
	if err != nil {
		return auth.DeviceCredential{}, fmt.Errorf("failed to get device secret: %w", err)
	}
	if err := validation.ValidateDeviceSecret(secret); err != nil {
		return auth.DeviceCredential{}, fmt.Errorf("invalid device secret: %w", err)
	}

	return auth.DeviceCredential{DeviceID: deviceID, Secret: secret}, nil
}

// getDeviceSecret retrieves the device secret from various sources with priority:
// 1. PLAYERID_DEVICE_SECRET environment variable (or device_secret in config)
// 2. File specified by --device-secret-file
// 3. Interactive prompt (fallback), confirmed twice on registration
func (c *Cli) getDeviceSecret(confirm bool) (string, error) {
	// Priority 1: Environment variable / config
	if c.cfg.DeviceSecret != "" {
		return c.cfg.DeviceSecret, nil
	}

	// Priority 2: File
	if c.cfg.DeviceSecretFile != "" {
		content, err := os.ReadFile(c.cfg.DeviceSecretFile)
		if err != nil {
			return "", fmt.Errorf("failed to read secret file: %w", err)
		}
		secret := strings.TrimSpace(string(content))
		if secret == "" {
			return "", fmt.Errorf("secret file is empty")
		}
		return secret, nil
	}

	// Priority 3: Interactive prompt
	secret, err := c.io.ReadPassword(fmt.Sprintf("Device secret (min %d chars): ", validation.MinDeviceSecretLen))
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}
	if confirm {
		again, err := c.io.ReadPassword("Confirm device secret: ")
		if err != nil {
			return "", fmt.Errorf("failed to read confirmation: %w", err)
		}
		if again != secret {
			return "", fmt.Errorf("secrets do not match")
		}
	}
	return secret, nil
}

// resume восстанавливает сохраненную сессию, если она еще не готова
func (c *Cli) resume(ctx context.Context) error {
	if c.session.State() == session.StateReady {
		return nil
	}
	cred, err := c.credential(ctx, false)
	if err != nil {
		return err
	}
	if _, err := c.session.Resume(ctx, cred); err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return errNotRegistered
		}
		return err
	}
	return nil
}

func PrintUsage(w io.Writer) {
	_, _ = fmt.Fprint(w, `playerid client

Usage:
  playerid [OPTIONS] COMMAND [ARGS]

Options:
  --version                    Show version information
  --config PATH                Config file (yaml, json or toml)
  --env-file PATH              Load environment from file (default: .env)
  --server URL                 Server URL (default: http://localhost:8080)
  --db PATH                    Path to local database (default: playerid-client.db)
  --app-id ID                  Application ID
  --env NAME                   Backend environment (default: production)
  --device-secret-file PATH    Path to file containing device secret
  --safety-margin DURATION     Refresh tokens this long before expiry (default: 5m)
  --timeout DURATION           HTTP request timeout (default: 30s)
  --log-level LEVEL            debug, info, warn, error
  --log-file PATH              Write logs to a rotated file

Every option can be set with a PLAYERID_ environment variable,
e.g. PLAYERID_SERVER_URL, PLAYERID_DEVICE_SECRET.

Commands:
  register                     Register this device and create a player
  status                       Show session status
  link <provider>              Link google, apple or facebook account
  unlink <provider>            Remove a provider link
  links                        List linked providers
  friends [list]               List friends
  friends add <player-id>      Add a friend
  friends remove <player-id>   Remove a friend
  friends leaderboard          Show friends leaderboard
  listen                       Listen for server events (access revocations)
  logout                       Logout and clear local session

Examples:
  export PLAYERID_DEVICE_SECRET='my-long-device-secret'
  playerid --app-id com.example.game register
  playerid link google
  playerid friends leaderboard
`)
}
