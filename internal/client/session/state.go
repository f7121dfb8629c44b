// Package session sequences device registration, token issuance and the
// player info fetch into a single session handle owned by the caller.
package session

import (
	"context"
	"fmt"

	"github.com/iudanet/playerid/internal/client/auth"
	"github.com/iudanet/playerid/internal/models"
	pkgapi "github.com/iudanet/playerid/pkg/api"
)

// State of the session handle
type State int

const (
	StateUnauthenticated State = iota
	StateRegistering
	StateRegistered
	StateFetchingPlayerInfo
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateRegistering:
		return "registering"
	case StateRegistered:
		return "registered"
	case StateFetchingPlayerInfo:
		return "fetching_player_info"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Observer получает события сессии. Порядок вызова разных наблюдателей
// не гарантируется, колбэки выполняются синхронно и не должны блокировать.
type Observer interface {
	OnUserRegistered(pair models.TokenPair)
	OnTokenRefreshed(pair models.TokenPair)
	OnPlayerInfoFetched(info models.UserInfo)
	OnUserReady(info models.UserInfo)
}

// NopObserver can be embedded to implement only some callbacks.
type NopObserver struct{}

func (NopObserver) OnUserRegistered(models.TokenPair)   {}
func (NopObserver) OnTokenRefreshed(models.TokenPair)   {}
func (NopObserver) OnPlayerInfoFetched(models.UserInfo) {}
func (NopObserver) OnUserReady(models.UserInfo)         {}

// Tokens is the token lifecycle used by the session. *auth.Manager satisfies it.
type Tokens interface {
	Register(ctx context.Context, cred auth.DeviceCredential) (models.TokenPair, error)
	Restore(ctx context.Context, cred auth.DeviceCredential) (models.TokenPair, error)
	EnsureValidAccessToken(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
	Subscribe(l auth.Listener) func()
	UserID() string
}

// PlayerBackend fetches the player profile. *api.Client satisfies it.
type PlayerBackend interface {
	GetPlayerInfo(ctx context.Context, accessToken string) (*pkgapi.PlayerInfoResponse, error)
}
