// Package auth owns the access/refresh token pair of the device session:
// registration, expiry-aware validation, coalesced refresh and persistence.
package auth

import (
	"context"
	"fmt"

	"github.com/iudanet/playerid/internal/models"
	pkgapi "github.com/iudanet/playerid/pkg/api"
)

// State is the token lifecycle state.
type State int

const (
	StateNoSession State = iota
	StateAuthenticating
	StateAuthenticated
	StateRefreshing
	StateExpired
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no_session"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateExpired:
		return "expired"
	case StateInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DeviceCredential identifies the local device to the backend.
// Secret never leaves the client: only a hash of a key derived from it is sent.
type DeviceCredential struct {
	DeviceID string
	Secret   string
}

//go:generate moq -out backend_mock.go . Backend

// Backend is the part of the identity API used by the Manager.
// *api.Client satisfies it.
type Backend interface {
	Register(ctx context.Context, req pkgapi.RegisterRequest) (*pkgapi.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*pkgapi.TokenResponse, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
}

// Listener receives lifecycle events. Callbacks run synchronously on the
// goroutine that completed the transition and must not block.
type Listener interface {
	OnRegistered(pair models.TokenPair)
	OnRefreshed(pair models.TokenPair)
	OnInvalidated(err error)
}
