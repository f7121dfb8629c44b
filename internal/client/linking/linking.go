// Package linking binds third-party provider identities to the player and
// keeps the local link cache in sync with the backend.
package linking

import (
	"context"
	"errors"

	"github.com/iudanet/playerid/internal/models"
	pkgapi "github.com/iudanet/playerid/pkg/api"
)

// ErrAuthorizationCancelled is returned by an Authorizer when the user
// abandons the provider handshake.
var ErrAuthorizationCancelled = errors.New("authorization cancelled by user")

// Artifact is the result of a provider handshake, forwarded to the backend as is.
type Artifact struct {
	AuthCode     string
	CodeVerifier string
	RedirectURI  string
	IDToken      string
}

// Authorizer completes the provider handshake (browser, webview, loopback server).
type Authorizer interface {
	Authorize(ctx context.Context, provider models.Provider) (*Artifact, error)
}

// Backend is the link part of the identity API. *api.Client satisfies it.
type Backend interface {
	LinkProvider(ctx context.Context, accessToken, provider string, req pkgapi.LinkRequest) (*pkgapi.Link, error)
	UnlinkProvider(ctx context.Context, accessToken, provider string) (*pkgapi.Link, error)
	ListLinks(ctx context.Context, accessToken string) ([]pkgapi.Link, error)
}

// TokenSource returns a usable access token. *auth.Manager satisfies it.
type TokenSource interface {
	EnsureValidAccessToken(ctx context.Context) (string, error)
}

// Observer receives link events. Delivery order across observers is unspecified.
type Observer interface {
	OnLinkSuccess(link models.Link)
	OnLinkFailure(provider models.Provider, err error)
	OnUnlinkSuccess(link models.Link)
	OnUnlinkFailure(provider models.Provider, err error)
	OnLinksListed(links []models.Link)
	OnAccessRevoked(provider models.Provider)
}

// NopObserver implements Observer with no-ops; embed it to handle a subset of events.
type NopObserver struct{}

func (NopObserver) OnLinkSuccess(models.Link)              {}
func (NopObserver) OnLinkFailure(models.Provider, error)   {}
func (NopObserver) OnUnlinkSuccess(models.Link)            {}
func (NopObserver) OnUnlinkFailure(models.Provider, error) {}
func (NopObserver) OnLinksListed([]models.Link)            {}
func (NopObserver) OnAccessRevoked(models.Provider)        {}

// LinkResult is the outcome of a successful Link.
type LinkResult struct {
	Link models.Link
	// Replaced is true when a cached link for the provider was overwritten.
	Replaced bool
}

// UnlinkResult is the outcome of a successful Unlink.
type UnlinkResult struct {
	Link models.Link
}
