// Package provider turns a provider authorization artifact into a verified
// third-party identity.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/playerid/internal/models"
	"github.com/iudanet/playerid/pkg/api"
)

var (
	// ErrNotConfigured - для провайдера не настроен exchanger
	ErrNotConfigured = errors.New("provider not configured")
	// ErrInvalidArtifact - провайдер отклонил код или id_token не прошел проверку
	ErrInvalidArtifact = errors.New("invalid provider artifact")
)

// Identity is the provider account proven by the artifact.
type Identity struct {
	Detail      map[string]any
	PartyUserID string
}

// Exchanger обменивает артефакт авторизации на подтвержденную личность
type Exchanger interface {
	Exchange(ctx context.Context, req api.LinkRequest) (*Identity, error)
}

// Credentials описывают конфиденциальный OAuth клиент backend у провайдера
type Credentials struct {
	ClientID     string
	ClientSecret string
	Issuer       string
	Scopes       []string
}

// Registry выбирает Exchanger по провайдеру
type Registry struct {
	exchangers map[models.Provider]Exchanger
	fallback   Exchanger
}

// NewRegistry creates an empty Registry. When fallback is non-nil it serves
// every provider without a dedicated exchanger.
func NewRegistry(fallback Exchanger) *Registry {
	return &Registry{
		exchangers: make(map[models.Provider]Exchanger),
		fallback:   fallback,
	}
}

// Register sets the exchanger for provider.
func (r *Registry) Register(p models.Provider, e Exchanger) {
	r.exchangers[p] = e
}

// Exchange dispatches to the provider's exchanger.
func (r *Registry) Exchange(ctx context.Context, p models.Provider, req api.LinkRequest) (*Identity, error) {
	e, ok := r.exchangers[p]
	if !ok {
		if r.fallback == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotConfigured, p)
		}
		e = r.fallback
	}

	identity, err := e.Exchange(ctx, req)
	if err != nil {
		return nil, err
	}
	if identity.PartyUserID == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrInvalidArtifact)
	}
	return identity, nil
}
