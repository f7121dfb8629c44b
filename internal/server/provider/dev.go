package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/iudanet/playerid/pkg/api"
)

// Dev принимает любой артефакт без обращения к провайдеру.
// ID аккаунта выводится из артефакта, поэтому один и тот же код дает один аккаунт.
// Только для локальной разработки.
type Dev struct{}

// Exchange derives a stable pseudo account from the artifact.
func (Dev) Exchange(_ context.Context, req api.LinkRequest) (*Identity, error) {
	artifact := req.IDToken
	if artifact == "" {
		artifact = req.AuthCode
	}
	if artifact == "" {
		return nil, fmt.Errorf("%w: auth code or id token required", ErrInvalidArtifact)
	}

	sum := sha256.Sum256([]byte(artifact))
	return &Identity{
		PartyUserID: "dev-" + hex.EncodeToString(sum[:8]),
		Detail:      map[string]any{"dev": true},
	}, nil
}
