package models

import (
	"fmt"
	"strings"
	"time"
)

// Provider identifies a third-party identity provider.
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderApple    Provider = "apple"
	ProviderFacebook Provider = "facebook"
	ProviderSteam    Provider = "steam"
)

// Providers lists every supported provider.
var Providers = []Provider{ProviderGoogle, ProviderApple, ProviderFacebook, ProviderSteam}

// ParseProvider converts a string into a known Provider.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Providers {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

func (p Provider) String() string {
	return string(p)
}

// Link связывает основную учетную запись игрока с аккаунтом провайдера.
// У сессии не может быть двух Link с одним и тем же Provider.
type Link struct {
	LinkedAt    time.Time      `json:"linked_at"`
	Raw         map[string]any `json:"raw,omitempty"`
	Provider    Provider       `json:"provider"`
	PartyUserID string         `json:"party_user_id"`
}

// LinkRecord представляет привязку на стороне backend
type LinkRecord struct {
	CreatedAt   time.Time      `json:"created_at"`
	Detail      map[string]any `json:"detail,omitempty"` // публичные claims провайдера (email, name)
	ID          string         `json:"id"`
	PlayerID    string         `json:"player_id"`
	Provider    Provider       `json:"provider"`
	PartyUserID string         `json:"party_user_id"`
}
