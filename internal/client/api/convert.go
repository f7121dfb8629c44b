package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/iudanet/playerid/internal/models"
	"github.com/iudanet/playerid/internal/token"
	"github.com/iudanet/playerid/pkg/api"
)

// TokenPairFromWire конвертирует ответ сервера в TokenPair.
// Если сервер не прислал issued_at, используется локальное время получения.
// Без expires_in срок жизни берется из claim exp access токена;
// если и его нет, ExpiresIn остается нулевым.
func TokenPairFromWire(resp *api.TokenResponse, received time.Time) models.TokenPair {
	issuedAt := received
	if resp.IssuedAt > 0 {
		issuedAt = time.Unix(resp.IssuedAt, 0)
	}
	expiresIn := time.Duration(resp.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = expiryFromClaims(resp.AccessToken, issuedAt)
	}
	return models.TokenPair{
		Access:    resp.AccessToken,
		Refresh:   resp.RefreshToken,
		IssuedAt:  issuedAt,
		ExpiresIn: expiresIn,
	}
}

// expiryFromClaims читает exp без проверки подписи: секрет у клиента отсутствует
func expiryFromClaims(access string, issuedAt time.Time) time.Duration {
	claims, err := token.PeekClaims(access)
	if err != nil {
		return 0
	}
	var exp int64
	switch v := claims[token.ClaimExpiresAt].(type) {
	case float64:
		exp = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		exp = n
	default:
		return 0
	}
	if d := time.Unix(exp, 0).Sub(issuedAt); d > 0 {
		return d
	}
	return 0
}

// UserInfoFromWire конвертирует профиль игрока
func UserInfoFromWire(resp *api.PlayerInfoResponse) models.UserInfo {
	props := make(map[string]string, len(resp.Properties))
	for k, v := range resp.Properties {
		props[k] = v
	}

	var createdAt time.Time
	if resp.CreatedAt > 0 {
		createdAt = time.Unix(resp.CreatedAt, 0)
	}

	return models.UserInfo{
		Username:   resp.Username,
		UUID:       resp.UUID,
		Name:       resp.Name,
		AppID:      resp.AppID,
		BundleID:   resp.BundleID,
		Country:    resp.Country,
		CreatedAt:  createdAt,
		Platform:   resp.Platform,
		Version:    resp.Version,
		Build:      resp.Build,
		Properties: props,
	}
}

// LinkFromWire конвертирует привязку, отклоняя неизвестных провайдеров
func LinkFromWire(l api.Link) (models.Link, error) {
	provider, err := models.ParseProvider(l.Provider)
	if err != nil {
		return models.Link{}, err
	}
	if l.PartyUserID == "" {
		return models.Link{}, fmt.Errorf("link for %s has empty party user id", provider)
	}

	var linkedAt time.Time
	if l.LinkedAt > 0 {
		linkedAt = time.Unix(l.LinkedAt, 0)
	}

	return models.Link{
		Provider:    provider,
		PartyUserID: l.PartyUserID,
		LinkedAt:    linkedAt,
		Raw:         l.Detail,
	}, nil
}

// LinksFromWire конвертирует снимок привязок.
// Дубликаты провайдера схлопываются: побеждает последняя запись.
func LinksFromWire(in []api.Link) ([]models.Link, error) {
	index := make(map[models.Provider]int, len(in))
	out := make([]models.Link, 0, len(in))
	for _, l := range in {
		link, err := LinkFromWire(l)
		if err != nil {
			return nil, err
		}
		if i, ok := index[link.Provider]; ok {
			out[i] = link
			continue
		}
		index[link.Provider] = len(out)
		out = append(out, link)
	}
	return out, nil
}
