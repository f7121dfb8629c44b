package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/playerid/internal/server/auth"
)

type contextKey string

const claimsKey contextKey = "claims"

// Authenticator проверяет access token
type Authenticator interface {
	Authenticate(accessToken string) (*auth.Claims, error)
}

// WithClaims кладет claims игрока в контекст
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the claims stored by Auth.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// PlayerID returns the authenticated player id or "".
func PlayerID(ctx context.Context) string {
	if claims, ok := ClaimsFromContext(ctx); ok {
		return claims.PlayerID
	}
	return ""
}

// BearerToken извлекает токен из заголовка "Authorization: Bearer <token>"
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Auth создает middleware для проверки access token
func Auth(logger *slog.Logger, authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := BearerToken(r)
			if !ok {
				logger.WarnContext(r.Context(), "Missing or malformed Authorization header", "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := authenticator.Authenticate(tokenString)
			if err != nil {
				message := "invalid access token"
				if errors.Is(err, auth.ErrTokenExpired) {
					message = "access token expired"
				}
				logger.WarnContext(r.Context(), "Access token rejected", "error", err)
				writeError(w, http.StatusUnauthorized, message)
				return
			}

			logger.DebugContext(r.Context(), "Player authenticated", "player_id", claims.PlayerID, "app_id", claims.AppID)

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}
