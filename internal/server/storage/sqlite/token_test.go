package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/playerid/internal/models"
	"github.com/iudanet/playerid/internal/server/storage"
)

func newRefreshToken(value, playerID string, expiresAt time.Time) *models.RefreshToken {
	return &models.RefreshToken{
		Token:     value,
		PlayerID:  playerID,
		ExpiresAt: expiresAt,
		CreatedAt: expiresAt.Add(-time.Hour),
	}
}

func TestTokenStorage_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	player := createTestPlayer(t, ctx, s)
	expires := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)

	require.NoError(t, s.SaveRefreshToken(ctx, newRefreshToken("token-1", player.ID, expires)))

	got, err := s.GetRefreshToken(ctx, "token-1")
	require.NoError(t, err)
	assert.Equal(t, player.ID, got.PlayerID)
	assert.True(t, expires.Equal(got.ExpiresAt))

	_, err = s.GetRefreshToken(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)
}

func TestTokenStorage_RotateRefreshToken(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	player := createTestPlayer(t, ctx, s)
	expires := time.Now().UTC().Add(time.Hour)
	require.NoError(t, s.SaveRefreshToken(ctx, newRefreshToken("old", player.ID, expires)))

	require.NoError(t, s.RotateRefreshToken(ctx, "old", newRefreshToken("new", player.ID, expires)))

	_, err := s.GetRefreshToken(ctx, "old")
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)
	_, err = s.GetRefreshToken(ctx, "new")
	assert.NoError(t, err)

	// повторное использование старого токена
	err = s.RotateRefreshToken(ctx, "old", newRefreshToken("another", player.ID, expires))
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)
	_, err = s.GetRefreshToken(ctx, "another")
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)
}

func TestTokenStorage_DeleteRefreshToken(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	player := createTestPlayer(t, ctx, s)
	require.NoError(t, s.SaveRefreshToken(ctx, newRefreshToken("token", player.ID, time.Now().Add(time.Hour))))

	tests := []struct {
		wantError error
		name      string
		token     string
	}{
		{name: "existing token", token: "token"},
		{name: "already deleted", token: "token", wantError: storage.ErrTokenNotFound},
		{name: "unknown token", token: "unknown", wantError: storage.ErrTokenNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.DeleteRefreshToken(ctx, tt.token)
			if tt.wantError != nil {
				assert.ErrorIs(t, err, tt.wantError)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestTokenStorage_PlayerTokens(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	player1 := createTestPlayer(t, ctx, s)
	player2 := createTestPlayer(t, ctx, s)
	now := time.Now().UTC()

	require.NoError(t, s.SaveRefreshToken(ctx, newRefreshToken("p1-a", player1.ID, now.Add(time.Hour))))
	require.NoError(t, s.SaveRefreshToken(ctx, newRefreshToken("p1-b", player1.ID, now.Add(2*time.Hour))))
	require.NoError(t, s.SaveRefreshToken(ctx, newRefreshToken("p2-a", player2.ID, now.Add(time.Hour))))

	tokens, err := s.ListPlayerTokens(ctx, player1.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "p1-b", tokens[0].Token)

	n, err := s.DeletePlayerTokens(ctx, player1.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	tokens, err = s.ListPlayerTokens(ctx, player1.ID)
	require.NoError(t, err)
	assert.Empty(t, tokens)

	tokens, err = s.ListPlayerTokens(ctx, player2.ID)
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
}

func TestTokenStorage_DeleteExpiredTokens(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	player := createTestPlayer(t, ctx, s)
	now := time.Now().UTC()

	require.NoError(t, s.SaveRefreshToken(ctx, newRefreshToken("expired1", player.ID, now.Add(-2*time.Hour))))
	require.NoError(t, s.SaveRefreshToken(ctx, newRefreshToken("expired2", player.ID, now.Add(-time.Hour))))
	require.NoError(t, s.SaveRefreshToken(ctx, newRefreshToken("valid", player.ID, now.Add(24*time.Hour))))

	n, err := s.DeleteExpiredTokens(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.GetRefreshToken(ctx, "valid")
	assert.NoError(t, err)

	n, err = s.DeleteExpiredTokens(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTokenStorage_CascadeOnUnknownPlayer(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	err := s.SaveRefreshToken(ctx, newRefreshToken("orphan", "no-such-player", time.Now().Add(time.Hour)))
	assert.Error(t, err)
}
