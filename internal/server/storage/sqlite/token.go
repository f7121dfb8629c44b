package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/playerid/internal/models"
	"github.com/iudanet/playerid/internal/server/storage"
)

const tokenColumns = `token, player_id, expires_at, created_at`

// SaveRefreshToken stores a new refresh token
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	query := `INSERT OR REPLACE INTO refresh_tokens (` + tokenColumns + `) VALUES (?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, query,
		token.Token,
		token.PlayerID,
		token.ExpiresAt.UTC(),
		token.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}

	return nil
}

// GetRefreshToken retrieves refresh token by token value
func (s *Storage) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE token = ?`

	refreshToken, err := scanToken(s.db.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	return refreshToken, nil
}

// RotateRefreshToken удаляет использованный токен и сохраняет новый в одной транзакции.
// Повторное использование старого токена дает ErrTokenNotFound.
func (s *Storage) RotateRefreshToken(ctx context.Context, old string, next *models.RefreshToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token = ?`, old)
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrTokenNotFound
	}

	insert := `INSERT INTO refresh_tokens (` + tokenColumns + `) VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insert,
		next.Token,
		next.PlayerID,
		next.ExpiresAt.UTC(),
		next.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rotation: %w", err)
	}
	return nil
}

// ListPlayerTokens retrieves all refresh tokens of a player
func (s *Storage) ListPlayerTokens(ctx context.Context, playerID string) ([]*models.RefreshToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE player_id = ? ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query player tokens: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var tokens []*models.RefreshToken
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return tokens, nil
}

// DeleteRefreshToken deletes refresh token by token value
func (s *Storage) DeleteRefreshToken(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrTokenNotFound
	}

	return nil
}

// DeletePlayerTokens deletes all refresh tokens of a player
func (s *Storage) DeletePlayerTokens(ctx context.Context, playerID string) (int, error) {
	return s.execCount(ctx, "delete player tokens", `DELETE FROM refresh_tokens WHERE player_id = ?`, playerID)
}

// DeleteExpiredTokens removes all tokens expired before now
func (s *Storage) DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	return s.execCount(ctx, "delete expired tokens", `DELETE FROM refresh_tokens WHERE expires_at < ?`, now.UTC())
}

func (s *Storage) execCount(ctx context.Context, what, query string, args ...any) (int, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", what, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*models.RefreshToken, error) {
	token := &models.RefreshToken{}
	if err := row.Scan(&token.Token, &token.PlayerID, &token.ExpiresAt, &token.CreatedAt); err != nil {
		return nil, err
	}
	return token, nil
}
