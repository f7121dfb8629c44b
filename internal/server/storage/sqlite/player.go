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

const playerColumns = `id, username, name, app_id, device_id, secret_hash, country, platform, version, build,
	banned, ban_case_id, score, created_at, last_login`

// CreatePlayer creates a new player
func (s *Storage) CreatePlayer(ctx context.Context, player *models.Player) error {
	query := `INSERT INTO players (` + playerColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var lastLogin any
	if player.LastLogin != nil {
		lastLogin = player.LastLogin.UTC()
	}

	_, err := s.db.ExecContext(ctx, query,
		player.ID,
		player.Username,
		player.Name,
		player.AppID,
		player.DeviceID,
		player.SecretHash,
		player.Country,
		player.Platform,
		player.Version,
		player.Build,
		player.Banned,
		player.BanCaseID,
		player.Score,
		player.CreatedAt.UTC(),
		lastLogin,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrPlayerAlreadyExists
		}
		return fmt.Errorf("failed to insert player: %w", err)
	}

	return nil
}

// GetPlayerByID retrieves player by ID
func (s *Storage) GetPlayerByID(ctx context.Context, playerID string) (*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = ?`
	return s.getPlayer(ctx, query, playerID)
}

// GetPlayerByDevice retrieves player by (app_id, device_id)
func (s *Storage) GetPlayerByDevice(ctx context.Context, appID, deviceID string) (*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE app_id = ? AND device_id = ?`
	return s.getPlayer(ctx, query, appID, deviceID)
}

func (s *Storage) getPlayer(ctx context.Context, query string, args ...any) (*models.Player, error) {
	player := &models.Player{}
	var lastLogin sql.NullTime

	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&player.ID,
		&player.Username,
		&player.Name,
		&player.AppID,
		&player.DeviceID,
		&player.SecretHash,
		&player.Country,
		&player.Platform,
		&player.Version,
		&player.Build,
		&player.Banned,
		&player.BanCaseID,
		&player.Score,
		&player.CreatedAt,
		&lastLogin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	if lastLogin.Valid {
		player.LastLogin = &lastLogin.Time
	}

	return player, nil
}

// UpdatePlayer overwrites mutable player fields
func (s *Storage) UpdatePlayer(ctx context.Context, player *models.Player) error {
	query := `
		UPDATE players
		SET name = ?, country = ?, platform = ?, version = ?, build = ?, secret_hash = ?,
			banned = ?, ban_case_id = ?, score = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		player.Name,
		player.Country,
		player.Platform,
		player.Version,
		player.Build,
		player.SecretHash,
		player.Banned,
		player.BanCaseID,
		player.Score,
		player.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update player: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrPlayerNotFound
	}

	return nil
}

// UpdateLastLogin updates the last login timestamp
func (s *Storage) UpdateLastLogin(ctx context.Context, playerID string, lastLogin time.Time) error {
	n, err := s.execCount(ctx, "update last login", `UPDATE players SET last_login = ? WHERE id = ?`, lastLogin.UTC(), playerID)
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrPlayerNotFound
	}
	return nil
}
