package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iudanet/playerid/internal/models"
	"github.com/iudanet/playerid/internal/server/storage"
)

const linkColumns = `id, player_id, provider, party_user_id, detail, created_at`

// SaveLink inserts or replaces the player's link for the provider.
// The existing row keeps its id when the provider account changes.
func (s *Storage) SaveLink(ctx context.Context, link *models.LinkRecord) error {
	detail, err := json.Marshal(link.Detail)
	if err != nil {
		return fmt.Errorf("failed to marshal link detail: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// аккаунт провайдера не может принадлежать двум игрокам
	var owner string
	err = tx.QueryRowContext(ctx,
		`SELECT player_id FROM links WHERE provider = ? AND party_user_id = ?`,
		string(link.Provider), link.PartyUserID,
	).Scan(&owner)
	switch {
	case err == nil && owner != link.PlayerID:
		return storage.ErrLinkConflict
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("failed to check link owner: %w", err)
	}

	query := `
		INSERT INTO links (` + linkColumns + `) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (player_id, provider) DO UPDATE SET
			party_user_id = excluded.party_user_id,
			detail = excluded.detail,
			created_at = excluded.created_at
	`
	if _, err := tx.ExecContext(ctx, query,
		link.ID,
		link.PlayerID,
		string(link.Provider),
		link.PartyUserID,
		string(detail),
		link.CreatedAt.UTC(),
	); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrLinkConflict
		}
		return fmt.Errorf("failed to save link: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit link: %w", err)
	}
	return nil
}

// GetLink retrieves the player's link for the provider
func (s *Storage) GetLink(ctx context.Context, playerID string, provider models.Provider) (*models.LinkRecord, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE player_id = ? AND provider = ?`
	return s.getLink(ctx, query, playerID, string(provider))
}

// FindLinkByParty finds the link that owns the provider account
func (s *Storage) FindLinkByParty(ctx context.Context, provider models.Provider, partyUserID string) (*models.LinkRecord, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE provider = ? AND party_user_id = ?`
	return s.getLink(ctx, query, string(provider), partyUserID)
}

func (s *Storage) getLink(ctx context.Context, query string, args ...any) (*models.LinkRecord, error) {
	link, err := scanLink(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return link, nil
}

// ListLinks returns all links of the player
func (s *Storage) ListLinks(ctx context.Context, playerID string) ([]*models.LinkRecord, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE player_id = ? ORDER BY provider`

	rows, err := s.db.QueryContext(ctx, query, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	links := []*models.LinkRecord{}
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return links, nil
}

// DeleteLink removes the player's link for the provider
func (s *Storage) DeleteLink(ctx context.Context, playerID string, provider models.Provider) error {
	n, err := s.execCount(ctx, "delete link", `DELETE FROM links WHERE player_id = ? AND provider = ?`, playerID, string(provider))
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrLinkNotFound
	}
	return nil
}

func scanLink(row rowScanner) (*models.LinkRecord, error) {
	link := &models.LinkRecord{}
	var detail string
	if err := row.Scan(
		&link.ID,
		&link.PlayerID,
		&link.Provider,
		&link.PartyUserID,
		&detail,
		&link.CreatedAt,
	); err != nil {
		return nil, err
	}
	if detail != "" && detail != "null" {
		if err := json.Unmarshal([]byte(detail), &link.Detail); err != nil {
			return nil, fmt.Errorf("failed to unmarshal link detail: %w", err)
		}
	}
	return link, nil
}
