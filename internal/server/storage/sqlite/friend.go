package sqlite

import (
	"context"
	"fmt"
	"sort"

	"github.com/iudanet/playerid/internal/models"
	"github.com/iudanet/playerid/internal/server/storage"
)

// AddFriend creates a directed friendship
func (s *Storage) AddFriend(ctx context.Context, friendship *models.Friendship) error {
	query := `INSERT INTO friendships (player_id, friend_id, created_at) VALUES (?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		friendship.PlayerID,
		friendship.FriendID,
		friendship.CreatedAt.UTC(),
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return storage.ErrFriendAlreadyExists
		case isForeignKeyViolation(err):
			return storage.ErrPlayerNotFound
		}
		return fmt.Errorf("failed to add friend: %w", err)
	}

	return nil
}

// RemoveFriend deletes a directed friendship
func (s *Storage) RemoveFriend(ctx context.Context, playerID, friendID string) error {
	n, err := s.execCount(ctx, "remove friend",
		`DELETE FROM friendships WHERE player_id = ? AND friend_id = ?`, playerID, friendID)
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrFriendNotFound
	}
	return nil
}

// ListFriends returns the player's friends, oldest first
func (s *Storage) ListFriends(ctx context.Context, playerID string) ([]*models.FriendInfo, error) {
	query := `
		SELECT p.id, p.username, p.score, f.created_at
		FROM friendships f
		JOIN players p ON p.id = f.friend_id
		WHERE f.player_id = ?
		ORDER BY f.created_at, p.username
	`
	return s.queryFriends(ctx, query, playerID)
}

// Leaderboard returns the player and their friends ordered by score.
// AddedAt of the player's own row is the registration time.
func (s *Storage) Leaderboard(ctx context.Context, playerID string) ([]*models.FriendInfo, error) {
	player, err := s.GetPlayerByID(ctx, playerID)
	if err != nil {
		return nil, err
	}

	friends, err := s.ListFriends(ctx, playerID)
	if err != nil {
		return nil, err
	}

	entries := append(friends, &models.FriendInfo{
		PlayerID: player.ID,
		Username: player.Username,
		Score:    player.Score,
		AddedAt:  player.CreatedAt,
	})
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Username < entries[j].Username
	})

	return entries, nil
}

func (s *Storage) queryFriends(ctx context.Context, query string, args ...any) ([]*models.FriendInfo, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query friends: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	friends := []*models.FriendInfo{}
	for rows.Next() {
		friend := &models.FriendInfo{}
		if err := rows.Scan(&friend.PlayerID, &friend.Username, &friend.Score, &friend.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan friend: %w", err)
		}
		friends = append(friends, friend)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return friends, nil
}
