package models

import "time"

// Friendship связывает двух игроков (направленная связь)
type Friendship struct {
	CreatedAt time.Time
	PlayerID  string
	FriendID  string
}

// FriendInfo is a friend row joined with the friend's public profile.
type FriendInfo struct {
	AddedAt  time.Time
	PlayerID string
	Username string
	Score    int64
}
