package api

// Friend is a single entry of the friends list.
type Friend struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
	Score    int64  `json:"score"`
	AddedAt  int64  `json:"added_at"`
}

// FriendsResponse представляет список друзей
type FriendsResponse struct {
	Friends []Friend `json:"friends"`
}

// LeaderboardEntry is a ranked row of the friends leaderboard.
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
	Score    int64  `json:"score"`
}

// LeaderboardResponse представляет рейтинг среди друзей
type LeaderboardResponse struct {
	Entries []LeaderboardEntry `json:"entries"`
}

// AddFriendRequest представляет запрос на добавление друга
type AddFriendRequest struct {
	FriendID string `json:"friend_id"`
}
