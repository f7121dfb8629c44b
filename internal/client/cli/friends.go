package cli

import (
	"context"
	"fmt"
	"time"
)

func (c *Cli) runFriends(ctx context.Context, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
	}

	var friendID string
	switch sub {
	case "add", "remove":
		if len(args) < 2 || args[1] == "" {
			return fmt.Errorf("usage: playerid friends %s <player-id>", sub)
		}
		friendID = args[1]
	case "list", "leaderboard":
	default:
		return fmt.Errorf("unknown friends command: %s", sub)
	}

	if err := c.resume(ctx); err != nil {
		return err
	}
	accessToken, err := c.tokens.EnsureValidAccessToken(ctx)
	if err != nil {
		return err
	}

	switch sub {
	case "add":
		if err := c.friends.AddFriend(ctx, accessToken, friendID); err != nil {
			return err
		}
		c.io.Printf("✓ Friend %s added\n", friendID)
	case "remove":
		if err := c.friends.RemoveFriend(ctx, accessToken, friendID); err != nil {
			return err
		}
		c.io.Printf("✓ Friend %s removed\n", friendID)
	case "leaderboard":
		return c.printLeaderboard(ctx, accessToken)
	default:
		return c.printFriends(ctx, accessToken)
	}
	return nil
}

func (c *Cli) printFriends(ctx context.Context, accessToken string) error {
	friends, err := c.friends.GetFriends(ctx, accessToken)
	if err != nil {
		return err
	}

	c.io.Println("=== Friends ===")
	c.io.Println()
	if len(friends) == 0 {
		c.io.Println("No friends yet.")
		c.io.Println("Use 'playerid friends add <player-id>' to add one.")
		return nil
	}

	for i, f := range friends {
		c.io.Printf("%d. %s\n", i+1, f.Username)
		c.io.Printf("   ID: %s\n", f.PlayerID)
		c.io.Printf("   Added: %s\n", time.Unix(f.AddedAt, 0).Format(time.RFC3339))
	}
	c.io.Println()
	c.io.Printf("Total: %d friend(s)\n", len(friends))
	return nil
}

func (c *Cli) printLeaderboard(ctx context.Context, accessToken string) error {
	entries, err := c.friends.GetFriendsLeaderboard(ctx, accessToken)
	if err != nil {
		return err
	}

	c.io.Println("=== Friends Leaderboard ===")
	c.io.Println()
	c.io.Printf("%-5s %-24s %s\n", "RANK", "PLAYER", "SCORE")
	for _, e := range entries {
		c.io.Printf("%-5d %-24s %d\n", e.Rank, e.Username, e.Score)
	}
	return nil
}
