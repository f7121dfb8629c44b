package cli

import (
	"context"
	"errors"
	"time"
)

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Session Status ===")
	c.io.Println()

	if err := c.resume(ctx); err != nil {
		if errors.Is(err, errNotRegistered) {
			c.io.Println("Status: Not registered")
			c.io.Println()
			c.io.Println("Run 'playerid register' to create a player.")
			return nil
		}
		return err
	}

	c.io.Printf("Status: %s\n", c.session.State())
	if info, ok := c.session.UserInfo(); ok {
		c.io.Printf("Username: %s\n", info.Username)
		c.io.Printf("Player ID: %s\n", info.UUID)
		if info.Country != "" {
			c.io.Printf("Country: %s\n", info.Country)
		}
	}

	pair := c.session.TokenPair()
	if !pair.IsZero() {
		expiresAt := pair.ExpiresAt()
		c.io.Printf("Token expires: %s\n", expiresAt.Format(time.RFC3339))
		if remaining := time.Until(expiresAt); remaining > 0 {
			c.io.Printf("Time remaining: %s\n", remaining.Round(time.Second))
		} else {
			c.io.Println("⚠️  Access token has expired, it will be refreshed on next request.")
		}
	}

	links, err := c.links.CachedLinks(ctx)
	if err != nil {
		c.io.Printf("\nWarning: Failed to read cached links: %v\n", err)
		return nil
	}
	c.io.Println()
	if len(links) == 0 {
		c.io.Println("No linked providers.")
	} else {
		c.io.Printf("Linked providers (cached): %d\n", len(links))
		for _, l := range links {
			c.io.Printf("  - %s\n", l.Provider)
		}
	}

	return nil
}
