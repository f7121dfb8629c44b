package cli

import (
	"context"
	"errors"
	"fmt"
)

func (c *Cli) runLogout(ctx context.Context) error {
	// Без восстановленной сессии logout на сервере невозможен,
	// но локальные данные очищаются в любом случае
	if err := c.resume(ctx); err != nil {
		if errors.Is(err, errNotRegistered) {
			c.io.Println("Not registered, nothing to do.")
			return nil
		}
		c.io.Printf("Warning: could not resume session (%v), clearing local data only\n", err)
	}

	if err := c.session.Logout(ctx); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}

	c.io.Println("✓ Logged out successfully")
	return nil
}
