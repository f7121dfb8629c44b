package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/playerid/internal/client/session"
)

func (c *Cli) runRegister(ctx context.Context) error {
	c.io.Println("=== Device Registration ===")
	c.io.Println()

	if state := c.session.State(); state == session.StateReady {
		return fmt.Errorf("session is already active, run 'playerid logout' first")
	}

	cred, err := c.credential(ctx, true)
	if err != nil {
		return err
	}

	c.io.Println("Registering device...")

	info, err := c.session.Start(ctx, cred)
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("✓ Registration successful!")
	c.io.Printf("Player ID: %s\n", info.UUID)
	c.io.Printf("Username: %s\n", info.Username)
	c.io.Printf("Device ID: %s\n", cred.DeviceID)
	c.io.Println()
	c.io.Println("⚠️  IMPORTANT: Keep your device secret!")
	c.io.Println("   It is required to resume this session on the device.")

	return nil
}
