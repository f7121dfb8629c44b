package cli

import (
	"context"
	"errors"
)

func (c *Cli) runListen(ctx context.Context) error {
	if err := c.resume(ctx); err != nil {
		return err
	}

	c.io.Println("Listening for server events, press Ctrl+C to stop...")

	err := c.listener.Run(ctx)
	if errors.Is(err, context.Canceled) {
		c.io.Println("Stopped.")
		return nil
	}
	return err
}
