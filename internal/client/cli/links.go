package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/iudanet/playerid/internal/models"
)

func parseProviderArg(args []string) (models.Provider, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("provider is required (google, apple, facebook, steam)")
	}
	return models.ParseProvider(args[0])
}

func (c *Cli) runLink(ctx context.Context, args []string) error {
	provider, err := parseProviderArg(args)
	if err != nil {
		return err
	}
	if err := c.resume(ctx); err != nil {
		return err
	}

	c.io.Printf("Linking %s account, complete the sign-in in your browser...\n", provider)

	result, err := c.links.Link(ctx, provider)
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Printf("✓ Linked %s account %s\n", provider, result.Link.PartyUserID)
	if result.Replaced {
		c.io.Println("  (previous link for this provider was replaced)")
	}
	return nil
}

func (c *Cli) runUnlink(ctx context.Context, args []string) error {
	provider, err := parseProviderArg(args)
	if err != nil {
		return err
	}
	if err := c.resume(ctx); err != nil {
		return err
	}

	result, err := c.links.Unlink(ctx, provider)
	if err != nil {
		return err
	}

	c.io.Printf("✓ Unlinked %s account %s\n", provider, result.Link.PartyUserID)
	return nil
}

func (c *Cli) runLinks(ctx context.Context) error {
	if err := c.resume(ctx); err != nil {
		return err
	}

	links, err := c.links.ListLinks(ctx)
	if err != nil {
		return err
	}

	c.io.Println("=== Linked Providers ===")
	c.io.Println()

	if len(links) == 0 {
		c.io.Println("No linked providers.")
		return nil
	}

	c.io.Printf("%-10s %-32s %s\n", "PROVIDER", "ACCOUNT", "LINKED AT")
	for _, l := range links {
		c.io.Printf("%-10s %-32s %s\n", l.Provider, l.PartyUserID, l.LinkedAt.Format(time.RFC3339))
	}
	c.io.Println()
	c.io.Printf("Total: %d link(s)\n", len(links))
	return nil
}
