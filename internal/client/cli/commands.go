package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/playerid/internal/client/errs"
)

// Run выполняет команду. Ошибка аутентификации выводится вместе с
// уведомлениями backend (case id для обращения в поддержку).
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	err := c.dispatch(ctx, command, args)
	if err != nil {
		c.printNotifications(err)
	}
	return err
}

func (c *Cli) dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "register":
		return c.runRegister(ctx)
	case "status":
		return c.runStatus(ctx)
	case "link":
		return c.runLink(ctx, args)
	case "unlink":
		return c.runUnlink(ctx, args)
	case "links":
		return c.runLinks(ctx)
	case "friends":
		return c.runFriends(ctx, args)
	case "listen":
		return c.runListen(ctx)
	case "logout":
		return c.runLogout(ctx)
	default:
		PrintUsage(c.io)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func (c *Cli) printNotifications(err error) {
	var authErr *errs.AuthenticationError
	if !errors.As(err, &authErr) || len(authErr.Notifications) == 0 {
		return
	}
	c.io.Println()
	c.io.Println("Notifications from server:")
	for _, n := range authErr.Notifications {
		if n.CaseID != "" {
			c.io.Printf("  [%s] %s (case %s)\n", n.CreatedAt.Format("2006-01-02"), n.Message, n.CaseID)
		} else {
			c.io.Printf("  [%s] %s\n", n.CreatedAt.Format("2006-01-02"), n.Message)
		}
	}
}
