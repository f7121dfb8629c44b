package oauth

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
)

// BrowserOpener prints authURL to w and tries to open it in the system browser.
// Failure to start the browser is not an error: the user can follow the printed link.
func BrowserOpener(w io.Writer) Opener {
	return func(ctx context.Context, authURL string) error {
		if _, err := fmt.Fprintf(w, "Open this link to continue:\n  %s\n", authURL); err != nil {
			return err
		}

		var cmd *exec.Cmd
		switch runtime.GOOS {
		case "darwin":
			cmd = exec.CommandContext(ctx, "open", authURL)
		case "windows":
			cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", authURL)
		default:
			cmd = exec.CommandContext(ctx, "xdg-open", authURL)
		}
		if err := cmd.Start(); err == nil {
			go func() { _ = cmd.Wait() }()
		}
		return nil
	}
}
