package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/PulfordJ/lastsignal/internal/daemon"
	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
)

// ActivityAuthCmd implements the 'activity-auth' command. Without --code it
// prints the authorization URL; with it, it exchanges the code for tokens.
type ActivityAuthCmd struct {
	Code string `help:"Authorization code from the redirect URL"`
}

func (a *ActivityAuthCmd) Run(g *Global, root *CLI) error {
	c, err := root.build(daemon.BuildOptions{History: daemon.HistoryNone})
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if c.Whoop == nil {
		return errors.ConfigError("no activity tracker configured (add an 'activity' section)").Build()
	}
	out := g.out()

	if a.Code == "" {
		fmt.Fprintln(out, "Open this URL, approve access, then rerun with --code set to the 'code' query parameter of the redirect:")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  "+c.Whoop.AuthCodeURL(uuid.NewString()))
		return nil
	}

	if err := c.Whoop.Exchange(context.Background(), a.Code); err != nil {
		return err
	}
	fmt.Fprintln(out, "Activity tracker authorized; automatic check-ins are enabled on the next daemon tick.")
	return nil
}
