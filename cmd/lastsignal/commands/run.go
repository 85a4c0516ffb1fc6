package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/PulfordJ/lastsignal/internal/daemon"
)

// RunCmd implements the 'run' command.
type RunCmd struct{}

func (r *RunCmd) Run(_ *Global, root *CLI) error {
	c, err := root.build(daemon.BuildOptions{Remote: true, Sources: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			slog.Warn("Failed to close components", "error", err)
		}
	}()

	d, err := daemon.New(c.Options())
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("Starting lastsignal daemon",
		"config", c.Config.Path(),
		"data_dir", c.Config.App.DataDirectory,
		"reminder_channels", len(c.ReminderChannels),
		"last_signal_channels", len(c.SignalChannels))
	return d.Run(ctx)
}
