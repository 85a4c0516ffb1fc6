package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PulfordJ/lastsignal/internal/checkin"
	"github.com/PulfordJ/lastsignal/internal/daemon"
	"github.com/PulfordJ/lastsignal/internal/eventstore"
	"github.com/PulfordJ/lastsignal/internal/logfields"
)

// CheckinCmd implements the 'checkin' command.
type CheckinCmd struct{}

func (c *CheckinCmd) Run(g *Global, root *CLI) error {
	comps, err := root.build(daemon.BuildOptions{Remote: true})
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close() }()

	ctx := context.Background()
	now := time.Now().UTC()
	prev, loadErr := comps.Store.Load()
	if loadErr != nil {
		slog.Warn("Could not read previous state; skipping the already-sent note", logfields.Error(loadErr))
	}
	st, err := comps.Aggregator.Manual(ctx, now)
	if err != nil {
		return err
	}
	comps.Bus.Emit(ctx, eventstore.Event{Kind: eventstore.KindCheckin, Timestamp: now, Detail: checkin.SourceManual})

	fmt.Fprintf(g.out(), "Checked in at %s\n", st.LastCheckin.Format(time.RFC3339))
	if loadErr == nil && prev.SignalFiredThisEpisode() {
		fmt.Fprintln(g.out(), "Note: the emergency message was already sent before this check-in.")
	}
	return nil
}
