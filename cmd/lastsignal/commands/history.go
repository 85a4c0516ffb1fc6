package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PulfordJ/lastsignal/internal/daemon"
	"github.com/PulfordJ/lastsignal/internal/eventstore"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int `short:"n" help:"Number of events to show" default:"20"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	c, err := root.build(daemon.BuildOptions{History: daemon.HistoryRequired})
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	evs, err := c.History.Recent(context.Background(), h.Limit)
	if err != nil {
		return err
	}
	renderHistory(newPrinter(g.out()), evs)
	return nil
}

func renderHistory(p printer, evs []eventstore.Event) {
	if len(evs) == 0 {
		fmt.Fprintln(p.w, "No events recorded yet.")
		return
	}

	fmt.Fprintln(p.w, p.render(titleStyle, "Recent events"))
	for _, e := range evs {
		var extra string
		switch {
		case e.Channel != "" && e.Detail != "":
			extra = e.Channel + ": " + e.Detail
		case e.Channel != "":
			extra = e.Channel
		default:
			extra = e.Detail
		}
		fmt.Fprintf(p.w, "  %s  %-16s %s\n",
			p.render(dimStyle, e.Timestamp.Local().Format(time.DateTime)),
			p.render(kindStyle(e.Kind), string(e.Kind)),
			extra)
	}

	summaries := eventstore.SummarizeDispatches(evs)
	if len(summaries) == 0 {
		return
	}
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, p.render(titleStyle, "Dispatches"))
	for _, s := range summaries {
		line := fmt.Sprintf("  %s  %-8s %-9s", s.StartedAt.Local().Format(time.DateTime), s.Kind, s.Outcome)
		if s.Channel != "" {
			line += " via " + s.Channel
		}
		if len(s.Failures) > 0 {
			line += " (failed: " + strings.Join(s.Failures, ", ") + ")"
		}
		fmt.Fprintln(p.w, line)
	}
}
