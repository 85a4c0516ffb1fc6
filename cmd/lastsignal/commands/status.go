package commands

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/PulfordJ/lastsignal/internal/checkin"
	"github.com/PulfordJ/lastsignal/internal/compose"
	"github.com/PulfordJ/lastsignal/internal/daemon"
	"github.com/PulfordJ/lastsignal/internal/escalation"
	"github.com/PulfordJ/lastsignal/internal/state"
)

// StatusCmd implements the 'status' command. It only reads.
type StatusCmd struct{}

type statusReport struct {
	Now              time.Time
	State            state.State
	StateErr         error
	Plan             escalation.Plan
	Elapsed          string
	Between          string
	Max              string
	ReminderChannels int
	SignalChannels   int
	Activity         string
	ActivityAuthed   bool
}

func (s *StatusCmd) Run(g *Global, root *CLI) error {
	c, err := root.build(daemon.BuildOptions{History: daemon.HistoryNone})
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	now := time.Now().UTC()
	report := statusReport{
		Now:              now,
		Between:          c.Config.Checkin.DurationBetweenCheckins.String(),
		Max:              c.Config.Recipient.MaxTimeSinceLastCheckin.String(),
		ReminderChannels: len(c.ReminderChannels),
		SignalChannels:   len(c.SignalChannels),
	}
	// A state read failure is reported, not returned.
	report.State, report.StateErr = c.Store.Load()
	if report.StateErr == nil {
		report.Plan = escalation.PlanFor(report.State, c.EngineConfig.Policy(), now)
		report.Elapsed = c.Engine.Values(report.State, now)[compose.KeyElapsed]
	}
	if a := c.Config.Activity; a != nil {
		report.Activity = a.Type
		tok, err := checkin.NewTokenFile(filepath.Join(c.Config.App.DataDirectory, checkin.TokenFileName)).Load()
		report.ActivityAuthed = err == nil && tok != nil
	}

	renderStatus(newPrinter(g.out()), report)
	return nil
}

func renderStatus(p printer, r statusReport) {
	fmt.Fprintln(p.w, p.render(titleStyle, "LastSignal status"))
	line := func(label, value string) {
		fmt.Fprintf(p.w, "  %s%s\n", p.label(label), value)
	}

	if r.StateErr != nil {
		line("State:", p.render(failStyle, "unreadable: "+r.StateErr.Error()))
		return
	}

	st := r.State
	line("Phase:", p.render(phaseStyle(r.Plan.Phase), phaseTitle(r.Plan.Phase)))
	next := r.Plan.Action.Describe()
	if !r.Plan.NextEligible.IsZero() {
		next += fmt.Sprintf(" (eligible %s)", r.Plan.NextEligible.Format(time.RFC3339))
	}
	line("Next action:", next)

	if st.LastCheckin == nil {
		line("Last check-in:", p.render(warnStyle, "never"))
	} else {
		v := fmt.Sprintf("%s (%s ago", st.LastCheckin.Format(time.RFC3339), r.Elapsed)
		if st.LastCheckinSource != "" {
			v += ", via " + st.LastCheckinSource
		}
		line("Last check-in:", v+")")
	}

	reminders := fmt.Sprintf("%d", st.CheckinRequestCount)
	if req := st.EpisodeCheckinRequest(); req != nil {
		reminders += fmt.Sprintf(" (last %s)", req.Format(time.RFC3339))
	}
	line("Reminders sent:", reminders)

	if st.LastSignalFired == nil {
		line("Last signal fired:", p.render(dimStyle, "never"))
	} else {
		v := st.LastSignalFired.Format(time.RFC3339)
		if st.LastSignalChannel != "" {
			v += " via " + st.LastSignalChannel
		}
		if st.SignalFiredThisEpisode() {
			v = p.render(failStyle, v)
		}
		line("Last signal fired:", v)
	}
	if pending := st.EpisodeSignalAttempt(); pending != nil {
		line("Unconfirmed signal:", p.render(warnStyle, "dispatch started "+pending.Format(time.RFC3339)+" was interrupted; not resent until the next check-in"))
	}

	line("Thresholds:", fmt.Sprintf("reminders after %s, last signal after %s", r.Between, r.Max))
	line("Channels:", fmt.Sprintf("%d reminder, %d last signal", r.ReminderChannels, r.SignalChannels))
	if r.Activity != "" {
		auth := p.render(passStyle, "authorized")
		if !r.ActivityAuthed {
			auth = p.render(warnStyle, "not authorized (run 'lastsignal activity-auth')")
		}
		line("Activity tracker:", r.Activity+", "+auth)
	}
}

// phaseTitle turns AWAITING_CHECKIN into "Awaiting Checkin".
func phaseTitle(p escalation.Phase) string {
	words := strings.ReplaceAll(strings.ToLower(string(p)), "_", " ")
	return cases.Title(language.English).String(words)
}
