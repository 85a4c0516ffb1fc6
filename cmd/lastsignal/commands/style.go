package commands

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/PulfordJ/lastsignal/internal/escalation"
	"github.com/PulfordJ/lastsignal/internal/eventstore"
)

var (
	colorPass  = lipgloss.AdaptiveColor{Light: "#6cbf43", Dark: "#aad94c"}
	colorWarn  = lipgloss.AdaptiveColor{Light: "#e6a700", Dark: "#ffb454"}
	colorFail  = lipgloss.AdaptiveColor{Light: "#e65050", Dark: "#f07178"}
	colorMuted = lipgloss.AdaptiveColor{Light: "#8a9199", Dark: "#565b66"}

	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(colorMuted).Width(20)
	passStyle  = lipgloss.NewStyle().Foreground(colorPass).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(colorFail).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(colorMuted)
)

// printer renders styled text on terminals and plain text elsewhere.
type printer struct {
	w     io.Writer
	color bool
}

func newPrinter(w io.Writer) printer {
	color := false
	if f, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return printer{w: w, color: color}
}

func (p printer) render(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func (p printer) label(text string) string {
	if !p.color {
		return text + strings.Repeat(" ", max(1, 20-len(text)))
	}
	return labelStyle.Render(text)
}

func phaseStyle(p escalation.Phase) lipgloss.Style {
	switch p {
	case escalation.PhaseNormal:
		return passStyle
	case escalation.PhaseEscalated:
		return failStyle
	default:
		return warnStyle
	}
}

func kindStyle(k eventstore.Kind) lipgloss.Style {
	switch k {
	case eventstore.KindCheckin, eventstore.KindReminderSent:
		return passStyle
	case eventstore.KindSignalFired, eventstore.KindSignalFailed, eventstore.KindTemplateError, eventstore.KindStateError:
		return failStyle
	case eventstore.KindReminderFailed, eventstore.KindChannelFailed, eventstore.KindSignalAttempt:
		return warnStyle
	default:
		return dimStyle
	}
}
