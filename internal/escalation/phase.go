// Package escalation decides, on every tick, whether to do nothing, remind the
// monitored person to check in, or send the emergency message.
//
// No phase is stored. It is derived from the time since the last check-in,
// so a restart at any point re-derives the same decision from the state file.
package escalation

import (
	"time"

	"github.com/PulfordJ/lastsignal/internal/state"
)

// Phase is the derived escalation phase.
type Phase string

const (
	PhaseNormal          Phase = "NORMAL"
	PhaseAwaitingCheckin Phase = "AWAITING_CHECKIN"
	PhaseEscalated       Phase = "ESCALATED"
)

// Thresholds are the two configured lapses.
type Thresholds struct {
	DurationBetweenCheckins time.Duration
	MaxTimeSinceLastCheckin time.Duration
}

// DerivePhase computes the phase at now. Without any check-in the person is
// awaiting one; escalation needs a check-in to measure from.
func DerivePhase(st state.State, th Thresholds, now time.Time) Phase {
	elapsed, ok := st.Elapsed(now)
	switch {
	case !ok:
		return PhaseAwaitingCheckin
	case elapsed < th.DurationBetweenCheckins:
		return PhaseNormal
	case elapsed < th.MaxTimeSinceLastCheckin:
		return PhaseAwaitingCheckin
	default:
		return PhaseEscalated
	}
}

// Action is what a tick does in a given state.
type Action string

const (
	ActionNone               Action = "none"
	ActionReminder           Action = "send_reminder"
	ActionReminderDeferred   Action = "reminder_deferred"
	ActionSignal             Action = "fire_last_signal"
	ActionSignalAlreadyFired Action = "last_signal_already_fired"
	ActionSignalUnconfirmed  Action = "last_signal_unconfirmed"
)

// Describe returns a human readable form of a.
func (a Action) Describe() string {
	switch a {
	case ActionReminder:
		return "check-in reminder would be sent"
	case ActionReminderDeferred:
		return "check-in reminder recently sent, waiting for retry delay"
	case ActionSignal:
		return "last signal would be fired"
	case ActionSignalAlreadyFired:
		return "last signal already fired for this period"
	case ActionSignalUnconfirmed:
		return "last signal dispatch was interrupted; not resent until the next check-in"
	default:
		return "no action needed"
	}
}

// Plan is the decision for one tick.
type Plan struct {
	Phase  Phase
	Action Action
	// LastAttempt is what the retry delay is measured from, nil if nothing was
	// sent yet.
	LastAttempt *time.Time
	// NextEligible is set for deferred actions.
	NextEligible time.Time
}

// Policy holds everything PlanFor needs beyond the state. The emergency
// message goes out at most once per episode, so only reminders have a retry
// delay.
type Policy struct {
	Thresholds
	ReminderRetryDelay time.Duration
}

// PlanFor decides the action for st at now.
func PlanFor(st state.State, p Policy, now time.Time) Plan {
	plan := Plan{Phase: DerivePhase(st, p.Thresholds, now), Action: ActionNone}

	switch plan.Phase {
	case PhaseAwaitingCheckin:
		plan.Action = ActionReminder
		plan.LastAttempt = st.EpisodeCheckinRequest()
		if deferred(plan.LastAttempt, p.ReminderRetryDelay, now) {
			plan.Action = ActionReminderDeferred
			plan.NextEligible = plan.LastAttempt.Add(p.ReminderRetryDelay)
		}
	case PhaseEscalated:
		switch {
		case st.SignalFiredThisEpisode():
			plan.Action = ActionSignalAlreadyFired
		case st.EpisodeSignalAttempt() != nil:
			// A dispatch started and neither a delivery nor a failure was
			// recorded. It may have reached a recipient.
			plan.Action = ActionSignalUnconfirmed
			plan.LastAttempt = st.EpisodeSignalAttempt()
		default:
			plan.Action = ActionSignal
		}
	}
	return plan
}

func deferred(last *time.Time, delay time.Duration, now time.Time) bool {
	return last != nil && now.Before(last.Add(delay))
}
