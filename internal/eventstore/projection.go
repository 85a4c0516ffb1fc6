package eventstore

import (
	"sort"
	"time"
)

const (
	outcomeDelivered = "delivered"
	outcomeFailed    = "failed"
	outcomePending   = "pending"
)

// DispatchSummary is a read model of one reminder or emergency dispatch,
// folded from the events sharing its AttemptID.
type DispatchSummary struct {
	AttemptID string        `json:"attempt_id"`
	Kind      string        `json:"kind"` // "reminder" or "signal"
	StartedAt time.Time     `json:"started_at"`
	Outcome   string        `json:"outcome"` // "delivered", "failed" or "pending"
	Channel   string        `json:"channel,omitempty"`
	Failures  []string      `json:"failures,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// SummarizeDispatches folds events into one summary per attempt, newest
// first. Events without an AttemptID are ignored.
func SummarizeDispatches(events []Event) []DispatchSummary {
	byID := make(map[string]*DispatchSummary)
	var order []*DispatchSummary

	for _, e := range events {
		if e.AttemptID == "" {
			continue
		}
		s, ok := byID[e.AttemptID]
		if !ok {
			s = &DispatchSummary{AttemptID: e.AttemptID, StartedAt: e.Timestamp, Outcome: outcomePending}
			byID[e.AttemptID] = s
			order = append(order, s)
		}
		if e.Timestamp.Before(s.StartedAt) {
			s.StartedAt = e.Timestamp
		}
		applyEvent(s, e)
	}

	out := make([]DispatchSummary, 0, len(order))
	for _, s := range order {
		out = append(out, *s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

func applyEvent(s *DispatchSummary, e Event) {
	switch e.Kind {
	case KindSignalAttempt:
		s.Kind = "signal"
	case KindReminderSent, KindSignalFired:
		s.Kind = dispatchKind(e.Kind)
		s.Outcome = outcomeDelivered
		s.Channel = e.Channel
		s.Duration = e.Timestamp.Sub(s.StartedAt)
	case KindReminderFailed, KindSignalFailed:
		s.Kind = dispatchKind(e.Kind)
		s.Outcome = outcomeFailed
		s.Duration = e.Timestamp.Sub(s.StartedAt)
	case KindChannelFailed:
		s.Failures = append(s.Failures, e.Channel+": "+e.Detail)
	}
}

func dispatchKind(k Kind) string {
	switch k {
	case KindReminderSent, KindReminderFailed:
		return "reminder"
	default:
		return "signal"
	}
}
