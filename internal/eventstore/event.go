// Package eventstore keeps an append-only history of what the daemon did:
// check-ins, reminders, emergency dispatches and the failures in between.
package eventstore

import "time"

// Kind names an event.
type Kind string

const (
	KindCheckin        Kind = "checkin"
	KindReminderSent   Kind = "reminder_sent"
	KindReminderFailed Kind = "reminder_failed"
	KindSignalAttempt  Kind = "signal_attempt"
	KindSignalFired    Kind = "signal_fired"
	KindSignalFailed   Kind = "signal_failed"
	KindChannelFailed  Kind = "channel_failed"
	KindTemplateError  Kind = "template_error"
	KindStateError     Kind = "state_error"
	KindDaemonStarted  Kind = "daemon_started"
	KindDaemonStopped  Kind = "daemon_stopped"
)

// Event is one history record. AttemptID ties together the events of a
// single dispatch.
type Event struct {
	ID        int64     `json:"id,omitempty"`
	AttemptID string    `json:"attempt_id,omitempty"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Phase     string    `json:"phase,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}
