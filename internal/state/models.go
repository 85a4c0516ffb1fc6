package state

import "time"

// CurrentVersion is the schema version written by this build.
const CurrentVersion = 1

// State is the persisted escalation record. Nil timestamps mean "never".
type State struct {
	Version             int        `json:"version"`
	LastCheckin         *time.Time `json:"last_checkin"`
	LastCheckinSource   string     `json:"last_checkin_source,omitempty"`
	LastCheckinRequest  *time.Time `json:"last_checkin_request"`
	CheckinRequestCount uint64     `json:"checkin_request_count"`
	LastSignalAttempt   *time.Time `json:"last_signal_attempt"`
	LastSignalFired     *time.Time `json:"last_signal_fired"`
	LastSignalChannel   string     `json:"last_signal_channel,omitempty"`
}

// Default returns the state of a switch that has never run.
func Default() State {
	return State{Version: CurrentVersion}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	out.LastCheckin = clonePtr(s.LastCheckin)
	out.LastCheckinRequest = clonePtr(s.LastCheckinRequest)
	out.LastSignalAttempt = clonePtr(s.LastSignalAttempt)
	out.LastSignalFired = clonePtr(s.LastSignalFired)
	return out
}

// Elapsed is the time since the last check-in. ok is false when there has never been one.
func (s State) Elapsed(now time.Time) (elapsed time.Duration, ok bool) {
	if s.LastCheckin == nil {
		return 0, false
	}
	return now.Sub(*s.LastCheckin), true
}

// SignalFiredThisEpisode reports whether the emergency message was already
// delivered since the last check-in.
func (s State) SignalFiredThisEpisode() bool {
	if s.LastSignalFired == nil {
		return false
	}
	if s.LastCheckin == nil {
		return true
	}
	return !s.LastSignalFired.Before(*s.LastCheckin)
}

// EpisodeCheckinRequest returns the last reminder time if it belongs to the
// current episode, nil otherwise.
func (s State) EpisodeCheckinRequest() *time.Time {
	if s.LastCheckinRequest == nil {
		return nil
	}
	if s.LastCheckin != nil && s.LastCheckinRequest.Before(*s.LastCheckin) {
		return nil
	}
	return s.LastCheckinRequest
}

// EpisodeSignalAttempt returns the start of an emergency dispatch in the current
// episode that recorded neither a delivery nor a failure, nil otherwise.
func (s State) EpisodeSignalAttempt() *time.Time {
	if s.LastSignalAttempt == nil || s.SignalFiredThisEpisode() {
		return nil
	}
	if s.LastCheckin != nil && s.LastSignalAttempt.Before(*s.LastCheckin) {
		return nil
	}
	return s.LastSignalAttempt
}

func clonePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// later returns whichever of current and candidate is later, as a fresh pointer in UTC.
func later(current *time.Time, candidate time.Time) *time.Time {
	candidate = candidate.UTC().Round(0)
	if current != nil && current.After(candidate) {
		return clonePtr(current)
	}
	return &candidate
}
