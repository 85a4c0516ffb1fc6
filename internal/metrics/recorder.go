package metrics

import "time"

// ResultLabel enumerates result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailure ResultLabel = "failure"
)

// Recorder defines observability hooks for the escalation loop. Implementations
// may forward to Prometheus, OpenTelemetry, etc. NoopRecorder is the default so
// components never need nil checks.
type Recorder interface {
	IncTick(phase string)
	IncDispatchOutcome(kind, outcome string)
	ObserveChannelAttempt(channel, stage string, d time.Duration, result ResultLabel)
	IncProviderPoll(source string, result ResultLabel)
	SetLastCheckin(t time.Time)
	IncStateWriteFailure()
	IncTemplateFailure()
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncTick(string)                                               {}
func (NoopRecorder) IncDispatchOutcome(string, string)                            {}
func (NoopRecorder) ObserveChannelAttempt(string, string, time.Duration, ResultLabel) {}
func (NoopRecorder) IncProviderPoll(string, ResultLabel)                          {}
func (NoopRecorder) SetLastCheckin(time.Time)                                     {}
func (NoopRecorder) IncStateWriteFailure()                                        {}
func (NoopRecorder) IncTemplateFailure()                                          {}

// Result maps an error to its ResultLabel.
func Result(err error) ResultLabel {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
