// Package dispatch delivers a message through the first healthy channel of an
// ordered list, throttled by a retry delay.
package dispatch

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/PulfordJ/lastsignal/internal/channel"
	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
	"github.com/PulfordJ/lastsignal/internal/logfields"
	"github.com/PulfordJ/lastsignal/internal/metrics"
)

// Outcome is the aggregate result of a dispatch.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeDeferred  Outcome = "deferred"
	OutcomeFailed    Outcome = "failed"
)

// Stage names the channel operation an Attempt ran.
type Stage string

const (
	StageHealthCheck Stage = "health_check"
	StageSend        Stage = "send"
)

// DefaultTimeout bounds each health check and send when none is configured.
const DefaultTimeout = 30 * time.Second

// Request describes one dispatch.
type Request struct {
	// Kind labels the message (reminder, signal) in logs and metrics.
	Kind       string
	Channels   []channel.Channel
	Message    channel.Message
	RetryDelay time.Duration
	// LastAttempt is the last successful dispatch of this kind, nil if none.
	LastAttempt *time.Time
	Now         time.Time
}

// Attempt records one channel operation.
type Attempt struct {
	Channel  string
	Stage    Stage
	Err      error
	Duration time.Duration
}

// Result reports what a dispatch did.
type Result struct {
	Outcome   Outcome
	AttemptID string
	// Channel is the channel that delivered, set when Outcome is delivered.
	Channel  string
	Attempts []Attempt
	// NextEligible is when a deferred dispatch may run again.
	NextEligible time.Time
}

// Err returns the aggregate failure, or nil unless Outcome is failed.
func (r Result) Err() error {
	if r.Outcome != OutcomeFailed {
		return nil
	}
	if len(r.Attempts) == 0 {
		return errors.ChannelError("no output channels configured").NextTick().Build()
	}
	causes := make([]error, 0, len(r.Attempts))
	for _, a := range r.Attempts {
		if a.Err != nil {
			causes = append(causes, fmt.Errorf("%s %s: %w", a.Channel, a.Stage, a.Err))
		}
	}
	return errors.WrapError(stderrors.Join(causes...), errors.CategoryChannel, "all output channels failed").
		NextTick().
		WithContext("attempt_id", r.AttemptID).
		WithContext("channels", len(r.Attempts)).
		Build()
}

// Dispatcher runs health-check gated failover across channels.
type Dispatcher struct {
	timeout  time.Duration
	recorder metrics.Recorder
	logger   *slog.Logger
}

// New creates a Dispatcher with a per-operation timeout.
func New(timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		timeout:  timeout,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
}

// WithRecorder sets the metrics recorder.
func (d *Dispatcher) WithRecorder(r metrics.Recorder) *Dispatcher {
	if r != nil {
		d.recorder = r
	}
	return d
}

// WithLogger sets the logger.
func (d *Dispatcher) WithLogger(l *slog.Logger) *Dispatcher {
	if l != nil {
		d.logger = l
	}
	return d
}

// Dispatch delivers req.Message through the first channel, in order, that
// passes its health check and accepts the send. Nothing is touched while the
// retry delay since the last successful dispatch has not elapsed. Channels are
// tried back to back; a failed channel never delays the next one.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Result {
	res := Result{AttemptID: uuid.NewString()}
	log := d.logger.With(logfields.Dispatch(req.Kind), logfields.AttemptID(res.AttemptID))

	if req.LastAttempt != nil {
		next := req.LastAttempt.Add(req.RetryDelay)
		if req.Now.Before(next) {
			res.Outcome = OutcomeDeferred
			res.NextEligible = next
			log.Debug("Dispatch deferred by retry delay",
				logfields.Timestamp("last_attempt", req.LastAttempt),
				slog.Time("next_eligible", next))
			d.recorder.IncDispatchOutcome(req.Kind, string(res.Outcome))
			return res
		}
	}

	for _, ch := range req.Channels {
		attempt := d.run(ctx, ch, StageHealthCheck, ch.HealthCheck)
		res.Attempts = append(res.Attempts, attempt)
		if attempt.Err != nil {
			log.Warn("Channel failed health check, trying next",
				logfields.Channel(ch.Name()),
				logfields.Stage(string(attempt.Stage)),
				logfields.ChannelKind(string(channel.KindOf(attempt.Err))),
				logfields.DurationMS(msOf(attempt.Duration)),
				logfields.Error(attempt.Err))
			continue
		}

		attempt = d.run(ctx, ch, StageSend, func(ctx context.Context) error {
			return ch.Send(ctx, req.Message)
		})
		res.Attempts = append(res.Attempts, attempt)
		if attempt.Err != nil {
			log.Warn("Channel send failed, trying next",
				logfields.Channel(ch.Name()),
				logfields.Stage(string(attempt.Stage)),
				logfields.ChannelKind(string(channel.KindOf(attempt.Err))),
				logfields.DurationMS(msOf(attempt.Duration)),
				logfields.Error(attempt.Err))
			continue
		}

		res.Outcome = OutcomeDelivered
		res.Channel = ch.Name()
		log.Info("Message delivered",
			logfields.Outcome(string(res.Outcome)),
			logfields.Channel(ch.Name()),
			logfields.Count(uint64(len(res.Attempts))),
			logfields.DurationMS(msOf(attempt.Duration)))
		d.recorder.IncDispatchOutcome(req.Kind, string(res.Outcome))
		return res
	}

	res.Outcome = OutcomeFailed
	log.Error("All output channels failed",
		logfields.Outcome(string(res.Outcome)),
		logfields.Count(uint64(len(req.Channels))))
	d.recorder.IncDispatchOutcome(req.Kind, string(res.Outcome))
	return res
}

func (d *Dispatcher) run(ctx context.Context, ch channel.Channel, stage Stage, op func(context.Context) error) Attempt {
	opCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := channel.Classify(ch.Name(), op(opCtx))
	elapsed := time.Since(start)

	d.recorder.ObserveChannelAttempt(ch.Name(), string(stage), elapsed, metrics.Result(err))
	return Attempt{Channel: ch.Name(), Stage: stage, Err: err, Duration: elapsed}
}

func msOf(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
