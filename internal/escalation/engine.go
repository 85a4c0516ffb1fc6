package escalation

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/PulfordJ/lastsignal/internal/channel"
	"github.com/PulfordJ/lastsignal/internal/compose"
	"github.com/PulfordJ/lastsignal/internal/dispatch"
	"github.com/PulfordJ/lastsignal/internal/duration"
	"github.com/PulfordJ/lastsignal/internal/eventstore"
	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
	"github.com/PulfordJ/lastsignal/internal/logfields"
	"github.com/PulfordJ/lastsignal/internal/metrics"
	"github.com/PulfordJ/lastsignal/internal/retry"
	"github.com/PulfordJ/lastsignal/internal/state"
)

const (
	kindReminder = "reminder"
	kindSignal   = "signal"
)

// Store is the state the engine reads and records into.
type Store interface {
	Load() (state.State, error)
	RecordCheckinRequest(ctx context.Context, at time.Time) (state.State, error)
	RecordSignalAttempt(ctx context.Context, at time.Time) (state.State, error)
	ClearSignalAttempt(ctx context.Context) (state.State, error)
	RecordSignalFired(ctx context.Context, at time.Time, channel string) (state.State, error)
}

// Composer renders the emergency message.
type Composer interface {
	Compose(values map[string]string) (channel.Message, error)
}

// EventSink receives history events.
type EventSink interface {
	Emit(ctx context.Context, e eventstore.Event)
}

// Config is the engine's view of the configuration.
type Config struct {
	DurationBetweenCheckins duration.Duration
	MaxTimeSinceLastCheckin duration.Duration
	ReminderRetryDelay      time.Duration
	// SignalRetryDelay is handed to the dispatcher. A signal never has a
	// previous attempt in its own episode, so it does not hold one back.
	SignalRetryDelay time.Duration
	ReminderChannels        []channel.Channel
	SignalChannels          []channel.Channel
	PersonName              string
	ContactInfo             string
}

// Policy returns the decision inputs of c.
func (c Config) Policy() Policy {
	return Policy{
		Thresholds: Thresholds{
			DurationBetweenCheckins: c.DurationBetweenCheckins.Std(),
			MaxTimeSinceLastCheckin: c.MaxTimeSinceLastCheckin.Std(),
		},
		ReminderRetryDelay: c.ReminderRetryDelay,
	}
}

// Report describes what a tick did.
type Report struct {
	Plan
	// Dispatch is set when a dispatch ran.
	Dispatch *dispatch.Result
}

// DefaultStateRetry retries state writes that follow a delivered message.
var DefaultStateRetry = retry.NewPolicy(retry.BackoffExponential, 250*time.Millisecond, 5*time.Second, 5)

// Engine runs the escalation state machine.
type Engine struct {
	cfg        Config
	store      Store
	dispatcher *dispatch.Dispatcher
	composer   Composer

	events     EventSink
	recorder   metrics.Recorder
	logger     *slog.Logger
	stateRetry retry.Policy
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvents sets the history sink.
func WithEvents(s EventSink) Option { return func(e *Engine) { e.events = s } }

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithStateRetry sets the policy for retrying state writes after a delivery.
func WithStateRetry(p retry.Policy) Option { return func(e *Engine) { e.stateRetry = p } }

// New creates an Engine.
func New(cfg Config, store Store, d *dispatch.Dispatcher, composer Composer, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		store:      store,
		dispatcher: d,
		composer:   composer,
		recorder:   metrics.NoopRecorder{},
		logger:     slog.Default(),
		stateRetry: DefaultStateRetry,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Values builds the placeholder values for st at now.
func (e *Engine) Values(st state.State, now time.Time) map[string]string {
	return compose.Values(compose.Input{
		Now:                     now,
		LastCheckin:             st.LastCheckin,
		DurationBetweenCheckins: e.cfg.DurationBetweenCheckins,
		MaxTimeSinceLastCheckin: e.cfg.MaxTimeSinceLastCheckin,
		CheckinRequestCount:     st.CheckinRequestCount,
		PersonName:              e.cfg.PersonName,
		ContactInfo:             e.cfg.ContactInfo,
	})
}

// CheckTemplate renders the emergency message against st without sending it,
// so a broken template is found before it is needed.
func (e *Engine) CheckTemplate(st state.State, now time.Time) error {
	_, err := e.composer.Compose(e.Values(st, now))
	return err
}

// Tick loads the state, derives the phase and performs at most one dispatch.
// A returned error means the tick's action did not complete; the next tick
// retries it.
func (e *Engine) Tick(ctx context.Context, now time.Time) (Report, error) {
	st, err := e.store.Load()
	if err != nil {
		e.logger.Error("Failed to load state", logfields.Error(err))
		e.emit(ctx, eventstore.Event{Kind: eventstore.KindStateError, Timestamp: now, Detail: err.Error()})
		return Report{}, err
	}

	plan := PlanFor(st, e.cfg.Policy(), now)
	e.recorder.IncTick(string(plan.Phase))
	log := e.logger.With(logfields.Phase(string(plan.Phase)), logfields.Action(string(plan.Action)))
	if elapsed, ok := st.Elapsed(now); ok {
		log = log.With(logfields.Elapsed(elapsed))
	}

	switch plan.Action {
	case ActionReminder:
		return e.remind(ctx, log, st, plan, now)
	case ActionSignal:
		return e.fire(ctx, log, st, plan, now)
	case ActionReminderDeferred:
		log.Debug("Dispatch deferred by retry delay", slog.Time("next_eligible", plan.NextEligible))
	case ActionSignalUnconfirmed:
		log.Error("LAST SIGNAL DISPATCH WAS INTERRUPTED; it may have been delivered and is not sent again until the next check-in",
			slog.String("severity", string(errors.SeverityCritical)),
			logfields.Timestamp("last_signal_attempt", plan.LastAttempt))
	case ActionSignalAlreadyFired:
		log.Debug("Last signal already fired this period", logfields.Timestamp("last_signal_fired", st.LastSignalFired))
	default:
		log.Debug("Tick complete")
	}
	return Report{Plan: plan}, nil
}

func (e *Engine) remind(ctx context.Context, log *slog.Logger, st state.State, plan Plan, now time.Time) (Report, error) {
	report := Report{Plan: plan}

	values := e.Values(st, now)
	values[compose.KeyCheckinRequestCount] = strconv.FormatUint(st.CheckinRequestCount+1, 10)
	msg, err := compose.Reminder(values)
	if err != nil {
		log.Error("Failed to compose reminder", logfields.Error(err))
		return report, err
	}

	res := e.dispatcher.Dispatch(ctx, dispatch.Request{
		Kind:        kindReminder,
		Channels:    e.cfg.ReminderChannels,
		Message:     msg,
		RetryDelay:  e.cfg.ReminderRetryDelay,
		LastAttempt: plan.LastAttempt,
		Now:         now,
	})
	report.Dispatch = &res
	e.emitFailures(ctx, plan, res, now)

	switch res.Outcome {
	case dispatch.OutcomeDelivered:
		err := e.persist(ctx, func() error {
			_, err := e.store.RecordCheckinRequest(ctx, now)
			return err
		})
		if err != nil {
			e.recorder.IncStateWriteFailure()
			log.Error("Reminder delivered but not recorded; it may be sent again", logfields.Error(err))
			e.emit(ctx, eventstore.Event{Kind: eventstore.KindStateError, AttemptID: res.AttemptID, Timestamp: now, Detail: err.Error()})
		}
		e.emit(ctx, eventstore.Event{
			Kind: eventstore.KindReminderSent, AttemptID: res.AttemptID, Timestamp: now,
			Phase: string(plan.Phase), Channel: res.Channel,
		})
		return report, err
	case dispatch.OutcomeFailed:
		e.emit(ctx, eventstore.Event{
			Kind: eventstore.KindReminderFailed, AttemptID: res.AttemptID, Timestamp: now, Phase: string(plan.Phase),
		})
		return report, res.Err()
	}
	return report, nil
}

func (e *Engine) fire(ctx context.Context, log *slog.Logger, st state.State, plan Plan, now time.Time) (Report, error) {
	report := Report{Plan: plan}

	msg, err := e.composer.Compose(e.Values(st, now))
	if err != nil {
		e.recorder.IncTemplateFailure()
		log.Error("EMERGENCY MESSAGE COULD NOT BE COMPOSED; last signal not sent",
			slog.String("severity", string(errors.SeverityCritical)),
			logfields.Error(err))
		e.emit(ctx, eventstore.Event{Kind: eventstore.KindTemplateError, Timestamp: now, Phase: string(plan.Phase), Detail: err.Error()})
		return report, err
	}

	// The marker outlives a crash between send and record, so a restart does
	// not send the message a second time.
	if _, err := e.store.RecordSignalAttempt(ctx, now); err != nil {
		e.recorder.IncStateWriteFailure()
		log.Error("Failed to record last signal attempt; retrying next tick", logfields.Error(err))
		e.emit(ctx, eventstore.Event{Kind: eventstore.KindStateError, Timestamp: now, Phase: string(plan.Phase), Detail: err.Error()})
		return report, err
	}

	res := e.dispatcher.Dispatch(ctx, dispatch.Request{
		Kind:        kindSignal,
		Channels:    e.cfg.SignalChannels,
		Message:     msg,
		RetryDelay:  e.cfg.SignalRetryDelay,
		LastAttempt: plan.LastAttempt,
		Now:         now,
	})
	report.Dispatch = &res
	e.emit(ctx, eventstore.Event{Kind: eventstore.KindSignalAttempt, AttemptID: res.AttemptID, Timestamp: now, Phase: string(plan.Phase)})
	e.emitFailures(ctx, plan, res, now)

	switch res.Outcome {
	case dispatch.OutcomeDelivered:
		err := e.persist(ctx, func() error {
			_, err := e.store.RecordSignalFired(ctx, now, res.Channel)
			return err
		})
		e.emit(ctx, eventstore.Event{
			Kind: eventstore.KindSignalFired, AttemptID: res.AttemptID, Timestamp: now,
			Phase: string(plan.Phase), Channel: res.Channel,
		})
		if err != nil {
			e.recorder.IncStateWriteFailure()
			log.Error("Last signal delivered but not recorded; it may be sent again", logfields.Channel(res.Channel), logfields.Error(err))
			e.emit(ctx, eventstore.Event{Kind: eventstore.KindStateError, AttemptID: res.AttemptID, Timestamp: now, Detail: err.Error()})
			return report, err
		}
		log.Warn("Last signal fired", logfields.Channel(res.Channel), logfields.AttemptID(res.AttemptID))
		return report, nil
	case dispatch.OutcomeFailed:
		e.emit(ctx, eventstore.Event{Kind: eventstore.KindSignalFailed, AttemptID: res.AttemptID, Timestamp: now, Phase: string(plan.Phase)})
		// Nothing was delivered; drop the marker so the next tick tries again.
		if err := e.persist(ctx, func() error {
			_, err := e.store.ClearSignalAttempt(ctx)
			return err
		}); err != nil {
			e.recorder.IncStateWriteFailure()
			log.Error("Last signal failed and its attempt marker could not be cleared; it will not be retried until the next check-in",
				slog.String("severity", string(errors.SeverityCritical)),
				logfields.AttemptID(res.AttemptID), logfields.Error(err))
			e.emit(ctx, eventstore.Event{Kind: eventstore.KindStateError, AttemptID: res.AttemptID, Timestamp: now, Detail: err.Error()})
		}
		log.Error("Last signal could not be delivered on any channel; retrying next tick", logfields.AttemptID(res.AttemptID))
		return report, res.Err()
	}
	return report, nil
}

// persist retries a state write that records an already delivered message.
func (e *Engine) persist(ctx context.Context, write func() error) error {
	return e.stateRetry.Do(ctx, func(err error) bool {
		return errors.HasCategory(err, errors.CategoryState)
	}, write)
}

func (e *Engine) emitFailures(ctx context.Context, plan Plan, res dispatch.Result, now time.Time) {
	for _, a := range res.Attempts {
		if a.Err == nil {
			continue
		}
		e.emit(ctx, eventstore.Event{
			Kind: eventstore.KindChannelFailed, AttemptID: res.AttemptID, Timestamp: now,
			Phase: string(plan.Phase), Channel: a.Channel,
			Detail: string(a.Stage) + " " + string(channel.KindOf(a.Err)),
		})
	}
}

func (e *Engine) emit(ctx context.Context, ev eventstore.Event) {
	if e.events != nil {
		e.events.Emit(ctx, ev)
	}
}
