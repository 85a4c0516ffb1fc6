package checkin

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/PulfordJ/lastsignal/internal/logfields"
	"github.com/PulfordJ/lastsignal/internal/metrics"
	"github.com/PulfordJ/lastsignal/internal/retry"
	"github.com/PulfordJ/lastsignal/internal/state"
)

// StateStore is the part of the state store the aggregator writes to.
type StateStore interface {
	Load() (state.State, error)
	RecordCheckin(ctx context.Context, at time.Time, source string) (state.State, error)
}

// DefaultBackoff spaces out polls of a rate limited source.
var DefaultBackoff = retry.NewPolicy(retry.BackoffExponential, 5*time.Minute, 6*time.Hour, 0)

// Applied describes a check-in taken from a source.
type Applied struct {
	At     time.Time
	Source string
}

type backoffState struct {
	failures int
	until    time.Time
}

// Aggregator records manual check-ins and polls automatic sources.
type Aggregator struct {
	store   StateStore
	sources []Source

	backoffPolicy              retry.Policy
	authFailureCountsAsCheckin bool
	recorder                   metrics.Recorder
	logger                     *slog.Logger

	mu      sync.Mutex
	backoff map[string]*backoffState
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithAuthFailureCountsAsCheckin treats a source whose credentials cannot be
// refreshed as proof of life.
func WithAuthFailureCountsAsCheckin(v bool) Option {
	return func(a *Aggregator) { a.authFailureCountsAsCheckin = v }
}

// WithBackoff sets the rate limit backoff policy.
func WithBackoff(p retry.Policy) Option {
	return func(a *Aggregator) { a.backoffPolicy = p }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(a *Aggregator) {
		if r != nil {
			a.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAggregator creates an Aggregator over sources.
func NewAggregator(store StateStore, sources []Source, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:         store,
		sources:       sources,
		backoffPolicy: DefaultBackoff,
		recorder:      metrics.NoopRecorder{},
		logger:        slog.Default(),
		backoff:       make(map[string]*backoffState),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Sources returns the configured automatic sources.
func (a *Aggregator) Sources() []Source { return a.sources }

// Manual records a check-in at now.
func (a *Aggregator) Manual(ctx context.Context, now time.Time) (state.State, error) {
	st, err := a.store.RecordCheckin(ctx, now, SourceManual)
	if err != nil {
		return st, err
	}
	a.recorder.SetLastCheckin(*st.LastCheckin)
	a.logger.Info("Check-in recorded", logfields.Source(SourceManual), logfields.Timestamp("last_checkin", st.LastCheckin))
	return st, nil
}

// Poll asks every source for activity newer than the last check-in and
// records the newest. Source failures are logged and never returned; only
// state store failures are. A nil Applied means nothing was recorded.
func (a *Aggregator) Poll(ctx context.Context, now time.Time) (*Applied, error) {
	if len(a.sources) == 0 {
		return nil, nil
	}
	st, err := a.store.Load()
	if err != nil {
		return nil, err
	}

	var since time.Time
	if st.LastCheckin != nil {
		since = *st.LastCheckin
	}

	var best *Applied
	for _, src := range a.sources {
		if ctx.Err() != nil {
			break
		}
		ts := a.pollSource(ctx, src, since, now)
		if ts == nil {
			continue
		}
		at := *ts
		if at.After(now) {
			at = now
		}
		if st.LastCheckin != nil && !at.After(*st.LastCheckin) {
			continue
		}
		if best == nil || at.After(best.At) {
			best = &Applied{At: at, Source: src.Name()}
		}
	}
	if best == nil {
		return nil, nil
	}

	updated, err := a.store.RecordCheckin(ctx, best.At, best.Source)
	if err != nil {
		return nil, err
	}
	a.recorder.SetLastCheckin(*updated.LastCheckin)
	a.logger.Info("Automatic check-in recorded",
		logfields.Source(best.Source),
		logfields.Timestamp("last_checkin", updated.LastCheckin))
	return best, nil
}

func (a *Aggregator) pollSource(ctx context.Context, src Source, since, now time.Time) *time.Time {
	name := src.Name()
	log := a.logger.With(logfields.Source(name))

	if until, ok := a.backedOff(name, now); ok {
		log.Debug("Source backed off after rate limiting", slog.Time("until", until))
		return nil
	}

	ts, err := src.PollNewActivity(ctx, since)
	if err != nil && ProviderKindOf(err) == ProviderAuthExpired {
		if refresher, ok := src.(TokenRefresher); ok {
			log.Info("Activity source credentials expired, refreshing")
			if rerr := refresher.RefreshToken(ctx); rerr != nil {
				log.Warn("Token refresh failed", logfields.Error(rerr))
			} else {
				ts, err = src.PollNewActivity(ctx, since)
			}
		}
	}
	a.recorder.IncProviderPoll(name, metrics.Result(err))

	if err == nil {
		a.clearBackoff(name)
		return ts
	}

	switch ProviderKindOf(err) {
	case ProviderAuthExpired:
		if a.authFailureCountsAsCheckin {
			log.Warn("Activity source rejected credentials; counting as check-in", logfields.Error(err))
			at := now
			return &at
		}
		log.Error("Activity source rejected credentials; run activity-auth to re-authorize", logfields.Error(err))
	case ProviderRateLimited:
		until := a.recordRateLimit(name, now, RetryAfter(err))
		log.Warn("Activity source rate limited", slog.Time("retry_at", until), logfields.Error(err))
	default:
		if isContextErr(err) && ctx.Err() != nil {
			return nil
		}
		log.Warn("Activity source unavailable", logfields.Error(err))
	}
	return nil
}

func (a *Aggregator) backedOff(name string, now time.Time) (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.backoff[name]
	if !ok || !now.Before(b.until) {
		return time.Time{}, false
	}
	return b.until, true
}

func (a *Aggregator) recordRateLimit(name string, now time.Time, retryAfter time.Duration) time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.backoff[name]
	if !ok {
		b = &backoffState{}
		a.backoff[name] = b
	}
	b.failures++
	wait := a.backoffPolicy.Delay(b.failures)
	if retryAfter > wait {
		wait = retryAfter
	}
	b.until = now.Add(wait)
	return b.until
}

func (a *Aggregator) clearBackoff(name string) {
	a.mu.Lock()
	delete(a.backoff, name)
	a.mu.Unlock()
}
