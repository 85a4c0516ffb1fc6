// Package daemon runs the escalation loop: a periodic tick that polls the
// automatic check-in sources and then lets the escalation engine act.
package daemon

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/PulfordJ/lastsignal/internal/checkin"
	"github.com/PulfordJ/lastsignal/internal/escalation"
	"github.com/PulfordJ/lastsignal/internal/eventstore"
	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
	"github.com/PulfordJ/lastsignal/internal/logfields"
	"github.com/PulfordJ/lastsignal/internal/state"
)

// SourceInitial marks the check-in the daemon enrolls on its first start.
const SourceInitial = "initial"

// Status represents the current state of the daemon
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// StateStore is what the daemon reads and enrolls into.
type StateStore interface {
	Load() (state.State, error)
	RecordCheckin(ctx context.Context, at time.Time, source string) (state.State, error)
}

// Poller collects automatic check-ins.
type Poller interface {
	Poll(ctx context.Context, now time.Time) (*checkin.Applied, error)
}

// Ticker is the escalation engine.
type Ticker interface {
	Tick(ctx context.Context, now time.Time) (escalation.Report, error)
	CheckTemplate(st state.State, now time.Time) error
}

// Invalidator drops a cached template.
type Invalidator interface {
	Path() string
	Invalidate()
}

// Options wires a Daemon.
type Options struct {
	DataDir       string
	CheckInterval time.Duration
	// StopTimeout is how long the scheduler waits for a running tick on
	// shutdown. Run waits for that tick regardless.
	StopTimeout time.Duration
	// MetricsListen enables the /metrics and /healthz listener.
	MetricsListen string

	Store      StateStore
	Aggregator Poller
	Engine     Ticker
	// Template is watched for changes when set.
	Template Invalidator
	Events   escalation.EventSink
	Registry *prom.Registry

	Logger *slog.Logger
	Now    func() time.Time
}

// Options returns daemon options for the built components.
func (c *Components) Options() Options {
	return Options{
		DataDir:       c.Config.App.DataDirectory,
		CheckInterval: c.Config.App.CheckInterval.Std(),
		StopTimeout:   c.worstCaseDispatch(),
		MetricsListen: c.Config.App.MetricsListen,
		Store:         c.Store,
		Aggregator:    c.Aggregator,
		Engine:        c.Engine,
		Template:      c.Loader,
		Events:        c.Bus,
		Registry:      c.Registry,
	}
}

type tickResult struct {
	at       time.Time
	duration time.Duration
	report   escalation.Report
	err      error
}

// Daemon owns the tick loop.
type Daemon struct {
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
	startTime time.Time

	status atomic.Value // Status

	mu   sync.Mutex
	last *tickResult

	// tickMu is held for a whole tick. Shutdown takes it to wait out a
	// dispatch and sets stopped so no tick starts afterwards.
	tickMu  sync.Mutex
	stopped bool

	// ticked is signalled after every tick; tests wait on it.
	ticked chan struct{}
}

// New creates a Daemon. It does nothing until Run.
func New(opts Options) (*Daemon, error) {
	if opts.Store == nil || opts.Engine == nil {
		return nil, errors.InternalError("daemon requires a state store and an engine").Build()
	}
	if opts.CheckInterval <= 0 {
		return nil, errors.ConfigError("check interval must be positive").
			WithContext("check_interval", opts.CheckInterval.String()).
			Build()
	}
	d := &Daemon{
		opts:   opts,
		logger: opts.Logger,
		now:    opts.Now,
		ticked: make(chan struct{}, 1),
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.now == nil {
		d.now = time.Now
	}
	d.status.Store(StatusStopped)
	return d, nil
}

// GetStatus returns the current daemon status.
func (d *Daemon) GetStatus() Status {
	s, _ := d.status.Load().(Status)
	return s
}

func (d *Daemon) setStatus(s Status) { d.status.Store(s) }

// Run holds the single-instance lock, enrolls the first check-in when none
// exists and ticks every CheckInterval until ctx is done. A tick in progress
// when ctx ends is allowed to finish.
func (d *Daemon) Run(ctx context.Context) error {
	lockPath := filepath.Join(d.opts.DataDir, LockFileName)
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return errors.DaemonError("failed to acquire daemon lock").
			WithCause(err).
			WithContext("path", lockPath).
			Build()
	}
	if !locked {
		return errors.DaemonError("another lastsignal daemon is already running").
			WithContext("path", lockPath).
			Build()
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			d.logger.Warn("Failed to release daemon lock", logfields.Path(lockPath), logfields.Error(err))
		}
	}()

	d.setStatus(StatusStarting)
	d.startTime = d.now()
	if err := d.startup(ctx); err != nil {
		d.setStatus(StatusError)
		return err
	}

	sched, err := NewScheduler(d.opts.StopTimeout)
	if err != nil {
		d.setStatus(StatusError)
		return errors.DaemonError("failed to create scheduler").WithCause(err).Build()
	}
	if _, err := sched.ScheduleTick(ctx, d.opts.CheckInterval, d.tick); err != nil {
		d.setStatus(StatusError)
		return errors.DaemonError("failed to schedule tick").WithCause(err).Build()
	}

	if d.opts.MetricsListen != "" {
		srv, err := d.newHTTPServer(d.opts.MetricsListen)
		if err != nil {
			d.setStatus(StatusError)
			_ = sched.Stop()
			return err
		}
		go srv.serve()
		defer srv.shutdown()
	}

	if d.opts.Template != nil {
		if w, err := NewTemplateWatcher(d.opts.Template.Path(), d.templateChanged); err != nil {
			d.logger.Warn("Template watching disabled", logfields.Error(err))
		} else if err := w.Start(ctx); err != nil {
			d.logger.Warn("Template watching disabled", logfields.Error(err))
			_ = w.Stop()
		} else {
			defer func() { _ = w.Stop() }()
		}
	}

	sched.Start()
	sched.logNextRun()
	d.setStatus(StatusRunning)
	d.emit(ctx, eventstore.Event{Kind: eventstore.KindDaemonStarted, Detail: "interval " + d.opts.CheckInterval.String()})
	d.logger.Info("Daemon running", slog.String("interval", d.opts.CheckInterval.String()))

	<-ctx.Done()

	d.setStatus(StatusStopping)
	d.logger.Info("Shutting down; waiting for the current tick")
	if err := sched.Stop(); err != nil {
		d.logger.Warn("Scheduler did not stop cleanly; waiting for the running tick", logfields.Error(err))
	}
	d.tickMu.Lock()
	d.stopped = true
	d.tickMu.Unlock()
	d.emit(context.WithoutCancel(ctx), eventstore.Event{Kind: eventstore.KindDaemonStopped})
	d.setStatus(StatusStopped)
	d.logger.Info("Daemon stopped")
	return nil
}

// startup enrolls the first check-in, warns about an already delivered
// emergency message and renders the template once. Only a state failure
// stops the daemon from starting.
func (d *Daemon) startup(ctx context.Context) error {
	now := d.now()
	st, err := d.opts.Store.Load()
	if err != nil {
		return err
	}

	if st.LastCheckin == nil {
		st, err = d.opts.Store.RecordCheckin(ctx, now, SourceInitial)
		if err != nil {
			return err
		}
		d.logger.Info("No check-in on record; counting daemon start as the first one",
			logfields.Timestamp("last_checkin", st.LastCheckin))
		d.emit(ctx, eventstore.Event{Kind: eventstore.KindCheckin, Timestamp: now, Detail: SourceInitial})
	}

	if attempt := st.EpisodeSignalAttempt(); attempt != nil && !st.SignalFiredThisEpisode() {
		d.logger.Error("LAST SIGNAL DISPATCH WAS INTERRUPTED; it may have been delivered and is not sent again until the next check-in",
			slog.String("severity", "critical"),
			logfields.Timestamp("last_signal_attempt", attempt))
	}

	if st.SignalFiredThisEpisode() {
		d.logger.Warn("The emergency message was already delivered for this absence; nothing more is sent until the next check-in",
			logfields.Timestamp("last_signal_fired", st.LastSignalFired),
			logfields.Channel(st.LastSignalChannel))
	}

	if err := d.opts.Engine.CheckTemplate(st, now); err != nil {
		d.logger.Error("EMERGENCY MESSAGE TEMPLATE IS BROKEN; fix it before it is needed",
			slog.String("severity", "critical"), logfields.Error(err))
	}
	return nil
}

// tick is one cycle: poll the sources, then run the engine. Errors are
// logged and left for the next tick.
func (d *Daemon) tick(ctx context.Context) {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()
	if d.stopped {
		return
	}

	start := time.Now()
	now := d.now()

	if d.opts.Aggregator != nil {
		applied, err := d.opts.Aggregator.Poll(ctx, now)
		if err != nil {
			d.logger.Error("Failed to record automatic check-in", logfields.Error(err))
		} else if applied != nil {
			d.emit(ctx, eventstore.Event{Kind: eventstore.KindCheckin, Timestamp: applied.At, Detail: applied.Source})
		}
	}

	report, err := d.opts.Engine.Tick(ctx, now)
	if err != nil {
		d.logger.Error("Tick failed; retrying next tick",
			logfields.Phase(string(report.Phase)),
			logfields.Action(string(report.Action)),
			slog.String("category", string(errors.GetCategory(err))),
			logfields.Error(err))
	} else {
		d.logger.Debug("Tick complete", logfields.Phase(string(report.Phase)), logfields.Action(string(report.Action)))
	}

	d.mu.Lock()
	d.last = &tickResult{at: now, duration: time.Since(start), report: report, err: err}
	d.mu.Unlock()

	select {
	case d.ticked <- struct{}{}:
	default:
	}
}

func (d *Daemon) lastTick() *tickResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

func (d *Daemon) templateChanged() {
	d.opts.Template.Invalidate()
	d.logger.Info("Message template changed", logfields.Path(d.opts.Template.Path()))
	st, err := d.opts.Store.Load()
	if err != nil {
		return
	}
	if err := d.opts.Engine.CheckTemplate(st, d.now()); err != nil {
		d.logger.Error("EMERGENCY MESSAGE TEMPLATE IS BROKEN; fix it before it is needed",
			slog.String("severity", "critical"), logfields.Error(err))
	}
}

func (d *Daemon) emit(ctx context.Context, e eventstore.Event) {
	if d.opts.Events != nil {
		d.opts.Events.Emit(ctx, e)
	}
}
