package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/PulfordJ/lastsignal/internal/logfields"
)

// Scheduler wraps gocron for the periodic escalation tick.
type Scheduler struct {
	scheduler gocron.Scheduler
}

// NewScheduler creates a new scheduler instance. A positive stopTimeout
// bounds how long Stop waits for a running tick; zero keeps gocron's default.
func NewScheduler(stopTimeout time.Duration) (*Scheduler, error) {
	var opts []gocron.SchedulerOption
	if stopTimeout > 0 {
		opts = append(opts, gocron.WithStopTimeout(stopTimeout))
	}
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for a running tick to finish.
func (s *Scheduler) Stop() error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// ScheduleTick runs fn every interval, starting immediately. A run that is
// still going when the next one is due pushes the next one back instead of
// overlapping it.
func (s *Scheduler) ScheduleTick(ctx context.Context, interval time.Duration, fn func(context.Context)) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				return
			}
			// Shutdown must not interrupt a dispatch half way.
			fn(context.WithoutCancel(ctx))
		}),
		gocron.WithName("escalation-tick"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create tick job: %w", err)
	}
	slog.Debug("Scheduled escalation tick", slog.String("interval", interval.String()), slog.String("job_id", job.ID().String()))
	return job.ID().String(), nil
}

// logNextRun is used at startup so operators can see when the loop will next wake.
func (s *Scheduler) logNextRun() {
	for _, job := range s.scheduler.Jobs() {
		next, err := job.NextRun()
		if err != nil {
			slog.Debug("No next run scheduled", slog.String("job", job.Name()), logfields.Error(err))
			continue
		}
		slog.Debug("Next run", slog.String("job", job.Name()), slog.Time("at", next))
	}
}
