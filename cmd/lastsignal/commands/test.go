package commands

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PulfordJ/lastsignal/internal/channel"
	"github.com/PulfordJ/lastsignal/internal/daemon"
	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
)

// healthCheckConcurrency bounds simultaneous channel health checks.
const healthCheckConcurrency = 4

// TestCmd implements the 'test' command. Every channel is checked even when
// an earlier one fails.
type TestCmd struct{}

type healthResult struct {
	Channel  string
	Role     string
	Err      error
	Duration time.Duration
}

func (t *TestCmd) Run(g *Global, root *CLI) error {
	c, err := root.build(daemon.BuildOptions{History: daemon.HistoryNone})
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	results := checkChannels(context.Background(), c.ReminderChannels, c.SignalChannels, c.Config.App.ChannelTimeout.Std())
	return reportHealth(newPrinter(g.out()), results)
}

// checkChannels health checks every channel with bounded concurrency and
// returns results in configuration order.
func checkChannels(ctx context.Context, reminder, signal []channel.Channel, timeout time.Duration) []healthResult {
	type target struct {
		ch   channel.Channel
		role string
	}
	targets := make([]target, 0, len(reminder)+len(signal))
	for _, ch := range reminder {
		targets = append(targets, target{ch, "reminder"})
	}
	for _, ch := range signal {
		targets = append(targets, target{ch, "last signal"})
	}

	results := make([]healthResult, len(targets))
	var eg errgroup.Group
	eg.SetLimit(healthCheckConcurrency)
	for i, tg := range targets {
		eg.Go(func() error {
			start := time.Now()
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			err := tg.ch.HealthCheck(checkCtx)
			if err != nil {
				err = channel.Classify(tg.ch.Name(), err)
			}
			results[i] = healthResult{Channel: tg.ch.Name(), Role: tg.role, Err: err, Duration: time.Since(start)}
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

func reportHealth(p printer, results []healthResult) error {
	failed := 0
	for _, r := range results {
		status := p.render(passStyle, "PASS")
		detail := r.Duration.Round(time.Millisecond).String()
		if r.Err != nil {
			failed++
			status = p.render(failStyle, "FAIL")
			detail = fmt.Sprintf("%s: %v", channel.KindOf(r.Err), r.Err)
		}
		fmt.Fprintf(p.w, "%s  %-24s %s\n", status, r.Channel+" ("+r.Role+")", p.render(dimStyle, detail))
	}
	fmt.Fprintf(p.w, "\n%d of %d channels healthy\n", len(results)-failed, len(results))
	if failed > 0 {
		return errors.ChannelError(fmt.Sprintf("%d of %d channels failed their health check", failed, len(results))).
			WithContext("failed", failed).
			Build()
	}
	return nil
}
