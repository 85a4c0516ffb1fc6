package daemon

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/PulfordJ/lastsignal/internal/logfields"
	"github.com/PulfordJ/lastsignal/internal/version"
)

// HealthStatus represents the overall health of the daemon
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a single health check
type HealthCheck struct {
	Name        string        `json:"name"`
	Status      HealthStatus  `json:"status"`
	Message     string        `json:"message,omitempty"`
	Duration    time.Duration `json:"duration"`
	LastChecked time.Time     `json:"last_checked"`
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Version   string        `json:"version"`
	Phase     string        `json:"phase,omitempty"`
	Checks    []HealthCheck `json:"checks"`
}

// PerformHealthChecks reports on the loop and the state file.
func (d *Daemon) PerformHealthChecks() *HealthResponse {
	checks := []HealthCheck{d.checkDaemonHealth(), d.checkTickHealth(), d.checkStateHealth()}

	overall := HealthStatusHealthy
	for _, c := range checks {
		switch {
		case c.Status == HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case c.Status == HealthStatusDegraded && overall == HealthStatusHealthy:
			overall = HealthStatusDegraded
		}
	}

	now := d.now()
	resp := &HealthResponse{
		Status:    overall,
		Timestamp: now,
		Uptime:    now.Sub(d.startTime).Round(time.Second).String(),
		Version:   version.Version,
		Checks:    checks,
	}
	if last := d.lastTick(); last != nil {
		resp.Phase = string(last.report.Phase)
	}
	return resp
}

func (d *Daemon) checkDaemonHealth() HealthCheck {
	check := HealthCheck{Name: "daemon_status", LastChecked: d.now()}
	status := d.GetStatus()
	check.Message = "Watchdog " + string(status)
	switch status {
	case StatusRunning:
		check.Status = HealthStatusHealthy
	case StatusStarting, StatusStopping:
		check.Status = HealthStatusDegraded
	default:
		check.Status = HealthStatusUnhealthy
	}
	return check
}

// checkTickHealth is degraded when the last tick failed and unhealthy when
// no tick has completed for three intervals.
func (d *Daemon) checkTickHealth() HealthCheck {
	now := d.now()
	check := HealthCheck{Name: "escalation_tick", LastChecked: now}
	last := d.lastTick()
	switch {
	case last == nil:
		check.Status = HealthStatusDegraded
		check.Message = "No tick has completed yet"
	case now.Sub(last.at) > 3*d.opts.CheckInterval:
		check.Status = HealthStatusUnhealthy
		check.Message = fmt.Sprintf("Last tick completed %s ago", now.Sub(last.at).Round(time.Second))
	case last.err != nil:
		check.Status = HealthStatusDegraded
		check.Message = fmt.Sprintf("Last tick failed: %v", last.err)
	default:
		check.Status = HealthStatusHealthy
		check.Message = fmt.Sprintf("Last tick at %s: %s", last.at.Format(time.RFC3339), last.report.Action.Describe())
	}
	if last != nil {
		check.Duration = last.duration
	}
	return check
}

func (d *Daemon) checkStateHealth() HealthCheck {
	start := time.Now()
	check := HealthCheck{Name: "state_file", LastChecked: d.now()}
	st, err := d.opts.Store.Load()
	check.Duration = time.Since(start)
	if err != nil {
		check.Status = HealthStatusUnhealthy
		check.Message = err.Error()
		return check
	}
	check.Status = HealthStatusHealthy
	if st.LastCheckin != nil {
		check.Message = fmt.Sprintf("Last check-in %s", st.LastCheckin.Format(time.RFC3339))
	} else {
		check.Message = "No check-in recorded"
	}
	return check
}

// HealthHandler serves detailed health information
func (d *Daemon) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	health := d.PerformHealthChecks()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	if health.Status == HealthStatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if err := json.NewEncoder(w).Encode(health); err != nil {
		slog.Warn("Failed to encode health response", logfields.Error(err))
	}
}
