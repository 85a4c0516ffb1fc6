package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "lastsignal"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	ticks            *prom.CounterVec
	dispatchOutcomes *prom.CounterVec
	channelDuration  *prom.HistogramVec
	channelAttempts  *prom.CounterVec
	providerPolls    *prom.CounterVec
	lastCheckin      prom.Gauge
	stateFailures    prom.Counter
	templateFailures prom.Counter
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.ticks = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Escalation engine ticks by derived phase",
		}, []string{"phase"})
		pr.dispatchOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_outcomes_total",
			Help:      "Dispatcher outcomes by message kind (reminder|signal) and outcome",
		}, []string{"kind", "outcome"})
		pr.channelDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "channel_attempt_duration_seconds",
			Help:      "Duration of channel health checks and sends",
			Buckets:   prom.DefBuckets,
		}, []string{"channel", "stage"})
		pr.channelAttempts = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "channel_attempts_total",
			Help:      "Channel health checks and sends by result",
		}, []string{"channel", "stage", "result"})
		pr.providerPolls = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "provider_polls_total",
			Help:      "Automatic check-in source polls by result",
		}, []string{"source", "result"})
		pr.lastCheckin = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "last_checkin_timestamp_seconds",
			Help:      "Unix time of the last recorded check-in",
		})
		pr.stateFailures = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "state_write_failures_total",
			Help:      "Failed durable state writes",
		})
		pr.templateFailures = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "template_failures_total",
			Help:      "Emergency message compositions that failed",
		})
		reg.MustRegister(pr.ticks, pr.dispatchOutcomes, pr.channelDuration, pr.channelAttempts,
			pr.providerPolls, pr.lastCheckin, pr.stateFailures, pr.templateFailures)
	})
	return pr
}

func (p *PrometheusRecorder) IncTick(phase string) {
	if p == nil || p.ticks == nil {
		return
	}
	p.ticks.WithLabelValues(phase).Inc()
}

func (p *PrometheusRecorder) IncDispatchOutcome(kind, outcome string) {
	if p == nil || p.dispatchOutcomes == nil {
		return
	}
	p.dispatchOutcomes.WithLabelValues(kind, outcome).Inc()
}

func (p *PrometheusRecorder) ObserveChannelAttempt(channel, stage string, d time.Duration, result ResultLabel) {
	if p == nil || p.channelDuration == nil {
		return
	}
	p.channelDuration.WithLabelValues(channel, stage).Observe(d.Seconds())
	p.channelAttempts.WithLabelValues(channel, stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncProviderPoll(source string, result ResultLabel) {
	if p == nil || p.providerPolls == nil {
		return
	}
	p.providerPolls.WithLabelValues(source, string(result)).Inc()
}

func (p *PrometheusRecorder) SetLastCheckin(t time.Time) {
	if p == nil || p.lastCheckin == nil {
		return
	}
	p.lastCheckin.Set(float64(t.Unix()))
}

func (p *PrometheusRecorder) IncStateWriteFailure() {
	if p == nil || p.stateFailures == nil {
		return
	}
	p.stateFailures.Inc()
}

func (p *PrometheusRecorder) IncTemplateFailure() {
	if p == nil || p.templateFailures == nil {
		return
	}
	p.templateFailures.Inc()
}
