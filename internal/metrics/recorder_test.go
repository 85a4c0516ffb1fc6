package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncTick("NORMAL")
	r.IncDispatchOutcome("reminder", "delivered")
	r.ObserveChannelAttempt("email-0", "send", time.Millisecond, ResultSuccess)
	r.IncProviderPoll("whoop", ResultFailure)
	r.SetLastCheckin(time.Now())
	r.IncStateWriteFailure()
	r.IncTemplateFailure()
}

func TestResult(t *testing.T) {
	assert.Equal(t, ResultSuccess, Result(nil))
	assert.Equal(t, ResultFailure, Result(errors.New("x")))
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.IncTick("ESCALATED")
	r.IncTick("ESCALATED")
	r.IncDispatchOutcome("signal", "delivered")
	r.ObserveChannelAttempt("email-0", "health_check", 10*time.Millisecond, ResultFailure)
	r.IncStateWriteFailure()
	r.SetLastCheckin(time.Unix(1700000000, 0))

	assert.InDelta(t, 2, testutil.ToFloat64(r.ticks.WithLabelValues("ESCALATED")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.dispatchOutcomes.WithLabelValues("signal", "delivered")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.channelAttempts.WithLabelValues("email-0", "health_check", "failure")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.stateFailures), 0)
	assert.InDelta(t, 1700000000, testutil.ToFloat64(r.lastCheckin), 0)
}

func TestPrometheusRecorderNilSafe(t *testing.T) {
	var r *PrometheusRecorder
	r.IncTick("NORMAL")
	r.IncTemplateFailure()
	r.SetLastCheckin(time.Now())
}

func TestHTTPHandler(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewPrometheusRecorder(reg)
	r.IncTick("NORMAL")

	srv := httptest.NewServer(HTTPHandler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `lastsignal_ticks_total{phase="NORMAL"} 1`)
}
