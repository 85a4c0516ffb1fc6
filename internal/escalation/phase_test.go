package escalation

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PulfordJ/lastsignal/internal/state"
)

const day = 24 * time.Hour

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func tp(t time.Time) *time.Time { return &t }

func stateAt(elapsed time.Duration) state.State {
	st := state.Default()
	st.LastCheckin = tp(now.Add(-elapsed))
	return st
}

func TestDerivePhaseBoundaries(t *testing.T) {
	th := Thresholds{DurationBetweenCheckins: 7 * day, MaxTimeSinceLastCheckin: 14 * day}

	tests := []struct {
		elapsed time.Duration
		want    Phase
	}{
		{0, PhaseNormal},
		{7*day - time.Second, PhaseNormal},
		{7 * day, PhaseAwaitingCheckin},
		{14*day - time.Second, PhaseAwaitingCheckin},
		{14 * day, PhaseEscalated},
		{20 * day, PhaseEscalated},
		{-time.Hour, PhaseNormal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DerivePhase(stateAt(tt.elapsed), th, now), "elapsed %s", tt.elapsed)
	}
}

func TestDerivePhaseProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		between := time.Duration(rng.Int63n(int64(30*day))) + time.Second
		maxLapse := between + time.Duration(rng.Int63n(int64(30*day)))
		elapsed := time.Duration(rng.Int63n(int64(90 * day)))
		th := Thresholds{DurationBetweenCheckins: between, MaxTimeSinceLastCheckin: maxLapse}

		var want Phase
		switch {
		case elapsed < between:
			want = PhaseNormal
		case elapsed < maxLapse:
			want = PhaseAwaitingCheckin
		default:
			want = PhaseEscalated
		}
		if got := DerivePhase(stateAt(elapsed), th, now); got != want {
			t.Fatalf("elapsed=%s between=%s max=%s: got %s want %s", elapsed, between, maxLapse, got, want)
		}
	}
}

func TestDerivePhaseWithoutCheckin(t *testing.T) {
	th := Thresholds{DurationBetweenCheckins: time.Hour, MaxTimeSinceLastCheckin: 2 * time.Hour}
	assert.Equal(t, PhaseAwaitingCheckin, DerivePhase(state.Default(), th, now))
}

func TestPlanFor(t *testing.T) {
	p := Policy{
		Thresholds:         Thresholds{DurationBetweenCheckins: 7 * day, MaxTimeSinceLastCheckin: 14 * day},
		ReminderRetryDelay: day,
	}

	t.Run("normal", func(t *testing.T) {
		assert.Equal(t, ActionNone, PlanFor(stateAt(day), p, now).Action)
	})

	t.Run("reminder due", func(t *testing.T) {
		plan := PlanFor(stateAt(8*day), p, now)
		assert.Equal(t, PhaseAwaitingCheckin, plan.Phase)
		assert.Equal(t, ActionReminder, plan.Action)
		assert.Nil(t, plan.LastAttempt)
	})

	t.Run("reminder recently sent", func(t *testing.T) {
		st := stateAt(8 * day)
		st.LastCheckinRequest = tp(now.Add(-time.Hour))
		plan := PlanFor(st, p, now)
		assert.Equal(t, ActionReminderDeferred, plan.Action)
		assert.Equal(t, now.Add(23*time.Hour), plan.NextEligible)
	})

	t.Run("reminder from previous period is ignored", func(t *testing.T) {
		st := stateAt(8 * day)
		st.LastCheckinRequest = tp(now.Add(-9 * day))
		assert.Equal(t, ActionReminder, PlanFor(st, p, now).Action)
	})

	t.Run("signal due", func(t *testing.T) {
		plan := PlanFor(stateAt(20*day), p, now)
		assert.Equal(t, PhaseEscalated, plan.Phase)
		assert.Equal(t, ActionSignal, plan.Action)
	})

	t.Run("signal already fired", func(t *testing.T) {
		st := stateAt(20 * day)
		st.LastSignalFired = tp(now.Add(-5 * day))
		assert.Equal(t, ActionSignalAlreadyFired, PlanFor(st, p, now).Action)
	})

	t.Run("signal from previous period does not hold back a new one", func(t *testing.T) {
		st := stateAt(15 * day)
		st.LastSignalFired = tp(st.LastCheckin.Add(-time.Hour))
		plan := PlanFor(st, p, now)
		assert.Equal(t, PhaseEscalated, plan.Phase)
		assert.Equal(t, ActionSignal, plan.Action)
		assert.Nil(t, plan.LastAttempt)
		assert.True(t, plan.NextEligible.IsZero())
	})

	t.Run("interrupted dispatch is not repeated", func(t *testing.T) {
		st := stateAt(20 * day)
		st.LastSignalAttempt = tp(now.Add(-time.Hour))
		plan := PlanFor(st, p, now)
		assert.Equal(t, ActionSignalUnconfirmed, plan.Action)
		require.NotNil(t, plan.LastAttempt)
		assert.True(t, plan.LastAttempt.Equal(now.Add(-time.Hour)))
	})

	t.Run("attempt from previous period is ignored", func(t *testing.T) {
		st := stateAt(20 * day)
		st.LastSignalAttempt = tp(now.Add(-30 * day))
		assert.Equal(t, ActionSignal, PlanFor(st, p, now).Action)
	})

	t.Run("fresh checkin after signal", func(t *testing.T) {
		st := stateAt(0)
		st.LastSignalFired = tp(now.Add(-time.Hour))
		plan := PlanFor(st, p, now)
		assert.Equal(t, PhaseNormal, plan.Phase)
		assert.Equal(t, ActionNone, plan.Action)
	})
}

func TestActionDescribe(t *testing.T) {
	assert.Equal(t, "last signal would be fired", ActionSignal.Describe())
	assert.Equal(t, "no action needed", ActionNone.Describe())
}
