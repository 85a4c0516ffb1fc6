package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultPolicy verifies the baseline default values.
func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, BackoffLinear, p.Mode)
	assert.Equal(t, time.Second, p.Initial)
	assert.Equal(t, 30*time.Second, p.Max)
	assert.Equal(t, 2, p.MaxRetries)
}

// TestNewPolicyOverrides checks override precedence and clamping when initial > max.
func TestNewPolicyOverrides(t *testing.T) {
	p := NewPolicy(BackoffFixed, 5*time.Second, 2*time.Second, 5)
	assert.Equal(t, 2*time.Second, p.Initial)
	assert.Equal(t, 2*time.Second, p.Max)
	assert.Equal(t, BackoffFixed, p.Mode)
	assert.Equal(t, 5, p.MaxRetries)
}

// TestDelayModes ensures fixed, linear, exponential behave and respect cap.
func TestDelayModes(t *testing.T) {
	fixed := NewPolicy(BackoffFixed, 100*time.Millisecond, 500*time.Millisecond, 3)
	for i := 1; i <= 3; i++ {
		assert.Equal(t, 100*time.Millisecond, fixed.Delay(i))
	}

	linear := NewPolicy(BackoffLinear, 100*time.Millisecond, 250*time.Millisecond, 5)
	cases := []struct {
		attempt int
		want    time.Duration
	}{{1, 100 * time.Millisecond}, {2, 200 * time.Millisecond}, {3, 250 * time.Millisecond}, {4, 250 * time.Millisecond}}
	for _, c := range cases {
		assert.Equal(t, c.want, linear.Delay(c.attempt), "linear attempt %d", c.attempt)
	}

	exp := NewPolicy(BackoffExponential, 5*time.Minute, 6*time.Hour, 5)
	expCases := []struct {
		attempt int
		want    time.Duration
	}{{1, 5 * time.Minute}, {2, 10 * time.Minute}, {3, 20 * time.Minute}, {8, 6 * time.Hour}, {64, 6 * time.Hour}}
	for _, c := range expCases {
		assert.Equal(t, c.want, exp.Delay(c.attempt), "exp attempt %d", c.attempt)
	}
}

// TestDelayEdgeCases ensures non-positive attempts yield zero.
func TestDelayEdgeCases(t *testing.T) {
	p := NewPolicy(BackoffLinear, 10*time.Millisecond, 20*time.Millisecond, 1)
	assert.Zero(t, p.Delay(0))
	assert.Zero(t, p.Delay(-1))
}

func TestValidate(t *testing.T) {
	require.Error(t, Policy{Mode: BackoffLinear, Initial: 0, Max: time.Second}.Validate())
	require.Error(t, Policy{Mode: BackoffLinear, Initial: time.Second, Max: 0}.Validate())
	require.Error(t, Policy{Mode: BackoffLinear, Initial: time.Second, Max: 2 * time.Second, MaxRetries: -1}.Validate())
	require.NoError(t, Policy{Mode: BackoffLinear, Initial: time.Second, Max: 2 * time.Second}.Validate())
}

func TestUnknownModeFallsBack(t *testing.T) {
	p := NewPolicy("weird", 250*time.Millisecond, 500*time.Millisecond, 1)
	assert.Equal(t, BackoffLinear, p.Mode)
}

func TestDo(t *testing.T) {
	p := NewPolicy(BackoffFixed, time.Millisecond, time.Millisecond, 3)

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := p.Do(t.Context(), nil, func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops at max retries", func(t *testing.T) {
		calls := 0
		err := p.Do(t.Context(), nil, func() error {
			calls++
			return errors.New("always")
		})
		require.EqualError(t, err, "always")
		assert.Equal(t, 4, calls)
	})

	t.Run("non-retryable stops immediately", func(t *testing.T) {
		calls := 0
		permanent := errors.New("permanent")
		err := p.Do(t.Context(), func(err error) bool { return !errors.Is(err, permanent) }, func() error {
			calls++
			return permanent
		})
		require.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops waiting", func(t *testing.T) {
		slow := NewPolicy(BackoffFixed, time.Hour, time.Hour, 3)
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		calls := 0
		err := slow.Do(ctx, nil, func() error {
			calls++
			return errors.New("fail")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}
