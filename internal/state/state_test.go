package state

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), opts...)
	require.NoError(t, err)
	return s
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	s := newTestStore(t)

	st, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), st)
	assert.Nil(t, st.LastCheckin)
	assert.Zero(t, st.CheckinRequestCount)
}

func TestSaveLoadRoundTripIsExact(t *testing.T) {
	s := newTestStore(t)
	checkin := ts("2024-05-01T10:11:12.123456789Z")
	request := ts("2024-05-09T00:00:00Z")

	in := State{
		LastCheckin:         &checkin,
		LastCheckinSource:   "manual",
		LastCheckinRequest:  &request,
		CheckinRequestCount: 2,
	}
	require.NoError(t, s.Save(t.Context(), in))

	out, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, out.LastCheckin)
	assert.True(t, checkin.Equal(*out.LastCheckin))
	assert.Equal(t, checkin.UnixNano(), out.LastCheckin.UnixNano())
	assert.True(t, request.Equal(*out.LastCheckinRequest))
	assert.Nil(t, out.LastSignalFired)
	assert.Equal(t, uint64(2), out.CheckinRequestCount)
	assert.Equal(t, CurrentVersion, out.Version)
}

func TestStateFileFormat(t *testing.T) {
	s := newTestStore(t)
	_, err := s.RecordCheckin(t.Context(), ts("2024-01-02T03:04:05Z"), "manual")
	require.NoError(t, err)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "2024-01-02T03:04:05Z", doc["last_checkin"])
	assert.Contains(t, doc, "last_signal_fired")
	assert.Nil(t, doc["last_signal_fired"])
	assert.InDelta(t, 0, doc["checkin_request_count"], 0)
}

func TestRecordCheckinResetsCount(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	base := ts("2024-01-01T00:00:00Z")

	_, err := s.RecordCheckin(ctx, base, "manual")
	require.NoError(t, err)
	_, err = s.RecordCheckinRequest(ctx, base.Add(8*24*time.Hour))
	require.NoError(t, err)
	st, err := s.RecordCheckinRequest(ctx, base.Add(9*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), st.CheckinRequestCount)

	st, err = s.RecordCheckin(ctx, base.Add(10*24*time.Hour), "manual")
	require.NoError(t, err)
	assert.Zero(t, st.CheckinRequestCount)
	assert.True(t, st.LastCheckin.Equal(base.Add(10*24*time.Hour)))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, st.CheckinRequestCount, loaded.CheckinRequestCount)
}

func TestTimestampsNeverMoveBackwards(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	newer := ts("2024-03-01T00:00:00Z")
	older := ts("2024-02-01T00:00:00Z")

	_, err := s.RecordCheckin(ctx, newer, "manual")
	require.NoError(t, err)
	st, err := s.RecordCheckin(ctx, older, "whoop")
	require.NoError(t, err)
	assert.True(t, st.LastCheckin.Equal(newer))

	_, err = s.RecordSignalFired(ctx, newer.Add(time.Hour), "email-0")
	require.NoError(t, err)
	st, err = s.RecordSignalFired(ctx, newer, "email-1")
	require.NoError(t, err)
	assert.True(t, st.LastSignalFired.Equal(newer.Add(time.Hour)))
	assert.Equal(t, "email-1", st.LastSignalChannel)
}

func TestClearSignalAttempt(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	checkin := ts("2024-03-01T00:00:00Z")

	_, err := s.RecordCheckin(ctx, checkin, "manual")
	require.NoError(t, err)
	st, err := s.RecordSignalAttempt(ctx, checkin.Add(15*24*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, st.EpisodeSignalAttempt())

	_, err = s.ClearSignalAttempt(ctx)
	require.NoError(t, err)

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded.LastSignalAttempt)
	assert.Nil(t, loaded.EpisodeSignalAttempt())
	assert.True(t, loaded.LastCheckin.Equal(checkin))
}

func TestUpdateErrorWritesNothing(t *testing.T) {
	s := newTestStore(t)
	boom := stderrors.New("boom")

	_, err := s.Update(t.Context(), func(st *State) error {
		st.CheckinRequestCount = 99
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, statErr := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestInterruptedWriteKeepsPreviousState(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	first := ts("2024-01-01T00:00:00Z")
	_, err := s.RecordCheckin(ctx, first, "manual")
	require.NoError(t, err)

	crash := stderrors.New("simulated crash")
	s.beforeRename = func(tmpPath string) error {
		// leave a truncated temp file behind, as a crash would
		require.NoError(t, os.WriteFile(tmpPath, []byte(`{"last_checkin": "2024-`), 0o600))
		return crash
	}
	_, err = s.RecordCheckin(ctx, first.Add(48*time.Hour), "manual")
	require.ErrorIs(t, err, crash)
	assert.True(t, errors.HasCategory(err, errors.CategoryState))

	s.beforeRename = nil
	st, err := s.Load()
	require.NoError(t, err)
	assert.True(t, st.LastCheckin.Equal(first))

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(s.Path()), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestStrayTempFileIsIgnored(t *testing.T) {
	s := newTestStore(t)
	first := ts("2024-01-01T00:00:00Z")
	_, err := s.RecordCheckin(t.Context(), first, "manual")
	require.NoError(t, err)

	stray := filepath.Join(filepath.Dir(s.Path()), ".state.json.123.tmp")
	require.NoError(t, os.WriteFile(stray, []byte("{garbage"), 0o600))

	st, err := s.Load()
	require.NoError(t, err)
	assert.True(t, st.LastCheckin.Equal(first))
}

func TestCorruptStateFileIsStateError(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("not json"), 0o600))

	_, err := s.Load()
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryState))
}

func TestLockContentionFailsFast(t *testing.T) {
	s := newTestStore(t, WithLockTimeout(100*time.Millisecond))

	other := flock.New(s.lockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = other.Unlock() }()

	start := time.Now()
	_, err = s.RecordCheckin(t.Context(), time.Now(), "manual")
	require.ErrorIs(t, err, ErrContention)
	assert.Less(t, time.Since(start), 2*time.Second)

	classified, ok := errors.AsClassified(err)
	require.True(t, ok)
	assert.True(t, classified.CanRetry())
}

func TestLockCancelledContext(t *testing.T) {
	s := newTestStore(t)
	other := flock.New(s.lockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = other.Unlock() }()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = s.RecordCheckinRequest(ctx, time.Now())
	require.ErrorIs(t, err, ErrContention)
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	s := newTestStore(t, WithLockTimeout(10*time.Second))
	base := ts("2024-01-01T00:00:00Z")

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RecordCheckinRequest(context.Background(), base.Add(time.Duration(i)*time.Minute))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(20), st.CheckinRequestCount)
	assert.True(t, st.LastCheckinRequest.Equal(base.Add(19*time.Minute)))
}

func TestEpisodeHelpers(t *testing.T) {
	checkin := ts("2024-01-10T00:00:00Z")
	before := checkin.Add(-time.Hour)
	after := checkin.Add(time.Hour)

	tests := []struct {
		name          string
		st            State
		fired         bool
		requestInEp   bool
		pendingSignal bool
	}{
		{name: "empty", st: Default()},
		{name: "fired before checkin", st: State{LastCheckin: &checkin, LastSignalFired: &before}},
		{name: "fired after checkin", st: State{LastCheckin: &checkin, LastSignalFired: &after}, fired: true},
		{name: "fired at checkin", st: State{LastCheckin: &checkin, LastSignalFired: &checkin}, fired: true},
		{name: "fired never checked in", st: State{LastSignalFired: &after}, fired: true},
		{name: "request previous episode", st: State{LastCheckin: &checkin, LastCheckinRequest: &before}},
		{name: "request this episode", st: State{LastCheckin: &checkin, LastCheckinRequest: &after}, requestInEp: true},
		{name: "attempt without delivery", st: State{LastCheckin: &checkin, LastSignalAttempt: &after}, pendingSignal: true},
		{name: "attempt delivered", st: State{LastCheckin: &checkin, LastSignalAttempt: &after, LastSignalFired: &after}, fired: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fired, tt.st.SignalFiredThisEpisode())
			assert.Equal(t, tt.requestInEp, tt.st.EpisodeCheckinRequest() != nil)
			assert.Equal(t, tt.pendingSignal, tt.st.EpisodeSignalAttempt() != nil)
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	checkin := ts("2024-01-10T00:00:00Z")
	st := State{LastCheckin: &checkin}
	c := st.Clone()
	*c.LastCheckin = checkin.Add(time.Hour)
	assert.True(t, st.LastCheckin.Equal(checkin))
}

func TestElapsed(t *testing.T) {
	_, ok := Default().Elapsed(time.Now())
	assert.False(t, ok)

	checkin := ts("2024-01-10T00:00:00Z")
	elapsed, ok := State{LastCheckin: &checkin}.Elapsed(checkin.Add(20 * 24 * time.Hour))
	require.True(t, ok)
	assert.Equal(t, 20*24*time.Hour, elapsed)
}
