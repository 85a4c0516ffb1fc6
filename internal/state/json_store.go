package state

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
	"github.com/PulfordJ/lastsignal/internal/logfields"
)

const (
	// FileName is the state file name inside the data directory.
	FileName = "state.json"

	// DefaultLockTimeout bounds how long Update waits for a competing writer.
	DefaultLockTimeout = 2 * time.Second

	lockRetryDelay = 50 * time.Millisecond
)

// ErrContention is returned when another process holds the state lock. It is retryable.
var ErrContention = errors.StateError("state file is locked by another process").
	Immediate().
	Build()

// Store is the JSON file backed state store.
type Store struct {
	dir         string
	path        string
	lockPath    string
	lockTimeout time.Duration

	// beforeRename runs between writing the temp file and replacing the state file.
	beforeRename func(tmpPath string) error
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout overrides DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// NewStore creates the data directory if needed and returns a store rooted in it.
func NewStore(dataDir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, errors.StateError("failed to create data directory").
			WithCause(err).
			WithContext("data_dir", dataDir).
			Build()
	}

	path := filepath.Join(dataDir, FileName)
	s := &Store{
		dir:         dataDir,
		path:        path,
		lockPath:    path + ".lock",
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the state file path.
func (s *Store) Path() string { return s.path }

// Load reads the state file. A missing file yields Default() and no error.
func (s *Store) Load() (State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return State{}, errors.StateError("failed to read state file").
			WithCause(err).
			WithContext("path", s.path).
			Build()
	}

	st := Default()
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, errors.StateError("failed to decode state file").
			WithCause(err).
			WithContext("path", s.path).
			Build()
	}
	if st.Version == 0 {
		st.Version = CurrentVersion
	}
	return st, nil
}

// Save durably replaces the state file with st under the advisory lock.
func (s *Store) Save(ctx context.Context, st State) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return s.save(st)
}

// Update runs fn against the freshly loaded state while holding the lock and
// saves the result. Nothing is written when fn returns an error.
func (s *Store) Update(ctx context.Context, fn func(*State) error) (State, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return State{}, err
	}
	defer unlock()

	st, err := s.Load()
	if err != nil {
		return State{}, err
	}
	if err := fn(&st); err != nil {
		return State{}, err
	}
	if err := s.save(st); err != nil {
		return State{}, err
	}
	return st, nil
}

// RecordCheckin sets last_checkin (never moving it backwards) and resets the reminder count.
func (s *Store) RecordCheckin(ctx context.Context, at time.Time, source string) (State, error) {
	return s.Update(ctx, func(st *State) error {
		st.LastCheckin = later(st.LastCheckin, at)
		st.LastCheckinSource = source
		st.CheckinRequestCount = 0
		return nil
	})
}

// RecordCheckinRequest records a delivered reminder.
func (s *Store) RecordCheckinRequest(ctx context.Context, at time.Time) (State, error) {
	return s.Update(ctx, func(st *State) error {
		st.LastCheckinRequest = later(st.LastCheckinRequest, at)
		st.CheckinRequestCount++
		return nil
	})
}

// RecordSignalAttempt marks the start of an emergency dispatch.
func (s *Store) RecordSignalAttempt(ctx context.Context, at time.Time) (State, error) {
	return s.Update(ctx, func(st *State) error {
		st.LastSignalAttempt = later(st.LastSignalAttempt, at)
		return nil
	})
}

// ClearSignalAttempt removes the marker after a dispatch that delivered nothing.
func (s *Store) ClearSignalAttempt(ctx context.Context) (State, error) {
	return s.Update(ctx, func(st *State) error {
		st.LastSignalAttempt = nil
		return nil
	})
}

// RecordSignalFired records a delivered emergency message and the channel that carried it.
func (s *Store) RecordSignalFired(ctx context.Context, at time.Time, channel string) (State, error) {
	return s.Update(ctx, func(st *State) error {
		st.LastSignalFired = later(st.LastSignalFired, at)
		st.LastSignalChannel = channel
		return nil
	})
}

func (s *Store) lock(ctx context.Context) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	fl := flock.New(s.lockPath)
	locked, err := fl.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil && lockCtx.Err() == nil {
		return nil, errors.StateError("failed to acquire state lock").
			WithCause(err).
			WithContext("path", s.lockPath).
			Build()
	}
	if !locked {
		return nil, ErrContention.WithContext("path", s.lockPath)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			slog.Warn("Failed to release state lock", logfields.Path(s.lockPath), logfields.Error(err))
		}
	}, nil
}

// save writes st atomically: temp file, fsync, rename, directory fsync.
func (s *Store) save(st State) error {
	st.Version = CurrentVersion
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.StateError("failed to marshal state").WithCause(err).Build()
	}

	tmp, err := os.CreateTemp(s.dir, "."+FileName+".*.tmp")
	if err != nil {
		return s.writeErr("failed to create temporary state file", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return s.writeErr("failed to write temporary state file", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return s.writeErr("failed to sync temporary state file", err)
	}
	if err := tmp.Close(); err != nil {
		return s.writeErr("failed to close temporary state file", err)
	}
	if s.beforeRename != nil {
		if err := s.beforeRename(tmpPath); err != nil {
			return s.writeErr("interrupted before replacing state file", err)
		}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return s.writeErr("failed to replace state file", err)
	}
	committed = true

	if dir, err := os.Open(s.dir); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}
	return nil
}

func (s *Store) writeErr(msg string, cause error) error {
	return errors.StateError(msg).WithCause(cause).WithContext("path", s.path).Build()
}
