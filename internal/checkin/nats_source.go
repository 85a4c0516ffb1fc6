package checkin

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
	"github.com/PulfordJ/lastsignal/internal/logfields"
)

// NATSSourceName names check-ins received over NATS.
const NATSSourceName = "nats"

// RemoteCheckin is the optional payload of a remote check-in message. An empty
// message checks in at the time it was received.
type RemoteCheckin struct {
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Note      string     `json:"note,omitempty"`
}

// NATSSource buffers the newest check-in published on a subject until the
// next poll.
type NATSSource struct {
	subject string
	sub     *nats.Subscription
	now     func() time.Time

	mu     sync.Mutex
	latest *time.Time
}

// NewNATSSource subscribes to subject on nc.
func NewNATSSource(nc *nats.Conn, subject string) (*NATSSource, error) {
	s := newNATSSource(subject)
	sub, err := nc.Subscribe(subject, s.handle)
	if err != nil {
		return nil, errors.NetworkError("failed to subscribe to remote check-ins").
			WithCause(err).
			WithContext("subject", subject).
			Build()
	}
	s.sub = sub
	slog.Info("Listening for remote check-ins", logfields.Subject(subject))
	return s, nil
}

func newNATSSource(subject string) *NATSSource {
	return &NATSSource{subject: subject, now: time.Now}
}

// Name implements Source.
func (s *NATSSource) Name() string { return NATSSourceName }

func (s *NATSSource) handle(msg *nats.Msg) {
	at := s.now().UTC()
	if len(msg.Data) > 0 {
		var payload RemoteCheckin
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			slog.Warn("Ignoring malformed remote check-in", logfields.Subject(msg.Subject), logfields.Error(err))
			return
		}
		if payload.Timestamp != nil {
			at = payload.Timestamp.UTC()
		}
	}

	s.mu.Lock()
	if s.latest == nil || at.After(*s.latest) {
		s.latest = &at
	}
	s.mu.Unlock()

	if msg.Reply != "" {
		_ = msg.Respond([]byte(`{"status":"received"}`))
	}
}

// PollNewActivity implements Source. The buffer is drained on every poll.
func (s *NATSSource) PollNewActivity(_ context.Context, since time.Time) (*time.Time, error) {
	s.mu.Lock()
	latest := s.latest
	s.latest = nil
	s.mu.Unlock()

	if latest == nil || !latest.After(since) {
		return nil, nil
	}
	return latest, nil
}

// Close unsubscribes.
func (s *NATSSource) Close() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}
