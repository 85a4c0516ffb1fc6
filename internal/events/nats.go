// Package events fans daemon events out to the local history store and, when
// configured, to NATS subscribers.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/PulfordJ/lastsignal/internal/eventstore"
	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
	"github.com/PulfordJ/lastsignal/internal/logfields"
)

// Publisher sends events to remote subscribers.
type Publisher interface {
	Publish(ctx context.Context, e eventstore.Event) error
	Close() error
}

// EventSubject is the subject events of kind are published on.
func EventSubject(prefix string, kind eventstore.Kind) string {
	return prefix + ".events." + string(kind)
}

// CheckinSubject is the subject remote check-ins are received on.
func CheckinSubject(prefix string) string {
	return prefix + ".checkin"
}

// Connect dials NATS, reconnecting forever once connected.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("lastsignal"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", logfields.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", logfields.URL(nc.ConnectedUrlRedacted()))
		}),
	)
	if err != nil {
		return nil, errors.NetworkError("failed to connect to NATS").
			WithCause(err).
			WithContext("url", url).
			Build()
	}
	slog.Info("Connected to NATS", logfields.URL(conn.ConnectedUrlRedacted()))
	return conn, nil
}

// NATSPublisher publishes events as JSON on core NATS.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher creates a publisher on conn. The connection is owned by
// the caller.
func NewNATSPublisher(conn *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(_ context.Context, e eventstore.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.InternalError("failed to marshal event").WithCause(err).Build()
	}
	subject := EventSubject(p.prefix, e.Kind)
	if err := p.conn.Publish(subject, data); err != nil {
		return errors.NetworkError("failed to publish event").
			WithCause(err).
			WithContext("subject", subject).
			Build()
	}
	slog.Debug("Published event", logfields.Subject(subject))
	return nil
}

// Close flushes pending messages.
func (p *NATSPublisher) Close() error {
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	return p.conn.FlushTimeout(2 * time.Second)
}

// NoopPublisher discards events.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, eventstore.Event) error { return nil }
func (NoopPublisher) Close() error                                    { return nil }
