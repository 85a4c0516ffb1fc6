package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/PulfordJ/lastsignal/internal/eventstore"
	"github.com/PulfordJ/lastsignal/internal/logfields"
)

// Bus records events in the history store and publishes them. Failures are
// logged; recording history never interrupts the escalation path.
type Bus struct {
	store     eventstore.Store
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewBus creates a Bus. Either destination may be nil.
func NewBus(store eventstore.Store, publisher Publisher, logger *slog.Logger) *Bus {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{store: store, publisher: publisher, logger: logger, now: time.Now}
}

// Emit records e. A nil Bus discards events.
func (b *Bus) Emit(ctx context.Context, e eventstore.Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now().UTC()
	}
	if b.store != nil {
		if err := b.store.Append(ctx, e); err != nil {
			b.logger.Warn("Failed to record event", slog.String("kind", string(e.Kind)), logfields.Error(err))
		}
	}
	if err := b.publisher.Publish(ctx, e); err != nil {
		b.logger.Warn("Failed to publish event", slog.String("kind", string(e.Kind)), logfields.Error(err))
	}
}

// Close closes the publisher. The store is owned by the caller.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	return b.publisher.Close()
}
