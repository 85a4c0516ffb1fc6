package eventstore

import (
	"context"
	"time"
)

// Store persists and retrieves events.
type Store interface {
	// Append adds e. A zero Timestamp is set to the current time.
	Append(ctx context.Context, e Event) error

	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]Event, error)

	// Range returns events with start <= timestamp <= end, oldest first.
	Range(ctx context.Context, start, end time.Time) ([]Event, error)

	// Close releases resources.
	Close() error
}
