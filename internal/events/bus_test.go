package events

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PulfordJ/lastsignal/internal/eventstore"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []eventstore.Event
	err    error
	closed bool
}

func (c *capturePublisher) Publish(_ context.Context, e eventstore.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return c.err
}

func (c *capturePublisher) Close() error {
	c.closed = true
	return nil
}

func TestBusRecordsAndPublishes(t *testing.T) {
	store, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	pub := &capturePublisher{}
	bus := NewBus(store, pub, nil)
	fixed := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	bus.now = func() time.Time { return fixed }

	bus.Emit(t.Context(), eventstore.Event{Kind: eventstore.KindSignalFired, Channel: "email-0"})

	stored, err := store.Recent(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "email-0", stored[0].Channel)
	assert.True(t, stored[0].Timestamp.Equal(fixed))

	require.Len(t, pub.events, 1)
	assert.Equal(t, fixed, pub.events[0].Timestamp)

	require.NoError(t, bus.Close())
	assert.True(t, pub.closed)
}

func TestBusToleratesFailures(t *testing.T) {
	store, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	pub := &capturePublisher{err: stderrors.New("offline")}
	bus := NewBus(store, pub, nil)

	assert.NotPanics(t, func() {
		bus.Emit(t.Context(), eventstore.Event{Kind: eventstore.KindCheckin})
	})
	assert.Len(t, pub.events, 1)
}

func TestNilBus(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() { bus.Emit(context.Background(), eventstore.Event{}) })
	assert.NoError(t, bus.Close())
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "lastsignal.events.signal_fired", EventSubject("lastsignal", eventstore.KindSignalFired))
	assert.Equal(t, "home.checkin", CheckinSubject("home"))
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), eventstore.Event{}))
	assert.NoError(t, p.Close())
}
