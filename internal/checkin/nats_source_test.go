package checkin

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNATSSourceBuffersNewest(t *testing.T) {
	s := newNATSSource("lastsignal.checkin")
	s.now = func() time.Time { return base.Add(time.Hour) }

	s.handle(&nats.Msg{Subject: "lastsignal.checkin", Data: []byte(`{"timestamp":"2026-04-01T09:30:00Z"}`)})
	s.handle(&nats.Msg{Subject: "lastsignal.checkin"})
	s.handle(&nats.Msg{Subject: "lastsignal.checkin", Data: []byte(`{"timestamp":"2026-04-01T09:10:00Z"}`)})

	ts, err := s.PollNewActivity(context.Background(), base)
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.Equal(t, base.Add(time.Hour), *ts)

	ts, err = s.PollNewActivity(context.Background(), base)
	require.NoError(t, err)
	assert.Nil(t, ts, "buffer is drained by a poll")
}

func TestNATSSourceIgnoresMalformedAndStale(t *testing.T) {
	s := newNATSSource("lastsignal.checkin")

	s.handle(&nats.Msg{Subject: "lastsignal.checkin", Data: []byte(`not json`)})
	ts, err := s.PollNewActivity(context.Background(), base)
	require.NoError(t, err)
	assert.Nil(t, ts)

	s.handle(&nats.Msg{Subject: "lastsignal.checkin", Data: []byte(`{"timestamp":"2026-03-01T00:00:00Z"}`)})
	ts, err = s.PollNewActivity(context.Background(), base)
	require.NoError(t, err)
	assert.Nil(t, ts)
}

func TestNATSSourceCloseWithoutSubscription(t *testing.T) {
	assert.NoError(t, newNATSSource("x").Close())
}
