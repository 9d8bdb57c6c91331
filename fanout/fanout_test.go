package fanout

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aayush-engineer/chatflux/errors"
	"github.com/Aayush-engineer/chatflux/event"
)

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []event.Event
	err    error
}

func (f *fakeBroadcaster) Publish(_ context.Context, ev event.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

type fakeCache struct {
	mu     sync.Mutex
	events []event.Event
	err    error
}

func (f *fakeCache) Append(_ context.Context, _ string, events []event.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, events...)
	return nil
}

type fakeLog struct {
	mu     sync.Mutex
	events []event.Event
	err    error
}

func (f *fakeLog) Enqueue(_ context.Context, ev event.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func newTestCoordinator(b *fakeBroadcaster, c *fakeCache, l *fakeLog) *Coordinator {
	coord := New(b, c, l, nil, nil)
	coord.now = func() time.Time {
		return time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	}
	return coord
}

func TestIngest_FansOutToAllSinks(t *testing.T) {
	b, c, l := &fakeBroadcaster{}, &fakeCache{}, &fakeLog{}
	coord := newTestCoordinator(b, c, l)

	ev, err := coord.Ingest(context.Background(), "conn-1", "hello", event.KindUser, "", nil)
	require.NoError(t, err)

	wantCreatedAt := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, wantCreatedAt, ev.CreatedAt)
	assert.Equal(t, event.DefaultStreamID, ev.StreamID)

	// Every sink sees the identical stamped event.
	require.Len(t, b.events, 1)
	require.Len(t, c.events, 1)
	require.Len(t, l.events, 1)
	assert.Equal(t, ev, b.events[0])
	assert.Equal(t, ev, c.events[0])
	assert.Equal(t, ev, l.events[0])
}

func TestIngest_RejectionHasNoSideEffects(t *testing.T) {
	b, c, l := &fakeBroadcaster{}, &fakeCache{}, &fakeLog{}
	coord := newTestCoordinator(b, c, l)

	tests := []struct {
		name string
		body string
		kind event.Kind
	}{
		{"empty body", "", event.KindUser},
		{"oversized body", strings.Repeat("x", event.MaxBodyLength+1), event.KindUser},
		{"unknown kind", "hello", event.Kind("moderator")},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := coord.Ingest(context.Background(), "conn-1", test.body, test.kind, "", nil)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.Empty(t, b.events)
			assert.Empty(t, c.events)
			assert.Empty(t, l.events)
		})
	}
}

func TestIngest_OneSinkFailureIsTolerated(t *testing.T) {
	b := &fakeBroadcaster{err: errors.ErrConnectionLost}
	c, l := &fakeCache{}, &fakeLog{}
	coord := newTestCoordinator(b, c, l)

	_, err := coord.Ingest(context.Background(), "conn-1", "hello", event.KindUser, "", nil)
	require.NoError(t, err, "a single sink failure must not fail the ingest")
	assert.Len(t, c.events, 1)
	assert.Len(t, l.events, 1)
}

func TestIngest_AllSinksFailed(t *testing.T) {
	b := &fakeBroadcaster{err: errors.ErrConnectionLost}
	c := &fakeCache{err: errors.ErrCacheUnavailable}
	l := &fakeLog{err: errors.ErrConnectionLost}
	coord := newTestCoordinator(b, c, l)

	_, err := coord.Ingest(context.Background(), "conn-1", "hello", event.KindUser, "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSendFailed)
}

func TestIngest_KindDefaultsToUser(t *testing.T) {
	b, c, l := &fakeBroadcaster{}, &fakeCache{}, &fakeLog{}
	coord := newTestCoordinator(b, c, l)

	ev, err := coord.Ingest(context.Background(), "conn-1", "hello", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, event.KindUser, ev.Kind)
}

func TestAnnounceJoinAndLeave(t *testing.T) {
	b, c, l := &fakeBroadcaster{}, &fakeCache{}, &fakeLog{}
	coord := newTestCoordinator(b, c, l)

	joined, err := coord.AnnounceJoin(context.Background(), "conn-7", "")
	require.NoError(t, err)
	assert.Equal(t, event.KindJoin, joined.Kind)
	assert.Equal(t, "conn-7 joined the chat!", joined.Body)

	left, err := coord.AnnounceLeave(context.Background(), "conn-7", "")
	require.NoError(t, err)
	assert.Equal(t, event.KindLeave, left.Kind)
	assert.Equal(t, "conn-7 left the chat!", left.Body)
}

func TestStopAccepting(t *testing.T) {
	b, c, l := &fakeBroadcaster{}, &fakeCache{}, &fakeLog{}
	coord := newTestCoordinator(b, c, l)

	coord.StopAccepting()
	coord.StopAccepting() // idempotent

	_, err := coord.Ingest(context.Background(), "conn-1", "hello", event.KindUser, "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrShuttingDown)
	assert.Empty(t, b.events)
}
