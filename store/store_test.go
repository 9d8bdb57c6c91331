package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aayush-engineer/chatflux/errors"
	"github.com/Aayush-engineer/chatflux/event"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), time.Second, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func makeEvent(origin, body string, createdAt int64) event.Event {
	return event.Event{
		OriginID:  origin,
		Body:      body,
		Kind:      event.KindUser,
		StreamID:  event.DefaultStreamID,
		CreatedAt: createdAt,
	}
}

func TestOpen_MissingPath(t *testing.T) {
	_, err := Open("", time.Second, nil)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestInsertBatch_AllRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	events := []event.Event{
		makeEvent("conn-1", "first", 1000),
		makeEvent("conn-2", "second", 2000),
		makeEvent("conn-1", "third", 3000),
	}

	n, err := s.InsertBatch(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	total, err := s.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestInsertBatch_PartialFailure(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	events := []event.Event{
		makeEvent("conn-1", "good", 1000),
		makeEvent("conn-2", "", 2000), // invalid row
		makeEvent("conn-3", strings.Repeat("x", event.MaxBodyLength+1), 3000), // invalid row
		makeEvent("conn-4", "also good", 4000),
	}

	n, err := s.InsertBatch(ctx, events)
	assert.Equal(t, 2, n)
	require.Error(t, err)
	require.True(t, errors.IsPartialBatch(err))

	var pe *errors.PartialBatchError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Inserted)
	assert.Equal(t, 2, pe.Failed)

	// The good subset stays inserted.
	total, err := s.Count(ctx, event.DefaultStreamID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestInsertBatch_Empty(t *testing.T) {
	s := openTestStore(t)
	n, err := s.InsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInsertBatch_AttributesRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ev := makeEvent("conn-1", "with attrs", 1000)
	ev.Attributes = map[string]any{"client": "web", "version": "2"}

	_, err := s.InsertBatch(ctx, []event.Event{ev})
	require.NoError(t, err)

	got, err := s.Query(ctx, event.DefaultStreamID, 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "web", got[0].Attributes["client"])
}

func TestQuery_ChronologicalOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Insert out of order; query must return ascending createdAt.
	_, err := s.InsertBatch(ctx, []event.Event{
		makeEvent("conn-1", "third", 3000),
		makeEvent("conn-1", "first", 1000),
		makeEvent("conn-1", "second", 2000),
	})
	require.NoError(t, err)

	got, err := s.Query(ctx, event.DefaultStreamID, 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "first", got[0].Body)
	assert.Equal(t, "second", got[1].Body)
	assert.Equal(t, "third", got[2].Body)
}

func TestQuery_LimitKeepsNewest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var events []event.Event
	for i := 1; i <= 5; i++ {
		events = append(events, makeEvent("conn-1", "msg", int64(i*1000)))
	}
	_, err := s.InsertBatch(ctx, events)
	require.NoError(t, err)

	got, err := s.Query(ctx, event.DefaultStreamID, 0, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(4000), got[0].CreatedAt)
	assert.Equal(t, int64(5000), got[1].CreatedAt)
}

func TestQuery_BeforeCursor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.InsertBatch(ctx, []event.Event{
		makeEvent("conn-1", "old", 1000),
		makeEvent("conn-1", "mid", 2000),
		makeEvent("conn-1", "new", 3000),
	})
	require.NoError(t, err)

	got, err := s.Query(ctx, event.DefaultStreamID, 3000, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "old", got[0].Body)
	assert.Equal(t, "mid", got[1].Body)

	// Cursor is exclusive.
	got, err = s.Query(ctx, event.DefaultStreamID, 1000, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQuery_StreamIsolation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lobby := makeEvent("conn-1", "lobby message", 1000)
	lobby.StreamID = "lobby"
	_, err := s.InsertBatch(ctx, []event.Event{
		makeEvent("conn-1", "global message", 1000),
		lobby,
	})
	require.NoError(t, err)

	got, err := s.Query(ctx, "lobby", 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "lobby message", got[0].Body)
}

func TestRecentSince(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now()
	_, err := s.InsertBatch(ctx, []event.Event{
		makeEvent("conn-1", "too old", now.Add(-20*time.Minute).UnixMilli()),
		makeEvent("conn-1", "recent a", now.Add(-5*time.Minute).UnixMilli()),
		makeEvent("conn-2", "recent b", now.Add(-time.Minute).UnixMilli()),
	})
	require.NoError(t, err)

	got, err := s.RecentSince(ctx, now.Add(-10*time.Minute), 100)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "recent a", got[0].Body)
	assert.Equal(t, "recent b", got[1].Body)
}

func TestDeleteOlderThan(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now()
	_, err := s.InsertBatch(ctx, []event.Event{
		makeEvent("conn-1", "40 days old", now.Add(-40*24*time.Hour).UnixMilli()),
		makeEvent("conn-1", "31 days old", now.Add(-31*24*time.Hour).UnixMilli()),
		makeEvent("conn-1", "29 days old", now.Add(-29*24*time.Hour).UnixMilli()),
		makeEvent("conn-1", "1 day old", now.Add(-24*time.Hour).UnixMilli()),
	})
	require.NoError(t, err)

	deleted, err := s.DeleteOlderThan(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	total, err := s.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	// Idempotent on re-run.
	deleted, err = s.DeleteOlderThan(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestPing(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
