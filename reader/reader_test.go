package reader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aayush-engineer/chatflux/errors"
	"github.com/Aayush-engineer/chatflux/event"
)

type fakeCache struct {
	events    []event.Event
	err       error
	calls     int
	lastLimit int
}

func (f *fakeCache) Range(_ context.Context, _ string, limit int) ([]event.Event, error) {
	f.calls++
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

type fakeStore struct {
	events     []event.Event
	err        error
	calls      int
	lastBefore int64
}

func (f *fakeStore) Query(_ context.Context, _ string, before int64, _ int) ([]event.Event, error) {
	f.calls++
	f.lastBefore = before
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func someEvents(n int) []event.Event {
	events := make([]event.Event, n)
	for i := 0; i < n; i++ {
		events[i] = event.Event{
			OriginID:  "conn-1",
			Body:      "msg",
			Kind:      event.KindUser,
			StreamID:  event.DefaultStreamID,
			CreatedAt: int64((i + 1) * 1000),
		}
	}
	return events
}

func testLimits() Limits {
	return Limits{DefaultLimit: 50, MaxLimit: 100}
}

func TestRead_CacheHit(t *testing.T) {
	cache := &fakeCache{events: someEvents(3)}
	store := &fakeStore{events: someEvents(5)}
	r := New(cache, store, testLimits(), nil, nil)

	result, err := r.Read(context.Background(), "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Count)
	assert.Len(t, result.Events, 3)
	assert.Zero(t, store.calls, "a cache hit must not touch the store")
}

func TestRead_EmptyCacheFallsBack(t *testing.T) {
	cache := &fakeCache{}
	store := &fakeStore{events: someEvents(3)}
	r := New(cache, store, testLimits(), nil, nil)

	result, err := r.Read(context.Background(), "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Count)
	assert.Equal(t, 1, cache.calls)
	assert.Equal(t, 1, store.calls)
	// Ascending order comes from the store as-is.
	assert.Equal(t, int64(1000), result.Events[0].CreatedAt)
	assert.Equal(t, int64(3000), result.Events[2].CreatedAt)
}

func TestRead_CacheErrorFallsBack(t *testing.T) {
	cache := &fakeCache{err: errors.ErrCacheUnavailable}
	store := &fakeStore{events: someEvents(2)}
	r := New(cache, store, testLimits(), nil, nil)

	result, err := r.Read(context.Background(), "", 10, 0)
	require.NoError(t, err, "cache failure must degrade to the store, not fail the read")
	assert.Equal(t, 2, result.Count)
	assert.Equal(t, 1, store.calls)
}

func TestRead_BeforeCursorSkipsCache(t *testing.T) {
	cache := &fakeCache{events: someEvents(3)}
	store := &fakeStore{events: someEvents(1)}
	r := New(cache, store, testLimits(), nil, nil)

	result, err := r.Read(context.Background(), "", 10, 5000)
	require.NoError(t, err)
	assert.Zero(t, cache.calls, "the cache cannot honor a before cursor")
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, int64(5000), store.lastBefore)
	assert.Equal(t, 1, result.Count)
}

func TestRead_LimitDefaultsAndBounds(t *testing.T) {
	cache := &fakeCache{events: someEvents(1)}
	store := &fakeStore{}
	r := New(cache, store, testLimits(), nil, nil)

	_, err := r.Read(context.Background(), "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 50, cache.lastLimit, "limit 0 must use the default")

	for _, limit := range []int{-1, 101} {
		_, err := r.Read(context.Background(), "", limit, 0)
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
		assert.ErrorIs(t, err, errors.ErrInvalidLimit)
	}
}

func TestRead_NegativeBeforeRejected(t *testing.T) {
	r := New(&fakeCache{}, &fakeStore{}, testLimits(), nil, nil)

	_, err := r.Read(context.Background(), "", 10, -5)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestRead_StoreErrorPropagates(t *testing.T) {
	cache := &fakeCache{}
	store := &fakeStore{err: errors.ErrStorageUnavailable}
	r := New(cache, store, testLimits(), nil, nil)

	_, err := r.Read(context.Background(), "", 10, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStorageUnavailable)
}

func TestRead_EmptyResultIsNotNil(t *testing.T) {
	r := New(&fakeCache{}, &fakeStore{}, testLimits(), nil, nil)

	result, err := r.Read(context.Background(), "", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, result.Count)
	assert.NotNil(t, result.Events)
}
