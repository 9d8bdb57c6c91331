// Package reader serves read requests from the cache, falling back to the
// store on miss, adapter error, or a before-cursor (which only the store
// can honor). An empty cache is indistinguishable from "no messages ever
// existed", so every empty-cache read pays one store round-trip until the
// cache is warmed by live traffic or the heal job.
package reader

import (
	"context"
	"log/slog"

	"github.com/Aayush-engineer/chatflux/errors"
	"github.com/Aayush-engineer/chatflux/event"
	"github.com/Aayush-engineer/chatflux/metric"
)

// Cache is the fast read path. It has no cursoring, only the most
// recent N entries.
type Cache interface {
	Range(ctx context.Context, streamID string, limit int) ([]event.Event, error)
}

// Store is the fallback read path.
type Store interface {
	Query(ctx context.Context, streamID string, before int64, limit int) ([]event.Event, error)
}

// Limits bounds the read API surface.
type Limits struct {
	DefaultLimit int
	MaxLimit     int
}

// Result is the read response: the matched events in chronological order.
type Result struct {
	Count  int           `json:"count"`
	Events []event.Event `json:"messages"`
}

// Reader coordinates the cache-then-store read path.
type Reader struct {
	cache   Cache
	store   Store
	limits  Limits
	metrics *metric.Metrics
	logger  *slog.Logger
}

// New creates a read coordinator.
func New(cache Cache, store Store, limits Limits, metrics *metric.Metrics, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	if limits.DefaultLimit <= 0 {
		limits.DefaultLimit = 50
	}
	if limits.MaxLimit <= 0 {
		limits.MaxLimit = 100
	}
	return &Reader{
		cache:   cache,
		store:   store,
		limits:  limits,
		metrics: metrics,
		logger:  logger,
	}
}

// Read returns up to limit events for the stream in ascending createdAt
// order. limit 0 means the default; out-of-range limits are a client
// input error, not a pipeline fault. before (Unix ms, 0 = none) forces
// the store path.
func (r *Reader) Read(ctx context.Context, streamID string, limit int, before int64) (Result, error) {
	if streamID == "" {
		streamID = event.DefaultStreamID
	}
	if limit == 0 {
		limit = r.limits.DefaultLimit
	}
	if limit < 1 || limit > r.limits.MaxLimit {
		return Result{}, errors.WrapInvalid(errors.ErrInvalidLimit, "Reader", "Read", "check limit")
	}
	if before < 0 {
		return Result{}, errors.WrapInvalid(errors.ErrInvalidData, "Reader", "Read", "check before cursor")
	}

	// Fast path: the cache ignores the before cursor, so any cursor goes
	// straight to the store.
	if before == 0 {
		events, err := r.cache.Range(ctx, streamID, limit)
		if err != nil {
			r.logger.Warn("Cache read failed, falling back to store",
				"component", "reader",
				"stream", streamID,
				"error", err)
			if r.metrics != nil {
				r.metrics.RecordError("reader", errors.Classify(err).String())
			}
		} else if len(events) > 0 {
			return Result{Count: len(events), Events: events}, nil
		}
	}

	if r.metrics != nil {
		r.metrics.RecordReadFallback()
	}

	events, err := r.store.Query(ctx, streamID, before, limit)
	if err != nil {
		return Result{}, errors.Wrap(err, "Reader", "Read", "store fallback query")
	}
	if events == nil {
		events = []event.Event{}
	}
	return Result{Count: len(events), Events: events}, nil
}
