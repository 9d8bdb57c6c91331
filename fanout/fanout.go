// Package fanout implements the ingestion coordinator: each accepted
// event is stamped once and written to the broadcast, cache, and durable
// log sinks concurrently. The three writes are joined without
// short-circuiting; one sink's failure never cancels or blocks the others
// and there is no rollback across sinks.
package fanout

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aayush-engineer/chatflux/errors"
	"github.com/Aayush-engineer/chatflux/event"
	"github.com/Aayush-engineer/chatflux/metric"
)

// ErrSendFailed is the generic disposition returned to the originating
// connection when no sink accepted the event. Per-sink failures are
// otherwise only logged and counted.
var ErrSendFailed = stderrors.New("failed to send")

// Broadcaster is the ephemeral distribution sink.
type Broadcaster interface {
	Publish(ctx context.Context, ev event.Event) error
}

// Cache is the bounded read cache sink.
type Cache interface {
	Append(ctx context.Context, streamID string, events []event.Event) error
}

// Log is the durable append log sink.
type Log interface {
	Enqueue(ctx context.Context, ev event.Event) error
}

// SinkResult is the tagged outcome of one sink write.
type SinkResult struct {
	Sink string
	Err  error
}

// Coordinator drives the three sinks for each inbound event.
type Coordinator struct {
	broadcaster Broadcaster
	cache       Cache
	log         Log
	metrics     *metric.Metrics
	logger      *slog.Logger

	// now is swappable for tests; CreatedAt is assigned exactly once here
	// and never reassigned downstream.
	now func() time.Time

	closed atomic.Bool
}

// New creates a fan-out coordinator over the three sinks.
func New(b Broadcaster, c Cache, l Log, metrics *metric.Metrics, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		broadcaster: b,
		cache:       c,
		log:         l,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Ingest validates and distributes one inbound event. On rejection the
// event has produced zero side effects. The returned event carries the
// assigned CreatedAt.
func (c *Coordinator) Ingest(
	ctx context.Context, originID, body string, kind event.Kind, streamID string, attrs map[string]any,
) (event.Event, error) {
	if c.closed.Load() {
		return event.Event{}, errors.WrapTransient(errors.ErrShuttingDown, "Coordinator", "Ingest", "accept event")
	}

	ev := event.Event{
		OriginID:   originID,
		Body:       body,
		Kind:       kind,
		StreamID:   streamID,
		Attributes: attrs,
	}
	ev.Normalize()

	if err := ev.Validate(); err != nil {
		if c.metrics != nil {
			c.metrics.RecordRejected(rejectionReason(err))
		}
		return event.Event{}, err
	}

	ev.CreatedAt = c.now().UnixMilli()

	results := c.push(ctx, ev)

	failed := 0
	for _, res := range results {
		if c.metrics != nil {
			c.metrics.RecordSinkWrite(res.Sink, res.Err == nil)
		}
		if res.Err != nil {
			failed++
			c.logger.Error("Sink write failed",
				"component", "fanout",
				"sink", res.Sink,
				"origin", ev.OriginID,
				"stream", ev.StreamID,
				"error", res.Err)
			if c.metrics != nil {
				c.metrics.RecordError("fanout", errors.Classify(res.Err).String())
			}
		}
	}

	if c.metrics != nil {
		c.metrics.RecordMessage(string(ev.Kind))
	}

	if failed == len(results) {
		return ev, ErrSendFailed
	}

	c.logger.Debug("Event pushed",
		"component", "fanout",
		"origin", ev.OriginID,
		"kind", ev.Kind,
		"stream", ev.StreamID)
	return ev, nil
}

// push writes the event to the three sinks concurrently and joins all
// outcomes.
func (c *Coordinator) push(ctx context.Context, ev event.Event) []SinkResult {
	results := make([]SinkResult, 3)
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		results[0] = SinkResult{Sink: "broadcast", Err: c.broadcaster.Publish(ctx, ev)}
	}()
	go func() {
		defer wg.Done()
		results[1] = SinkResult{Sink: "cache", Err: c.cache.Append(ctx, ev.StreamID, []event.Event{ev})}
	}()
	go func() {
		defer wg.Done()
		results[2] = SinkResult{Sink: "log", Err: c.log.Enqueue(ctx, ev)}
	}()

	wg.Wait()
	return results
}

// AnnounceJoin distributes the system join event for a new connection.
func (c *Coordinator) AnnounceJoin(ctx context.Context, originID, streamID string) (event.Event, error) {
	return c.Ingest(ctx, originID, originID+" joined the chat!", event.KindJoin, streamID, nil)
}

// AnnounceLeave distributes the system leave event for a closed connection.
func (c *Coordinator) AnnounceLeave(ctx context.Context, originID, streamID string) (event.Event, error) {
	return c.Ingest(ctx, originID, originID+" left the chat!", event.KindLeave, streamID, nil)
}

// StopAccepting makes all further Ingest calls fail fast. One-shot and
// idempotent; first step of the shutdown sequence.
func (c *Coordinator) StopAccepting() {
	c.closed.Store(true)
}

func rejectionReason(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrBodyTooLong):
		return "body_too_long"
	case stderrors.Is(err, errors.ErrBodyRequired):
		return "body_required"
	case stderrors.Is(err, errors.ErrInvalidKind):
		return "invalid_kind"
	default:
		return "invalid"
	}
}
