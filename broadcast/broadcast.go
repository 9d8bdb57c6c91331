// Package broadcast is the ephemeral distribution path: events are
// published to live subscribers over core NATS with no acknowledgment and
// no delivery guarantee. A subscriber joining after a publish never
// receives it; history is served by the read path instead.
package broadcast

import (
	"context"
	"log/slog"

	"github.com/Aayush-engineer/chatflux/errors"
	"github.com/Aayush-engineer/chatflux/event"
)

// Conn is the subset of the NATS client the adapter needs.
type Conn interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error
}

// Handler receives one published event. Invoked at most once per published
// event per local process, with no ordering guarantee relative to the
// cache or log writes of the same event.
type Handler func(ctx context.Context, ev event.Event)

// Adapter publishes and subscribes chat events on per-stream subjects.
type Adapter struct {
	conn          Conn
	subjectPrefix string
	logger        *slog.Logger
}

// New creates a broadcast adapter publishing under subjectPrefix.
func New(conn Conn, subjectPrefix string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		conn:          conn,
		subjectPrefix: subjectPrefix,
		logger:        logger,
	}
}

// Subject returns the broadcast subject for a stream.
func (a *Adapter) Subject(streamID string) string {
	if streamID == "" {
		streamID = event.DefaultStreamID
	}
	return a.subjectPrefix + "." + streamID
}

// Publish sends the event to all currently connected subscribers of its
// stream. Fire-and-forget: zero live subscribers is not an error.
func (a *Adapter) Publish(ctx context.Context, ev event.Event) error {
	data, err := ev.Marshal()
	if err != nil {
		return err
	}
	if err := a.conn.Publish(ctx, a.Subject(ev.StreamID), data); err != nil {
		return errors.WrapTransient(err, "Broadcast", "Publish", "publish event")
	}
	return nil
}

// Subscribe registers a handler for a stream's broadcast channel.
// Undecodable frames are logged and dropped.
func (a *Adapter) Subscribe(ctx context.Context, streamID string, handler Handler) error {
	subject := a.Subject(streamID)
	err := a.conn.Subscribe(ctx, subject, func(msgCtx context.Context, data []byte) {
		ev, err := event.Unmarshal(data)
		if err != nil {
			a.logger.Warn("Dropping undecodable broadcast frame",
				"component", "broadcast",
				"subject", subject,
				"error", err)
			return
		}
		handler(msgCtx, ev)
	})
	if err != nil {
		return errors.WrapTransient(err, "Broadcast", "Subscribe", "subscribe to "+subject)
	}
	return nil
}
