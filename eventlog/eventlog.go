// Package eventlog is the durable append log adapter over JetStream.
// Enqueue returns only after the broker durably accepts the event; the
// consumer side pulls batches and commits positions manually, after the
// corresponding store flush attempt.
package eventlog

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Aayush-engineer/chatflux/errors"
	"github.com/Aayush-engineer/chatflux/event"
	"github.com/Aayush-engineer/chatflux/natsclient"
)

// HeaderMessageID is the per-enqueue id header. It is a duplicate-tolerance
// aid for downstream tooling, not an identity key.
const HeaderMessageID = "Chatflux-Message-Id"

// Log is the producer-side durable log adapter.
type Log struct {
	client        *natsclient.Client
	streamName    string
	subjectPrefix string
	logger        *slog.Logger
}

// New creates a durable log adapter over the given stream.
func New(client *natsclient.Client, streamName, subjectPrefix string, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		client:        client,
		streamName:    streamName,
		subjectPrefix: subjectPrefix,
		logger:        logger,
	}
}

// Init creates or updates the underlying stream. File storage so an
// acknowledged event survives a broker restart.
func (l *Log) Init(ctx context.Context) error {
	_, err := l.client.EnsureStream(ctx, jetstream.StreamConfig{
		Name:      l.streamName,
		Subjects:  []string{l.subjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
	})
	if err != nil {
		return errors.Wrap(err, "Log", "Init", "ensure stream")
	}
	return nil
}

// Subject returns the log subject for an event's partition key. All events
// from one origin land on the same subject, giving per-origin ordering
// within the log even though there is no global order.
func (l *Log) Subject(ev *event.Event) string {
	return l.subjectPrefix + "." + sanitizeToken(ev.PartitionKey())
}

// Enqueue appends the event to the durable log. A nil error means the
// broker has acknowledged the write at its configured durability level.
func (l *Log) Enqueue(ctx context.Context, ev event.Event) error {
	data, err := ev.Marshal()
	if err != nil {
		return err
	}

	headers := map[string]string{
		HeaderMessageID: uuid.NewString(),
	}

	ack, err := l.client.PublishToStream(ctx, l.Subject(&ev), data, headers)
	if err != nil {
		return errors.WrapTransient(err, "Log", "Enqueue", "publish event")
	}

	l.logger.Debug("Event enqueued",
		"component", "eventlog",
		"stream", ack.Stream,
		"sequence", ack.Sequence)
	return nil
}

// Message is one pulled log entry. Commit marks its log position consumed;
// it must be called only after the store flush attempt for its batch
// completes, success or logged failure.
type Message struct {
	Event event.Event
	msg   jetstream.Msg
}

// Commit acknowledges the message's log position.
func (m *Message) Commit() error {
	if m.msg == nil {
		return nil
	}
	return m.msg.Ack()
}

// Reader is the consumer-side pull iterator over the log.
type Reader struct {
	consumer jetstream.Consumer
	logger   *slog.Logger
}

// OpenReader creates (or resumes) the durable consumer group and returns a
// pull-based reader.
func (l *Log) OpenReader(ctx context.Context, durable string) (*Reader, error) {
	consumer, err := l.client.PullConsumer(ctx, l.streamName, durable)
	if err != nil {
		return nil, errors.Wrap(err, "Log", "OpenReader", "create pull consumer")
	}
	return &Reader{consumer: consumer, logger: l.logger}, nil
}

// Fetch pulls up to batchSize messages, waiting at most maxWait. A short
// read (including zero messages) is normal on an idle log. Undecodable
// entries are committed immediately and dropped so they cannot wedge the
// consumer group.
func (r *Reader) Fetch(_ context.Context, batchSize int, maxWait time.Duration) ([]Message, error) {
	batch, err := r.consumer.Fetch(batchSize, jetstream.FetchMaxWait(maxWait))
	if err != nil {
		return nil, errors.WrapTransient(err, "Reader", "Fetch", "pull batch")
	}

	var msgs []Message
	for m := range batch.Messages() {
		ev, err := event.Unmarshal(m.Data())
		if err != nil {
			r.logger.Warn("Dropping undecodable log entry",
				"component", "eventlog",
				"subject", m.Subject(),
				"error", err)
			_ = m.Ack()
			continue
		}
		msgs = append(msgs, Message{Event: ev, msg: m})
	}
	if err := batch.Error(); err != nil && len(msgs) == 0 {
		return nil, errors.WrapTransient(err, "Reader", "Fetch", "drain batch")
	}
	return msgs, nil
}

// sanitizeToken makes an origin id safe for use as a NATS subject token.
func sanitizeToken(s string) string {
	if s == "" {
		return event.SystemOriginKey
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '*', '>':
			return '_'
		}
		return r
	}, s)
}
