// Package cache is the bounded cache adapter: one capped Redis list per
// stream. Append and trim run as a single Lua script, so a concurrent
// reader never observes an untrimmed list. Eviction is an unconditional
// tail-trim by insertion recency, never by access pattern.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Aayush-engineer/chatflux/errors"
	"github.com/Aayush-engineer/chatflux/event"
)

// appendTrimScript appends the encoded events and trims the list to the
// most recent max entries in one atomic step.
// KEYS[1] = stream list key
// ARGV[1] = max entries
// ARGV[2..] = encoded events, oldest first
var appendTrimScript = redis.NewScript(`
local key = KEYS[1]
local max = tonumber(ARGV[1])

for i = 2, #ARGV do
    redis.call("RPUSH", key, ARGV[i])
end
redis.call("LTRIM", key, -max, -1)

return redis.call("LLEN", key)
`)

// Adapter is a bounded, per-stream event cache over Redis.
type Adapter struct {
	client    *redis.Client
	keyPrefix string
	maxSize   int
	logger    *slog.Logger
}

// New creates a cache adapter. maxSize caps every stream's list; oldest
// entries are discarded first.
func New(client *redis.Client, keyPrefix string, maxSize int, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		client:    client,
		keyPrefix: keyPrefix,
		maxSize:   maxSize,
		logger:    logger,
	}
}

// Connect opens the Redis connection used by the adapter.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.WrapTransient(err, "Cache", "Connect", "ping redis")
	}
	return client, nil
}

// MaxSize returns the configured cap.
func (a *Adapter) MaxSize() int {
	return a.maxSize
}

// Key returns the Redis list key for a stream.
func (a *Adapter) Key(streamID string) string {
	if streamID == "" {
		streamID = event.DefaultStreamID
	}
	return a.keyPrefix + ":" + streamID
}

// Append appends the events (oldest first) to the stream's list and trims
// it to the most recent maxSize entries, atomically.
func (a *Adapter) Append(ctx context.Context, streamID string, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	args := make([]any, 0, len(events)+1)
	args = append(args, a.maxSize)
	for i := range events {
		data, err := events[i].Marshal()
		if err != nil {
			return err
		}
		args = append(args, string(data))
	}

	start := time.Now()
	size, err := appendTrimScript.Run(ctx, a.client, []string{a.Key(streamID)}, args...).Int64()
	if err != nil {
		return errors.WrapTransient(err, "Cache", "Append", "append and trim")
	}

	a.logger.Debug("Cache appended",
		"component", "cache",
		"stream", streamID,
		"appended", len(events),
		"size", size,
		"duration", time.Since(start))
	return nil
}

// Range returns up to limit events from the current trimmed tail of the
// stream's list, in chronological order. Entries that fail to decode are
// skipped with a warning.
func (a *Adapter) Range(ctx context.Context, streamID string, limit int) ([]event.Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	if limit > a.maxSize {
		limit = a.maxSize
	}

	raw, err := a.client.LRange(ctx, a.Key(streamID), int64(-limit), -1).Result()
	if err != nil {
		return nil, errors.WrapTransient(err, "Cache", "Range", "read list tail")
	}

	events := make([]event.Event, 0, len(raw))
	for _, item := range raw {
		ev, err := event.Unmarshal([]byte(item))
		if err != nil {
			a.logger.Warn("Skipping undecodable cache entry",
				"component", "cache",
				"stream", streamID,
				"error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Ping reports cache connectivity.
func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.client.Ping(ctx).Err(); err != nil {
		return errors.WrapTransient(err, "Cache", "Ping", "ping redis")
	}
	return nil
}

// Close releases the Redis connection.
func (a *Adapter) Close() error {
	return a.client.Close()
}
