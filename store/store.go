// Package store is the persistent store adapter: a SQLite-backed event
// store with partial-failure tolerant batch insert, range queries, and
// age-based bulk delete. It is the durable source of truth the cache is
// reconciled against.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"

	"github.com/Aayush-engineer/chatflux/errors"
	"github.com/Aayush-engineer/chatflux/event"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Store is a SQLite-backed event store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the store at path and applies
// migrations.
func Open(path string, busyTimeout time.Duration, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Store", "Open", "check path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.WrapFatal(err, "Store", "Open", "create data directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WrapFatal(err, "Store", "Open", "open database")
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if busyTimeout > 0 {
		_, _ = db.Exec("PRAGMA busy_timeout = " + strconv.FormatInt(busyTimeout.Milliseconds(), 10))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &Store{db: db, logger: logger}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, errors.WrapFatal(err, "Store", "Open", "apply migrations")
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

// InsertBatch inserts the events one row at a time so one bad row fails
// alone. It returns the number inserted; when some rows fail it also
// returns a PartialBatchError describing the failed subset. The body
// length invariant is re-checked here because the log may be fed by any
// producer.
func (s *Store) InsertBatch(ctx context.Context, events []event.Event) (int, error) {
	if len(events) == 0 {
		s.logger.Warn("InsertBatch called with empty batch", "component", "store")
		return 0, nil
	}

	inserted := 0
	var rowErrs []error
	for i := range events {
		if err := s.insertOne(ctx, &events[i]); err != nil {
			rowErrs = append(rowErrs, err)
			continue
		}
		inserted++
	}

	if len(rowErrs) > 0 {
		return inserted, &errors.PartialBatchError{
			Inserted: inserted,
			Failed:   len(rowErrs),
			Errs:     rowErrs,
		}
	}
	return inserted, nil
}

func (s *Store) insertOne(ctx context.Context, ev *event.Event) error {
	if ev.Body == "" {
		return errors.WrapInvalid(errors.ErrBodyRequired, "Store", "insertOne", "check body")
	}
	if utf8.RuneCountInString(ev.Body) > event.MaxBodyLength {
		return errors.WrapInvalid(errors.ErrBodyTooLong, "Store", "insertOne", "check body length")
	}

	var attrs any
	if len(ev.Attributes) > 0 {
		data, err := json.Marshal(ev.Attributes)
		if err != nil {
			return errors.WrapInvalid(err, "Store", "insertOne", "encode attributes")
		}
		attrs = string(data)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(origin_id, body, kind, stream_id, attributes, created_at)
		 VALUES(?,?,?,?,?,?)`,
		ev.OriginID, ev.Body, string(ev.Kind), ev.StreamID, attrs, ev.CreatedAt,
	)
	if err != nil {
		return errors.WrapTransient(err, "Store", "insertOne", "insert row")
	}
	return nil
}

// Query returns up to limit events for a stream, optionally bounded by
// createdAt < before (Unix ms, 0 means unbounded). The most recent
// matching events are selected and returned in chronological order.
func (s *Store) Query(ctx context.Context, streamID string, before int64, limit int) ([]event.Event, error) {
	if streamID == "" {
		streamID = event.DefaultStreamID
	}
	if limit <= 0 {
		return nil, nil
	}

	query := `SELECT origin_id, body, kind, stream_id, attributes, created_at
	          FROM messages WHERE stream_id = ?`
	args := []any{streamID}
	if before > 0 {
		query += ` AND created_at < ?`
		args = append(args, before)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	events, err := s.queryEvents(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "Query", "query messages")
	}

	// Selected newest-first; flip to chronological.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// RecentSince returns up to limit events with createdAt >= since across
// all streams, ascending. The cache-heal job feeds these back through the
// cache's append-with-trim path.
func (s *Store) RecentSince(ctx context.Context, since time.Time, limit int) ([]event.Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	events, err := s.queryEvents(ctx,
		`SELECT origin_id, body, kind, stream_id, attributes, created_at
		 FROM messages WHERE created_at >= ?
		 ORDER BY created_at ASC LIMIT ?`,
		since.UnixMilli(), limit,
	)
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "RecentSince", "query recent messages")
	}
	return events, nil
}

// DeleteOlderThan removes every event with createdAt before cutoff and
// returns the number deleted. This is the only deletion path in the
// system; cache eviction is independent of it.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, errors.WrapTransient(err, "Store", "DeleteOlderThan", "delete old messages")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WrapTransient(err, "Store", "DeleteOlderThan", "count deleted rows")
	}
	return n, nil
}

// Count returns the number of stored events, for one stream or all
// streams when streamID is empty.
func (s *Store) Count(ctx context.Context, streamID string) (int64, error) {
	var (
		n   int64
		err error
	)
	if streamID == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM messages WHERE stream_id = ?`, streamID).Scan(&n)
	}
	if err != nil {
		return 0, errors.WrapTransient(err, "Store", "Count", "count messages")
	}
	return n, nil
}

// Ping reports store connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.WrapTransient(err, "Store", "Ping", "ping database")
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			ev    event.Event
			kind  string
			attrs sql.NullString
		)
		if err := rows.Scan(&ev.OriginID, &ev.Body, &kind, &ev.StreamID, &attrs, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Kind = event.Kind(kind)
		if attrs.Valid && attrs.String != "" {
			if err := json.Unmarshal([]byte(attrs.String), &ev.Attributes); err != nil {
				s.logger.Warn("Skipping undecodable attributes",
					"component", "store",
					"error", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
