// Package reconcile runs the periodic repair jobs: the cache-heal task
// copies the newest store records back into the bounded cache (the cache
// has no durability of its own), and the retention task bounds store
// growth by deleting records past the retention horizon. Both tasks are
// idempotent and safe to run concurrently with the live pipeline; a
// failing run is logged and never affects the next scheduled run.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Aayush-engineer/chatflux/errors"
	"github.com/Aayush-engineer/chatflux/event"
	"github.com/Aayush-engineer/chatflux/metric"
)

// Cache is the heal target. Healing goes through the same
// append-with-trim path as live writes.
type Cache interface {
	Append(ctx context.Context, streamID string, events []event.Event) error
	MaxSize() int
}

// Store is the durable source of truth.
type Store interface {
	RecentSince(ctx context.Context, since time.Time, limit int) ([]event.Event, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Count(ctx context.Context, streamID string) (int64, error)
}

// Config holds the job schedules and windows.
type Config struct {
	HealSchedule      string
	HealWindow        time.Duration
	RetentionSchedule string
	RetentionHorizon  time.Duration
	HealthSchedule    string
}

// Scheduler owns the cron runner and the reconciliation jobs.
type Scheduler struct {
	cache   Cache
	store   Store
	cfg     Config
	metrics *metric.Metrics
	logger  *slog.Logger

	cron      *cron.Cron
	startTime time.Time
}

// New creates a reconciliation scheduler.
func New(cache Cache, store Store, cfg Config, metrics *metric.Metrics, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cache:   cache,
		store:   store,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		cron:    cron.New(),
	}
}

// Start registers and starts the cron jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context) error
	}{
		{"cache_heal", s.cfg.HealSchedule, s.RunHeal},
		{"retention", s.cfg.RetentionSchedule, s.RunRetention},
		{"health_stats", s.cfg.HealthSchedule, s.RunHealthStats},
	}

	for _, job := range jobs {
		job := job
		_, err := s.cron.AddFunc(job.schedule, func() {
			if err := job.run(ctx); err != nil {
				s.logger.Error("Reconciliation job failed",
					"component", "reconcile",
					"job", job.name,
					"error", err)
				if s.metrics != nil {
					s.metrics.RecordError("reconcile", errors.Classify(err).String())
				}
			}
		})
		if err != nil {
			return errors.WrapFatal(err, "Scheduler", "Start", "schedule "+job.name)
		}
		s.logger.Info("Job scheduled",
			"component", "reconcile",
			"job", job.name,
			"schedule", job.schedule)
	}

	s.startTime = time.Now()
	s.cron.Start()
	return nil
}

// Stop stops scheduling and waits for any running job, bounded by timeout.
// Jobs are not cancellable mid-run; they are expected to complete well
// within their scheduling period.
func (s *Scheduler) Stop(timeout time.Duration) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrConnectionTimeout, "Scheduler", "Stop", "wait for running jobs")
	}
}

// RunHeal copies store records from the heal window back into the cache
// through the append-with-trim path, repairing gaps left by restarts or
// adapter hiccups.
func (s *Scheduler) RunHeal(ctx context.Context) error {
	start := time.Now()
	since := start.Add(-s.cfg.HealWindow)

	events, err := s.store.RecentSince(ctx, since, s.cache.MaxSize())
	if err != nil {
		return errors.Wrap(err, "Scheduler", "RunHeal", "query recent store records")
	}
	if len(events) == 0 {
		s.logger.Debug("No recent store records to heal", "component", "reconcile")
		return nil
	}

	// Ascending order is preserved per stream by the grouping below.
	byStream := make(map[string][]event.Event)
	order := make([]string, 0, 4)
	for _, ev := range events {
		if _, seen := byStream[ev.StreamID]; !seen {
			order = append(order, ev.StreamID)
		}
		byStream[ev.StreamID] = append(byStream[ev.StreamID], ev)
	}

	healed := 0
	for _, streamID := range order {
		if err := s.cache.Append(ctx, streamID, byStream[streamID]); err != nil {
			s.logger.Warn("Cache heal append failed",
				"component", "reconcile",
				"stream", streamID,
				"error", err)
			continue
		}
		healed += len(byStream[streamID])
	}

	s.logger.Info("Cache heal completed",
		"component", "reconcile",
		"started_at", start,
		"count", healed,
		"streams", len(order),
		"duration", time.Since(start))
	if s.metrics != nil {
		s.metrics.RecordOperation("reconcile", "cache_heal", time.Since(start))
	}
	return nil
}

// RunRetention deletes store records older than the retention horizon.
// This is the only deletion path in the system; cache eviction is
// independent and unrelated to this horizon.
func (s *Scheduler) RunRetention(ctx context.Context) error {
	start := time.Now()
	cutoff := start.Add(-s.cfg.RetentionHorizon)

	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return errors.Wrap(err, "Scheduler", "RunRetention", "delete old store records")
	}

	s.logger.Info("Retention completed",
		"component", "reconcile",
		"started_at", start,
		"deleted", deleted,
		"horizon", s.cfg.RetentionHorizon,
		"duration", time.Since(start))
	if s.metrics != nil {
		s.metrics.RecordOperation("reconcile", "retention", time.Since(start))
	}
	return nil
}

// RunHealthStats logs total store size and scheduler uptime.
func (s *Scheduler) RunHealthStats(ctx context.Context) error {
	total, err := s.store.Count(ctx, "")
	if err != nil {
		return errors.Wrap(err, "Scheduler", "RunHealthStats", "count store records")
	}

	s.logger.Info("Health stats",
		"component", "reconcile",
		"total_messages", total,
		"uptime", time.Since(s.startTime))
	return nil
}
