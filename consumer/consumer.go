// Package consumer drains the durable log into the persistent store in
// batches. Two independent triggers end a batch: buffer length reaching
// the batch limit, and wall-clock time since the last flush reaching the
// flush interval (checked on every append and by a periodic timer, so an
// idle buffer is never held mid-batch forever). Log positions are
// committed only after the store flush attempt completes, giving
// at-least-once delivery to the store across crashes.
package consumer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Aayush-engineer/chatflux/errors"
	"github.com/Aayush-engineer/chatflux/event"
	"github.com/Aayush-engineer/chatflux/metric"
	"github.com/Aayush-engineer/chatflux/pkg/retry"
)

// State is the consumer lifecycle state.
type State int

// Consumer states
const (
	StateIdle State = iota
	StateAccumulating
	StateFlushing
	StateDraining
	StateStopped
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateFlushing:
		return "flushing"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Message is one pulled log entry plus its commit handle.
type Message struct {
	Event  event.Event
	Commit func() error
}

// Source is the pull side of the durable log.
type Source interface {
	Fetch(ctx context.Context, batchSize int, maxWait time.Duration) ([]Message, error)
}

// Store receives flushed batches.
type Store interface {
	InsertBatch(ctx context.Context, events []event.Event) (int, error)
}

// Config holds the consumer's batching parameters.
type Config struct {
	BatchLimit       int
	FlushInterval    time.Duration
	FetchTimeout     time.Duration
	MaxFlushAttempts int
}

// Consumer accumulates pulled events and flushes them to the store.
type Consumer struct {
	source  Source
	store   Store
	cfg     Config
	metrics *metric.Metrics
	logger  *slog.Logger

	// One mutex serializes the buffer, the last-flush clock, and the
	// state: the append path and the periodic timer must see the same
	// view of "currently flushing" so an already-swapped buffer is never
	// flushed twice.
	mu        sync.Mutex
	buffer    []Message
	lastFlush time.Time
	state     State

	shutdown  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	running   bool
}

// New creates a batching consumer.
func New(source Source, store Store, cfg Config, metrics *metric.Metrics, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 10
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = time.Second
	}
	if cfg.MaxFlushAttempts <= 0 {
		cfg.MaxFlushAttempts = 1
	}
	return &Consumer{
		source:   source,
		store:    store,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
		buffer:   make([]Message, 0, cfg.BatchLimit),
		shutdown: make(chan struct{}),
		state:    StateIdle,
	}
}

// State returns the current lifecycle state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins pulling from the log. It launches the pull loop and the
// periodic flush timer and returns immediately.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Consumer", "Start", "check running state")
	}
	c.running = true
	c.state = StateAccumulating
	c.lastFlush = time.Now()
	c.mu.Unlock()

	c.setStateMetric(StateAccumulating)

	c.wg.Add(2)
	go c.pullLoop(ctx)
	go c.timerLoop(ctx)

	c.logger.Info("Batching consumer started",
		"component", "consumer",
		"batch_limit", c.cfg.BatchLimit,
		"flush_interval", c.cfg.FlushInterval)
	return nil
}

// pullLoop fetches log batches and feeds the buffer.
func (c *Consumer) pullLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-c.shutdown:
			return
		default:
		}

		msgs, err := c.source.Fetch(ctx, c.cfg.BatchLimit, c.cfg.FetchTimeout)
		if err != nil {
			c.logger.Warn("Log fetch failed",
				"component", "consumer",
				"error", err)
			if c.metrics != nil {
				c.metrics.RecordError("consumer", errors.Classify(err).String())
			}
			select {
			case <-c.shutdown:
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for i := range msgs {
			c.append(ctx, msgs[i])
		}
	}
}

// timerLoop fires the time trigger even when no events arrive.
func (c *Consumer) timerLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.maybeFlush(ctx, false)
		}
	}
}

// append adds one message and checks both flush triggers.
func (c *Consumer) append(ctx context.Context, msg Message) {
	c.mu.Lock()
	c.buffer = append(c.buffer, msg)
	sizeTrigger := len(c.buffer) >= c.cfg.BatchLimit
	c.mu.Unlock()

	c.maybeFlush(ctx, sizeTrigger)
}

// maybeFlush swaps the buffer out under the mutex when a trigger holds,
// then flushes the swapped-out batch with the lock released so new events
// keep accumulating concurrently.
func (c *Consumer) maybeFlush(ctx context.Context, sizeTrigger bool) {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	timeTrigger := time.Since(c.lastFlush) >= c.cfg.FlushInterval
	if !sizeTrigger && len(c.buffer) < c.cfg.BatchLimit && !timeTrigger {
		c.mu.Unlock()
		return
	}

	batch := c.buffer
	c.buffer = make([]Message, 0, c.cfg.BatchLimit)
	c.lastFlush = time.Now()
	c.state = StateFlushing
	c.mu.Unlock()

	c.setStateMetric(StateFlushing)
	c.flush(ctx, batch)

	c.mu.Lock()
	if c.state == StateFlushing {
		c.state = StateAccumulating
	}
	c.mu.Unlock()
	c.setStateMetric(StateAccumulating)
}

// flush submits one swapped-out batch to the store and commits every log
// position afterwards, success or logged failure. The store insert gets a
// bounded retry; an exhausted batch is dropped with an error log and a
// counter, never silently.
func (c *Consumer) flush(ctx context.Context, batch []Message) {
	if len(batch) == 0 {
		return
	}

	events := make([]event.Event, len(batch))
	for i := range batch {
		events[i] = batch[i].Event
	}

	start := time.Now()
	var inserted int
	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  c.cfg.MaxFlushAttempts,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}, func() error {
		n, err := c.store.InsertBatch(ctx, events)
		inserted = n
		if errors.IsPartialBatch(err) {
			// The successful subset is in; retrying would duplicate it.
			return retry.NonRetryable(err)
		}
		if errors.IsInvalid(err) {
			return retry.NonRetryable(err)
		}
		return err
	})

	switch {
	case err == nil:
		c.logger.Info("Flushed batch to store",
			"component", "consumer",
			"count", inserted,
			"duration", time.Since(start))
	case errors.IsPartialBatch(err) || retry.IsNonRetryable(err):
		c.logger.Warn("Partial batch insert",
			"component", "consumer",
			"inserted", inserted,
			"failed", len(events)-inserted,
			"error", err)
		if c.metrics != nil {
			c.metrics.RecordError("consumer", "partial_batch")
		}
	default:
		c.logger.Error("Dropping batch after exhausting flush retries",
			"component", "consumer",
			"count", len(events),
			"error", err)
		if c.metrics != nil {
			c.metrics.RecordBatchDropped()
			c.metrics.RecordError("consumer", errors.Classify(err).String())
		}
	}

	if c.metrics != nil {
		c.metrics.RecordFlush(len(events))
	}

	// Commit only after the flush attempt completed: a crash before this
	// point re-delivers the batch on restart.
	for i := range batch {
		if batch[i].Commit == nil {
			continue
		}
		if err := batch[i].Commit(); err != nil {
			c.logger.Warn("Failed to commit log position",
				"component", "consumer",
				"error", err)
		}
	}
}

// Stop drains and stops the consumer: the pull and timer loops exit, any
// buffered events are flushed synchronously, and only then does the
// consumer report stopped. Safe to call more than once.
func (c *Consumer) Stop(timeout time.Duration) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.state = StateDraining
	c.mu.Unlock()
	c.setStateMetric(StateDraining)

	c.closeOnce.Do(func() {
		close(c.shutdown)
	})

	waitCh := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waitCh)
	}()

	var timedOut bool
	select {
	case <-waitCh:
	case <-time.After(timeout):
		timedOut = true
		c.logger.Error("Consumer loops did not exit before timeout",
			"component", "consumer",
			"timeout", timeout)
	}

	// Drain: whatever is buffered goes to the store before we report
	// stopped, so a clean shutdown loses nothing.
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	c.mu.Lock()
	batch := c.buffer
	c.buffer = nil
	c.mu.Unlock()

	if len(batch) > 0 {
		c.logger.Info("Draining buffered events",
			"component", "consumer",
			"count", len(batch))
		c.flush(ctx, batch)
	}

	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()
	c.setStateMetric(StateStopped)

	if timedOut {
		return errors.WrapTransient(errors.ErrConnectionTimeout, "Consumer", "Stop", "wait for loops")
	}
	return nil
}

func (c *Consumer) setStateMetric(s State) {
	if c.metrics != nil {
		c.metrics.RecordConsumerState(int(s))
	}
}
