// Package service assembles the pipeline: it owns adapter construction,
// dependency wiring, ordered startup, and one-shot ordered shutdown.
// Nothing here implements pipeline semantics; it only connects the
// packages that do.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aayush-engineer/chatflux/broadcast"
	"github.com/Aayush-engineer/chatflux/cache"
	"github.com/Aayush-engineer/chatflux/config"
	"github.com/Aayush-engineer/chatflux/consumer"
	"github.com/Aayush-engineer/chatflux/errors"
	"github.com/Aayush-engineer/chatflux/eventlog"
	"github.com/Aayush-engineer/chatflux/fanout"
	"github.com/Aayush-engineer/chatflux/metric"
	"github.com/Aayush-engineer/chatflux/natsclient"
	"github.com/Aayush-engineer/chatflux/reader"
	"github.com/Aayush-engineer/chatflux/reconcile"
	"github.com/Aayush-engineer/chatflux/server"
	"github.com/Aayush-engineer/chatflux/store"
)

// logSource bridges the durable log reader to the consumer's pull
// interface.
type logSource struct {
	reader *eventlog.Reader
}

func (s *logSource) Fetch(ctx context.Context, batchSize int, maxWait time.Duration) ([]consumer.Message, error) {
	msgs, err := s.reader.Fetch(ctx, batchSize, maxWait)
	if err != nil {
		return nil, err
	}
	out := make([]consumer.Message, len(msgs))
	for i := range msgs {
		out[i] = consumer.Message{Event: msgs[i].Event, Commit: msgs[i].Commit}
	}
	return out, nil
}

// Pipeline is the fully wired event pipeline.
type Pipeline struct {
	cfg    config.Config
	logger *slog.Logger

	registry  *metric.Registry
	nats      *natsclient.Client
	cacheAd   *cache.Adapter
	storeAd   *store.Store
	log       *eventlog.Log
	broadcast *broadcast.Adapter
	fanout    *fanout.Coordinator
	consumer  *consumer.Consumer
	scheduler *reconcile.Scheduler
	reader    *reader.Reader
	server    *server.Server

	started bool
}

// New wires the pipeline from config. No connections are opened here;
// Start does that in dependency order.
func New(cfg config.Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:      cfg,
		logger:   logger,
		registry: metric.NewRegistry(),
	}
}

// Fanout exposes the ingestion coordinator for the hosting transport.
func (p *Pipeline) Fanout() *fanout.Coordinator {
	return p.fanout
}

// Broadcast exposes the subscription side for the hosting transport.
func (p *Pipeline) Broadcast() *broadcast.Adapter {
	return p.broadcast
}

// Metrics exposes the shared metrics set.
func (p *Pipeline) Metrics() *metric.Metrics {
	return p.registry.Metrics
}

// Start opens adapters and starts the loops in dependency order: the
// durable pieces first, then the coordinators that write to them, then
// the HTTP surface. A failure partway rolls back what already started.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.started {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Pipeline", "Start", "check started state")
	}

	metrics := p.registry.Metrics

	storeAd, err := store.Open(p.cfg.Store.Path, p.cfg.Store.BusyTimeout, p.logger)
	if err != nil {
		return errors.Wrap(err, "Pipeline", "Start", "open store")
	}
	p.storeAd = storeAd

	redisClient, err := cache.Connect(ctx, p.cfg.Redis.Addr, p.cfg.Redis.Password, p.cfg.Redis.DB)
	if err != nil {
		p.closeStore()
		return errors.Wrap(err, "Pipeline", "Start", "connect cache")
	}
	cacheAd := cache.New(redisClient, p.cfg.Redis.KeyPrefix, p.cfg.Redis.MaxMessages, p.logger)
	p.cacheAd = cacheAd

	natsClient, err := natsclient.NewClient(p.cfg.NATS.URL,
		natsclient.WithLogger(p.logger),
		natsclient.WithConnectTimeout(p.cfg.NATS.ConnectTimeout),
		natsclient.WithDrainTimeout(p.cfg.NATS.DrainTimeout),
		natsclient.WithClientName("chatflux"),
	)
	if err != nil {
		p.closeCache(ctx)
		p.closeStore()
		return errors.Wrap(err, "Pipeline", "Start", "create broker client")
	}
	natsClient.OnHealthChange(func(healthy bool) {
		metrics.RecordBrokerStatus(healthy)
	})
	if err := natsClient.Connect(ctx); err != nil {
		p.closeCache(ctx)
		p.closeStore()
		return errors.Wrap(err, "Pipeline", "Start", "connect broker")
	}
	p.nats = natsClient
	metrics.RecordBrokerStatus(true)

	p.log = eventlog.New(natsClient, p.cfg.NATS.StreamName, p.cfg.NATS.SubjectPrefix, p.logger)
	if err := p.log.Init(ctx); err != nil {
		p.teardownAdapters(ctx)
		return errors.Wrap(err, "Pipeline", "Start", "ensure durable log stream")
	}

	p.broadcast = broadcast.New(natsClient, p.cfg.NATS.BroadcastPrefix, p.logger)
	p.fanout = fanout.New(p.broadcast, cacheAd, p.log, metrics, p.logger)

	logReader, err := p.log.OpenReader(ctx, p.cfg.NATS.ConsumerName)
	if err != nil {
		p.teardownAdapters(ctx)
		return errors.Wrap(err, "Pipeline", "Start", "open log reader")
	}

	p.consumer = consumer.New(&logSource{reader: logReader}, storeAd, consumer.Config{
		BatchLimit:       p.cfg.Consumer.BatchLimit,
		FlushInterval:    p.cfg.Consumer.FlushInterval,
		FetchTimeout:     p.cfg.Consumer.FetchTimeout,
		MaxFlushAttempts: p.cfg.Consumer.MaxFlushAttempts,
	}, metrics, p.logger)
	if err := p.consumer.Start(ctx); err != nil {
		p.teardownAdapters(ctx)
		return errors.Wrap(err, "Pipeline", "Start", "start consumer")
	}

	p.scheduler = reconcile.New(cacheAd, storeAd, reconcile.Config{
		HealSchedule:      p.cfg.Reconcile.HealSchedule,
		HealWindow:        p.cfg.Reconcile.HealWindow,
		RetentionSchedule: p.cfg.Reconcile.RetentionSchedule,
		RetentionHorizon:  p.cfg.Reconcile.RetentionHorizon,
		HealthSchedule:    p.cfg.Reconcile.HealthSchedule,
	}, metrics, p.logger)
	if err := p.scheduler.Start(ctx); err != nil {
		_ = p.consumer.Stop(p.cfg.ShutdownTimeout)
		p.teardownAdapters(ctx)
		return errors.Wrap(err, "Pipeline", "Start", "start reconciliation scheduler")
	}

	p.reader = reader.New(cacheAd, storeAd, reader.Limits{
		DefaultLimit: p.cfg.Read.DefaultLimit,
		MaxLimit:     p.cfg.Read.MaxLimit,
	}, metrics, p.logger)

	p.server = server.New(
		p.cfg.HTTPPort,
		p.reader,
		storeAd,
		cacheAd,
		natsClient,
		storeAd,
		p.registry.Handler(),
		p.logger,
	)
	if err := p.server.Start(ctx); err != nil {
		_ = p.scheduler.Stop(p.cfg.ShutdownTimeout)
		_ = p.consumer.Stop(p.cfg.ShutdownTimeout)
		p.teardownAdapters(ctx)
		return errors.Wrap(err, "Pipeline", "Start", "start HTTP server")
	}

	p.started = true
	p.logger.Info("Pipeline started",
		"component", "service",
		"http_port", p.cfg.HTTPPort,
		"stream", p.cfg.NATS.StreamName)
	return nil
}

// Stop performs the one-shot ordered shutdown: stop accepting, drain the
// consumer, stop the scheduler and HTTP server, then close adapters. Each
// step gets its share of the shutdown timeout; failures are logged and do
// not abort later steps.
func (p *Pipeline) Stop(ctx context.Context) error {
	if !p.started {
		return nil
	}
	p.started = false

	timeout := p.cfg.ShutdownTimeout
	p.logger.Info("Pipeline stopping", "component", "service", "timeout", timeout)

	p.fanout.StopAccepting()

	if err := p.consumer.Stop(timeout); err != nil {
		p.logger.Error("Consumer stop failed",
			"component", "service",
			"error", err)
	}

	if err := p.scheduler.Stop(timeout); err != nil {
		p.logger.Error("Scheduler stop failed",
			"component", "service",
			"error", err)
	}

	if err := p.server.Stop(timeout); err != nil {
		p.logger.Error("HTTP server stop failed",
			"component", "service",
			"error", err)
	}

	p.teardownAdapters(ctx)

	p.logger.Info("Pipeline stopped", "component", "service")
	return nil
}

// teardownAdapters closes the broker, cache, and store connections in
// reverse dependency order.
func (p *Pipeline) teardownAdapters(ctx context.Context) {
	if p.nats != nil {
		if err := p.nats.Close(ctx); err != nil {
			p.logger.Warn("Broker close failed",
				"component", "service",
				"error", err)
		}
		p.nats = nil
	}
	p.closeCache(ctx)
	p.closeStore()
}

func (p *Pipeline) closeCache(_ context.Context) {
	if p.cacheAd == nil {
		return
	}
	if err := p.cacheAd.Close(); err != nil {
		p.logger.Warn("Cache close failed",
			"component", "service",
			"error", err)
	}
	p.cacheAd = nil
}

func (p *Pipeline) closeStore() {
	if p.storeAd == nil {
		return
	}
	if err := p.storeAd.Close(); err != nil {
		p.logger.Warn("Store close failed",
			"component", "service",
			"error", err)
	}
	p.storeAd = nil
}
