// Package chatflux is a real-time chat event distribution and durability
// pipeline.
//
// # Architecture
//
// One inbound event is fanned out concurrently to three independent sinks:
//
//	            ┌─────────────────┐
//	 inbound ──►│     Fan-out     │
//	 event      │   Coordinator   │
//	            └──┬─────┬─────┬──┘
//	               │     │     │
//	       ┌───────┘     │     └────────┐
//	       ▼             ▼              ▼
//	┌────────────┐ ┌───────────┐ ┌─────────────┐
//	│ Broadcast  │ │  Bounded  │ │ Durable Log │
//	│ (NATS core)│ │Cache(Redis│ │ (JetStream) │
//	│            │ │   list)   │ │             │
//	└────────────┘ └───────────┘ └──────┬──────┘
//	 live clients    fast reads         │ pull + manual ack
//	                                    ▼
//	                             ┌─────────────┐
//	                             │  Batching   │ size/time triggers,
//	                             │  Consumer   │ drain on shutdown
//	                             └──────┬──────┘
//	                                    ▼
//	                             ┌─────────────┐
//	                             │ Store(SQLite│◄── retention job prunes
//	                             └──────┬──────┘
//	                                    │ cache-heal job repairs
//	                                    ▼
//	                               Redis cache
//
// The sinks race independently: a failure in one never blocks or cancels the
// others, and convergence between the cache and the store is eventual,
// driven by the reconciliation jobs. Delivery to the store is at-least-once;
// broadcast is best-effort with no acknowledgment.
//
// # Packages
//
// Adapters:
//   - broadcast: fire-and-forget pub/sub over core NATS
//   - eventlog: durable append log over JetStream with manual commit
//   - cache: bounded per-stream Redis list with atomic append-and-trim
//   - store: SQLite event store with partial-failure tolerant batch insert
//
// Pipeline:
//   - fanout: ingestion, validation, timestamping, concurrent sink writes
//   - consumer: batch accumulation and flush to the store
//   - reconcile: periodic cache healing and store retention
//   - reader: cache-then-store read path
//
// Infrastructure:
//   - natsclient: NATS connection management
//   - config: environment-driven configuration
//   - errors: error classification (transient/invalid/fatal)
//   - metric: Prometheus metrics
//   - server: HTTP read API, health, metrics exposition
//   - service: pipeline assembly and lifecycle
package chatflux
