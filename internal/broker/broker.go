// Copyright 2025 James Ross
// Package broker implements the durable FIFO job queue described in spec
// §4.1: a single FRONTEND queue plus one BACKEND_JOBS:<backend> queue per
// backend, a Redis-SETNX dedup table, a delayed-visibility sorted set, and
// compare-and-set retry counters. It is the only place in OSMO that talks
// to Redis for job transport (internal/broker/redis_broker.go); everything
// above this package only sees the Broker interface.
package broker

import (
	"context"
	"time"
)

// Handle identifies an in-flight dequeued job so Ack/Reject know which
// queue entry to retire. It is opaque to callers.
type Handle struct {
	Queue   string
	Payload string
}

// Broker is the contract FrontendWorker and BackendSession's worker
// channel both drive. Implementations must be safe for concurrent use by
// many replicas; correctness relies on Redis-side atomicity, not
// in-process locks (§5).
type Broker interface {
	// Enqueue persists job on the queue selected by routing.
	Enqueue(ctx context.Context, queueKey string, payload string) error

	// EnqueueDelayed becomes visible for Dequeue only after now+d. A
	// DelayedMonitor transfers due entries into the ready queue.
	EnqueueDelayed(ctx context.Context, queueKey string, payload string, d time.Duration) error

	// Dequeue blocks (up to the implementation's poll timeout) for the
	// next ready entry on queueKey.
	Dequeue(ctx context.Context, queueKey string) (payload string, handle Handle, ok bool, err error)

	// Ack removes handle's entry from its processing list permanently.
	Ack(ctx context.Context, handle Handle) error

	// Reject returns handle's entry to its queue (requeue=true) or drops
	// it (requeue=false, e.g. close code 1009 in §4.4).
	Reject(ctx context.Context, handle Handle, requeue bool) error

	// Dedup implements I5: the first caller with a given jobID writes
	// uuid and returns accepted=true; later callers observe the stored
	// uuid and accepted=false if it differs from theirs.
	Dedup(ctx context.Context, jobID, jobUUID string, ttl time.Duration) (accepted bool, storedUUID string, err error)

	// RetryCounter atomically increments and returns the retry count for
	// jobID, used by FrontendWorker to cap redeliveries at
	// max_retry_per_job.
	RetryCounter(ctx context.Context, jobID string) (int64, error)
}

// MinDedupTTL is the floor spec §4.1 places on the dedup TTL.
const MinDedupTTL = 5 * 24 * time.Hour

// FrontendQueueKey is the single queue every frontend job routes to.
const FrontendQueueKey = "osmo:queue:frontend"

// BackendQueueKey returns the per-backend queue key a backend job routes
// to (spec §4.1: "a single FRONTEND queue, or per-backend
// BACKEND_JOBS:<backend> queue").
func BackendQueueKey(backend string) string {
	return "osmo:queue:backend:" + backend
}
