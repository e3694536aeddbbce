// Copyright 2025 James Ross
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroker implements Broker on top of Redis lists (ready queues and
// per-worker processing lists via BRPOPLPUSH), a ZSET for delayed
// visibility, and SETNX for dedup.
type RedisBroker struct {
	rdb           *redis.Client
	log           *zap.Logger
	popTimeout    time.Duration
	processingTTL time.Duration
	workerID      string
}

// New constructs a RedisBroker. workerID distinguishes this replica's
// processing lists from others'. processingTTL is stored on the broker;
// no method in this package reads it.
func New(rdb *redis.Client, log *zap.Logger, workerID string, popTimeout, processingTTL time.Duration) *RedisBroker {
	return &RedisBroker{rdb: rdb, log: log, popTimeout: popTimeout, processingTTL: processingTTL, workerID: workerID}
}

func (b *RedisBroker) processingListKey(queueKey string) string {
	return fmt.Sprintf("%s:processing:%s", queueKey, b.workerID)
}

func (b *RedisBroker) delayedKey(queueKey string) string {
	return queueKey + ":delayed"
}

func (b *RedisBroker) Enqueue(ctx context.Context, queueKey string, payload string) error {
	if err := b.rdb.LPush(ctx, queueKey, payload).Err(); err != nil {
		return fmt.Errorf("broker enqueue %s: %w", queueKey, err)
	}
	return nil
}

// EnqueueDelayed adds payload to a ZSET keyed by visibility timestamp
// rather than the ready list; DelayedMonitor.Run moves due members across.
func (b *RedisBroker) EnqueueDelayed(ctx context.Context, queueKey string, payload string, d time.Duration) error {
	visibleAt := time.Now().Add(d).Unix()
	z := redis.Z{Score: float64(visibleAt), Member: payload}
	if err := b.rdb.ZAdd(ctx, b.delayedKey(queueKey), z).Err(); err != nil {
		return fmt.Errorf("broker enqueue delayed %s: %w", queueKey, err)
	}
	return nil
}

// Dequeue uses BRPOPLPUSH so a claimed-but-unacked entry stays in this
// replica's processing list until Ack or Reject removes it; nothing in this
// package moves entries left there by a crashed consumer back to the ready
// queue.
func (b *RedisBroker) Dequeue(ctx context.Context, queueKey string) (string, Handle, bool, error) {
	procList := b.processingListKey(queueKey)
	v, err := b.rdb.BRPopLPush(ctx, queueKey, procList, b.popTimeout).Result()
	if err == redis.Nil {
		return "", Handle{}, false, nil
	}
	if err != nil {
		return "", Handle{}, false, fmt.Errorf("broker dequeue %s: %w", queueKey, err)
	}
	return v, Handle{Queue: procList, Payload: v}, true, nil
}

func (b *RedisBroker) Ack(ctx context.Context, handle Handle) error {
	if err := b.rdb.LRem(ctx, handle.Queue, 1, handle.Payload).Err(); err != nil {
		return fmt.Errorf("broker ack: %w", err)
	}
	return nil
}

// Reject either pushes the payload back to the head of its origin ready
// queue (requeue=true) or simply drops it from the processing list
// (requeue=false: close code 1009 in §4.4 must not retry).
func (b *RedisBroker) Reject(ctx context.Context, handle Handle, requeue bool) error {
	if requeue {
		readyQueue := originQueueFromProcessingKey(handle.Queue)
		if err := b.rdb.LPush(ctx, readyQueue, handle.Payload).Err(); err != nil {
			return fmt.Errorf("broker reject requeue: %w", err)
		}
	}
	if err := b.rdb.LRem(ctx, handle.Queue, 1, handle.Payload).Err(); err != nil {
		return fmt.Errorf("broker reject cleanup: %w", err)
	}
	return nil
}

func originQueueFromProcessingKey(processingKey string) string {
	// processingListKey appends ":processing:<workerID>"; strip it back off.
	const suffix = ":processing:"
	if idx := indexOfLastSuffix(processingKey, suffix); idx >= 0 {
		return processingKey[:idx]
	}
	return processingKey
}

func indexOfLastSuffix(s, suffix string) int {
	for i := len(s) - len(suffix); i >= 0; i-- {
		if s[i:i+len(suffix)] == suffix {
			return i
		}
	}
	return -1
}

// dedupLuaSetNX stores jobUUID only if the dedup key is absent, and always
// returns whatever UUID now occupies the key, so the caller can tell a
// fresh write from an observed collision in a single round trip.
const dedupLuaSetNX = `
if redis.call("SET", KEYS[1], ARGV[1], "NX", "EX", ARGV[2]) then
	return ARGV[1]
end
return redis.call("GET", KEYS[1])
`

// Dedup implements I5. ttl must be >= MinDedupTTL per spec §4.1.
func (b *RedisBroker) Dedup(ctx context.Context, jobID, jobUUID string, ttl time.Duration) (bool, string, error) {
	if ttl < MinDedupTTL {
		ttl = MinDedupTTL
	}
	key := "osmo:dedupe:" + jobID
	res, err := b.rdb.Eval(ctx, dedupLuaSetNX, []string{key}, jobUUID, int64(ttl.Seconds())).Result()
	if err != nil {
		return false, "", fmt.Errorf("broker dedup %s: %w", jobID, err)
	}
	stored, _ := res.(string)
	return stored == jobUUID, stored, nil
}

func (b *RedisBroker) RetryCounter(ctx context.Context, jobID string) (int64, error) {
	key := "osmo:retries:" + jobID
	n, err := b.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("broker retry counter %s: %w", jobID, err)
	}
	if n == 1 {
		// first increment also sets an expiry so abandoned counters don't
		// accumulate forever once their job is long gone.
		b.rdb.Expire(ctx, key, MinDedupTTL)
	}
	return n, nil
}

// Log exposes the broker's logger so callers that embed RedisBroker-backed
// components (DelayedMonitor) can share one sink instead of threading a
// second *zap.Logger through.
func (b *RedisBroker) Log() *zap.Logger { return b.log }
