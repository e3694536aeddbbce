// Copyright 2025 James Ross
package broker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/osmo-project/control-plane/internal/obs"
)

// transferDueLua atomically pops every ZSET member whose score (visibility
// timestamp) is <= now and pushes it onto the ready list, so concurrent
// monitor replicas never double-deliver a due entry (spec §4.1: "Monitor
// must be safe against multiple replicas (transactional move)").
const transferDueLua = `
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
for _, payload in ipairs(due) do
	redis.call("LPUSH", KEYS[2], payload)
	redis.call("ZREM", KEYS[1], payload)
end
return #due
`

// DelayedMonitor periodically transfers due entries from a queue's
// delayed ZSET into its ready list. One instance can safely run per
// replica; the Lua script makes the transfer idempotent across replicas.
type DelayedMonitor struct {
	rdb      *redis.Client
	log      *zap.Logger
	interval time.Duration
	queues   []string
}

// NewDelayedMonitor watches the given ready-queue keys' delayed ZSETs.
func NewDelayedMonitor(rdb *redis.Client, log *zap.Logger, interval time.Duration, queues []string) *DelayedMonitor {
	return &DelayedMonitor{rdb: rdb, log: log, interval: interval, queues: queues}
}

// Run blocks, sweeping every interval until ctx is canceled.
func (m *DelayedMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepOnce(ctx)
		}
	}
}

func (m *DelayedMonitor) sweepOnce(ctx context.Context) {
	now := time.Now().Unix()
	for _, queue := range m.queues {
		delayed := queue + ":delayed"
		res, err := m.rdb.Eval(ctx, transferDueLua, []string{delayed, queue}, now).Result()
		if err != nil {
			m.log.Warn("delayed monitor transfer failed", obs.String("queue", queue), obs.Err(err))
			continue
		}
		if n, ok := res.(int64); ok && n > 0 {
			m.log.Debug("transferred delayed jobs", obs.String("queue", queue), obs.Int("count", int(n)))
		}
	}
}
