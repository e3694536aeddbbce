// Copyright 2025 James Ross
// Package barrier implements the group-ready barrier from §4.3/§12: when a
// group has more than one task and declares `barrier`, non-lead finish
// events accumulate into a Redis set keyed
// barrier:{workflow_id}:{group}:osmo-group-ready; once the set reaches the
// group's active task count, a token is pushed to every waiting task's
// action queue instead of a synchronous notification.
package barrier

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Token is pushed onto a task's action queue when a barrier fires or a
// lead reschedules its peers; Kind distinguishes the two triggers.
type Token struct {
	ID  string
	Kind string // "barrier" or "restart"
	TTL time.Duration
}

// Barrier manages the group-ready membership set and per-task action
// queues over Redis.
type Barrier struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Barrier {
	return &Barrier{rdb: rdb}
}

func groupReadyKey(workflowID, group string) string {
	return fmt.Sprintf("barrier:%s:%s:osmo-group-ready", workflowID, group)
}

func actionQueueKey(workflowID, group, task string) string {
	return fmt.Sprintf("barrier:%s:%s:%s:actions", workflowID, group, task)
}

// Arrive records that task finished, and reports whether the member-set
// cardinality has now reached activeGroupSize, the trigger for firing the
// barrier (§12: activeGroupSize counts only currently-active tasks, not the
// group's originally declared task count).
func (b *Barrier) Arrive(ctx context.Context, workflowID, group, task string, activeGroupSize int) (ready bool, err error) {
	key := groupReadyKey(workflowID, group)
	if err := b.rdb.SAdd(ctx, key, task).Err(); err != nil {
		return false, fmt.Errorf("barrier arrive: %w", err)
	}
	n, err := b.rdb.SCard(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("barrier cardinality: %w", err)
	}
	return int(n) >= activeGroupSize, nil
}

// Wipe clears the group-ready membership set (called when the lead task
// finishes and has_group_barrier, §4.2.1 step 3.c).
func (b *Barrier) Wipe(ctx context.Context, workflowID, group string) error {
	if err := b.rdb.Del(ctx, groupReadyKey(workflowID, group)).Err(); err != nil {
		return fmt.Errorf("barrier wipe: %w", err)
	}
	return nil
}

// PushToken pushes a fresh barrier/restart token onto task's action queue
// with the given TTL (remaining group timeout for a barrier fire, per §12).
func (b *Barrier) PushToken(ctx context.Context, workflowID, group, task, kind string, ttl time.Duration) (Token, error) {
	tok := Token{ID: kind + "-" + uuid.NewString(), Kind: kind, TTL: ttl}
	key := actionQueueKey(workflowID, group, task)
	if err := b.rdb.LPush(ctx, key, tok.ID).Err(); err != nil {
		return Token{}, fmt.Errorf("push action token: %w", err)
	}
	if err := b.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return Token{}, fmt.Errorf("set action queue ttl: %w", err)
	}
	return tok, nil
}

// PushBarrierToEveryPeer fires the barrier for every task name in peers,
// pushing a freshly generated barrier token onto each one's action queue.
func (b *Barrier) PushBarrierToEveryPeer(ctx context.Context, workflowID, group string, peers []string, remainingTimeout time.Duration) error {
	for _, task := range peers {
		if _, err := b.PushToken(ctx, workflowID, group, task, "barrier", remainingTimeout); err != nil {
			return err
		}
	}
	return nil
}

// PushRestartToEveryPeer is the reschedule-path analogue: a lead's
// RESCHEDULED transition restarts its non-lead peers via a "restart" token
// rather than a synchronous RPC (§12, §5 job-driven control flow).
func (b *Barrier) PushRestartToEveryPeer(ctx context.Context, workflowID, group string, peers []string, ttl time.Duration) error {
	for _, task := range peers {
		if _, err := b.PushToken(ctx, workflowID, group, task, "restart", ttl); err != nil {
			return err
		}
	}
	return nil
}
