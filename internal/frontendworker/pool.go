// Copyright 2025 James Ross
package frontendworker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/osmo-project/control-plane/internal/breaker"
	"github.com/osmo-project/control-plane/internal/broker"
	"github.com/osmo-project/control-plane/internal/config"
	"github.com/osmo-project/control-plane/internal/job"
	"github.com/osmo-project/control-plane/internal/obs"
)

// Handler executes one job's side effects and reports an Outcome (§7).
type Handler func(ctx context.Context, j job.Job) (Outcome, error)

// Pool is the horizontally-scalable FrontendWorker: config.FrontendWorker.PoolSize
// goroutines each dequeue from the single FRONTEND queue, dedup, cap
// retries, and dispatch by job_type (§4.2).
type Pool struct {
	broker   broker.Broker
	log      *zap.Logger
	cfg      config.FrontendWorker
	dedupTTL time.Duration
	maxRetry int
	cb       *breaker.CircuitBreaker
	handlers map[job.Type]Handler
	onFailure func(ctx context.Context, j job.Job)
}

func NewPool(b broker.Broker, log *zap.Logger, cfg config.FrontendWorker, brokerCfg config.Broker) *Pool {
	return &Pool{
		broker:   b,
		log:      log,
		cfg:      cfg,
		dedupTTL: brokerCfg.DedupTTL,
		maxRetry: brokerCfg.MaxRetryPerJob,
		cb:       breaker.New(1*time.Minute, 30*time.Second, 0.5, 20),
		handlers: make(map[job.Type]Handler),
	}
}

// Register wires a handler for a job type; call once per type at startup.
func (p *Pool) Register(t job.Type, h Handler) {
	p.handlers[t] = h
}

// OnFailure sets the hook invoked when a job exhausts max_retry_per_job or a
// handler reports FailedNoRetry, the §7 handle_failure path. Typically
// wired to enqueue an UpdateGroup(FAILED_SERVER_ERROR) for the affected group.
func (p *Pool) OnFailure(fn func(ctx context.Context, j job.Job)) {
	p.onFailure = fn
}

// Run starts cfg.PoolSize workers pulling from the frontend queue until ctx
// is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.PoolSize; i++ {
		wg.Add(1)
		id := fmt.Sprintf("frontend-%d", i)
		go func(workerID string) {
			defer wg.Done()
			p.runOne(ctx, workerID)
		}(id)
	}
	wg.Wait()
	return nil
}

func (p *Pool) runOne(ctx context.Context, workerID string) {
	for ctx.Err() == nil {
		if !p.cb.Allow() {
			time.Sleep(200 * time.Millisecond)
			continue
		}
		deqCtx, span := obs.StartDequeueSpan(ctx, broker.FrontendQueueKey)
		payload, handle, ok, err := p.broker.Dequeue(deqCtx, broker.FrontendQueueKey)
		if err != nil {
			obs.RecordError(deqCtx, err)
			span.End()
			if ctx.Err() != nil {
				return
			}
			p.log.Warn("dequeue error", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}
		span.End()
		if !ok {
			continue // poll timeout, nothing ready
		}
		j, err := job.Unmarshal(payload)
		if err != nil {
			p.log.Error("invalid job envelope, dropping", zap.Error(err))
			_ = p.broker.Reject(ctx, handle, false)
			continue
		}
		result := p.processOne(ctx, workerID, j, handle)
		prev := p.cb.State()
		p.cb.Record(result)
		if prev != p.cb.State() && p.cb.State() == breaker.Open {
			obs.CircuitBreakerTrips.WithLabelValues("frontend").Inc()
		}
	}
}

func (p *Pool) processOne(ctx context.Context, workerID string, j job.Job, handle broker.Handle) bool {
	ctx, span := obs.ContextWithJobSpan(ctx, j)
	defer span.End()
	obs.AddSpanAttributes(ctx, obs.KeyValue("worker.id", workerID))

	accepted, storedUUID, err := p.broker.Dedup(ctx, j.JobID, j.JobUUID, p.dedupTTL)
	if err != nil {
		p.log.Error("dedup error", zap.Error(err))
		_ = p.broker.Reject(ctx, handle, true)
		return false
	}
	if !accepted && storedUUID != j.JobUUID {
		obs.JobsDeduplicated.WithLabelValues(string(j.JobType)).Inc()
		_ = p.broker.Ack(ctx, handle)
		return true
	}

	n, err := p.broker.RetryCounter(ctx, j.JobID)
	if err != nil {
		p.log.Error("retry counter error", zap.Error(err))
		_ = p.broker.Reject(ctx, handle, true)
		return false
	}
	if n > int64(p.maxRetry) {
		p.log.Warn("job exceeded max retries, routing to handle_failure",
			zap.String("job_id", j.JobID), zap.Int64("attempts", n))
		p.invokeFailure(ctx, j)
		_ = p.broker.Ack(ctx, handle)
		obs.JobsProcessed.WithLabelValues(string(j.JobType), "failed_no_retry").Inc()
		return false
	}

	h, ok := p.handlers[j.JobType]
	if !ok {
		p.log.Error("no handler registered for job type", zap.String("job_type", string(j.JobType)))
		_ = p.broker.Ack(ctx, handle)
		return false
	}

	start := time.Now()
	outcome, err := h(ctx, j)
	obs.JobProcessingDuration.WithLabelValues(string(j.JobType)).Observe(time.Since(start).Seconds())
	if err != nil {
		obs.RecordError(ctx, err)
		p.log.Warn("handler returned error", zap.String("job_type", string(j.JobType)), zap.Error(err))
	}

	switch outcome {
	case Success:
		obs.SetSpanSuccess(ctx)
		_ = p.broker.Ack(ctx, handle)
		obs.JobsProcessed.WithLabelValues(string(j.JobType), "success").Inc()
		return true
	case FailedRetry:
		_ = p.broker.Reject(ctx, handle, true)
		obs.JobsProcessed.WithLabelValues(string(j.JobType), "failed_retry").Inc()
		return false
	default: // FailedNoRetry
		p.invokeFailure(ctx, j)
		_ = p.broker.Ack(ctx, handle)
		obs.JobsProcessed.WithLabelValues(string(j.JobType), "failed_no_retry").Inc()
		return false
	}
}

// invokeFailure is the last-resort path (§7): a job that exhausted its
// retries or reported a permanent failure writes a user-visible failure and
// cascades downstream FAILED_UPSTREAM events via the registered hook.
func (p *Pool) invokeFailure(ctx context.Context, j job.Job) {
	if p.onFailure != nil {
		p.onFailure(ctx, j)
		return
	}
	p.log.Error("job handle_failure invoked with no hook registered",
		zap.String("job_id", j.JobID), zap.String("job_type", string(j.JobType)))
}
