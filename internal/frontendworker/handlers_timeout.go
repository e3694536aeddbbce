// Copyright 2025 James Ross
package frontendworker

import (
	"context"
	"fmt"
	"time"

	"github.com/osmo-project/control-plane/internal/job"
	"github.com/osmo-project/control-plane/internal/statemachine"
)

// CheckQueueTimeout is the §4.2 queue-timeout watchdog: fires once
// queue_timeout has elapsed since submission if the workflow is still
// queued, otherwise reschedules itself for whatever time remains,
// honouring an operator's mid-flight timeout extension (P8, Scenario S4).
func (h *Handlers) CheckQueueTimeout(ctx context.Context, j job.Job) (Outcome, error) {
	return h.checkTimeout(ctx, j, true)
}

// CheckRunTimeout is CheckQueueTimeout's run-phase analogue, started once a
// workflow first enters RUNNING (§4.2.1 UpdateGroup).
func (h *Handlers) CheckRunTimeout(ctx context.Context, j job.Job) (Outcome, error) {
	return h.checkTimeout(ctx, j, false)
}

func (h *Handlers) checkTimeout(ctx context.Context, j job.Job, queuePhase bool) (Outcome, error) {
	var p job.CheckTimeoutPayload
	if err := j.Decode(&p); err != nil {
		return FailedNoRetry, fmt.Errorf("decode CheckTimeoutPayload: %w", err)
	}

	wf, err := h.Store.GetWorkflow(ctx, p.WorkflowID)
	if err != nil {
		return classifyStoreErr(err)
	}
	if wf == nil {
		return Success, nil // workflow gone (already cleaned up)
	}

	var since time.Time
	var timeout time.Duration
	var alreadyPast bool
	if queuePhase {
		since = wf.SubmitTime
		timeout = wf.QueueTimeout
		alreadyPast = wf.Status != statemachine.WFPending
	} else {
		if wf.StartTime == nil {
			return Success, nil // hasn't started running yet, nothing to check
		}
		since = *wf.StartTime
		timeout = wf.ExecTimeout
		alreadyPast = wf.Status.Finished()
	}
	if alreadyPast {
		return Success, nil
	}

	elapsed := time.Since(since)
	if elapsed < timeout {
		rj, err := job.New(j.SuperType, j.JobType, j.JobID, "", p)
		if err != nil {
			return FailedNoRetry, err
		}
		rj.JobUUID = j.JobUUID
		if err := h.enqueueDelayed(ctx, rj, timeout-elapsed); err != nil {
			return FailedRetry, fmt.Errorf("re-enqueue %s: %w", j.JobType, err)
		}
		return Success, nil
	}

	status := statemachine.FailedQueueTimeout
	if !queuePhase {
		status = statemachine.FailedExecTimeout
	}
	cj, err := newCancelWorkflowJob(p.WorkflowID, "system", string(status), string(status), true)
	if err != nil {
		return FailedNoRetry, err
	}
	if err := h.enqueue(ctx, cj); err != nil {
		return FailedRetry, fmt.Errorf("enqueue CancelWorkflow for timeout: %w", err)
	}
	return Success, nil
}
