// Copyright 2025 James Ross
package frontendworker

import (
	"context"

	"go.uber.org/zap"

	"github.com/osmo-project/control-plane/internal/job"
)

// HandleFailure is wired to Pool.OnFailure: the last-resort path a job
// reaches after exhausting max_retry_per_job or reporting FailedNoRetry
// (§7). It dispatches by job type so each kind of terminal failure can
// record the right user-visible state.
func (h *Handlers) HandleFailure(ctx context.Context, j job.Job) {
	var err error
	switch j.JobType {
	case job.TypeCreateGroup:
		err = h.failCreateGroup(ctx, j)
	case job.TypeSubmitWorkflow:
		err = h.failSubmitWorkflow(ctx, j)
	default:
		h.Log.Error("job failed permanently with no specific failure handler",
			zap.String("job_type", string(j.JobType)), zap.String("job_id", j.JobID))
		return
	}
	if err != nil {
		h.Log.Error("handle_failure itself failed",
			zap.String("job_type", string(j.JobType)), zap.String("job_id", j.JobID), zap.Error(err))
	}
}

// failCreateGroup reports a group-wide FAILED_SERVER_ERROR when dispatching
// its backend job never succeeded (§4.2.1 CreateGroup step 5).
func (h *Handlers) failCreateGroup(ctx context.Context, j job.Job) error {
	var p job.CreateGroupPayload
	if err := j.Decode(&p); err != nil {
		return err
	}
	uj, err := newUpdateGroupJob(p.WorkflowID, p.Group, "", 0, false, "FAILED_SERVER_ERROR", "create_group dispatch failed", nil, false)
	if err != nil {
		return err
	}
	return h.enqueue(ctx, uj)
}

// failSubmitWorkflow records the earliest-known failure reason when a
// submission itself could never be processed (malformed spec, unknown
// pool, rejected priority/GPU quota).
func (h *Handlers) failSubmitWorkflow(ctx context.Context, j job.Job) error {
	var p job.SubmitWorkflowPayload
	if err := j.Decode(&p); err != nil {
		return err
	}
	return h.Store.SetFailureMessage(ctx, p.WorkflowID, "workflow submission rejected")
}
