// Copyright 2025 James Ross
package frontendworker

import (
	"context"
	"fmt"

	"github.com/osmo-project/control-plane/internal/job"
)

// CancelWorkflow is the §4.2.1 CancelWorkflow handler: record who requested
// the cancellation, then fan an UpdateGroup cancellation event out to every
// group that has not already finished.
func (h *Handlers) CancelWorkflow(ctx context.Context, j job.Job) (Outcome, error) {
	var p job.CancelWorkflowPayload
	if err := j.Decode(&p); err != nil {
		return FailedNoRetry, fmt.Errorf("decode CancelWorkflowPayload: %w", err)
	}

	if err := h.Store.SetCancelledBy(ctx, p.WorkflowID, p.User); err != nil {
		return classifyStoreErr(err)
	}

	groups, err := h.Store.GetGroups(ctx, p.WorkflowID)
	if err != nil {
		return classifyStoreErr(err)
	}
	for _, g := range groups {
		if g.Status.GroupFinished() && !p.Force {
			continue
		}
		uj, err := newUpdateGroupJob(p.WorkflowID, g.Name, "", 0, false, p.TaskStatus, "cancelled by "+p.User, nil, p.Force)
		if err != nil {
			return FailedNoRetry, err
		}
		if err := h.enqueue(ctx, uj); err != nil {
			return FailedRetry, fmt.Errorf("enqueue group cancellation for %s: %w", g.Name, err)
		}
	}
	return Success, nil
}
