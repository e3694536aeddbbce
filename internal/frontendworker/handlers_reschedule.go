// Copyright 2025 James Ross
package frontendworker

import (
	"context"
	"fmt"

	"github.com/osmo-project/control-plane/internal/job"
)

// RescheduleTask dispatches the pair of backend jobs a RESCHEDULED lead
// needs: tear down its old pod, stand up a fresh one at the new retry_id
// (§4.2.1 UpdateGroup step 3.c). Both jobs were built and dedup-keyed
// up front by onLeadTransition; this handler only fires them.
func (h *Handlers) RescheduleTask(ctx context.Context, j job.Job) (Outcome, error) {
	var p job.RescheduleTaskPayload
	if err := j.Decode(&p); err != nil {
		return FailedNoRetry, fmt.Errorf("decode RescheduleTaskPayload: %w", err)
	}
	if err := h.enqueue(ctx, p.CleanupJob); err != nil {
		return FailedRetry, fmt.Errorf("enqueue reschedule cleanup job: %w", err)
	}
	if err := h.enqueue(ctx, p.CreateJob); err != nil {
		return FailedRetry, fmt.Errorf("enqueue reschedule create job: %w", err)
	}
	return Success, nil
}
