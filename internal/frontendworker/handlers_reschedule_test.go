// Copyright 2025 James Ross
package frontendworker

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/osmo-project/control-plane/internal/job"
)

func TestRescheduleTaskEnqueuesCleanupThenCreate(t *testing.T) {
	fb := &fakeBroker{}
	h := &Handlers{Broker: fb, Log: zap.NewNop()}

	cleanupJob, err := job.New(job.SuperBackend, job.TypeCleanupGroup, "wf-1/a/0", "backend-a", job.CleanupGroupPayload{WorkflowID: "wf-1", Group: "a"})
	if err != nil {
		t.Fatalf("build cleanup job: %v", err)
	}
	createJob, err := job.New(job.SuperBackend, job.TypeCreateGroup, "wf-1/a/1", "backend-a", job.CreateGroupPayload{WorkflowID: "wf-1", Group: "a"})
	if err != nil {
		t.Fatalf("build create job: %v", err)
	}

	p := job.RescheduleTaskPayload{
		WorkflowID: "wf-1",
		TaskName:   "lead",
		RetryID:    1,
		Lead:       true,
		CleanupJob: cleanupJob,
		CreateJob:  createJob,
	}
	j, err := job.New(job.SuperFrontend, job.TypeRescheduleTask, "wf-1/a/lead/1", "", p)
	if err != nil {
		t.Fatalf("build reschedule job: %v", err)
	}

	outcome, err := h.RescheduleTask(context.Background(), j)
	if err != nil {
		t.Fatalf("RescheduleTask: %v", err)
	}
	if outcome != Success {
		t.Fatalf("got %v, want Success", outcome)
	}
	if len(fb.enqueued) != 2 {
		t.Fatalf("expected cleanup and create jobs both enqueued, got %d", len(fb.enqueued))
	}
	if !strings.Contains(fb.enqueued[0], cleanupJob.JobUUID) || !strings.Contains(fb.enqueued[1], createJob.JobUUID) {
		t.Fatalf("expected the cleanup job enqueued before the create job, got %v", fb.enqueued)
	}
}
