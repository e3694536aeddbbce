// Copyright 2025 James Ross
package frontendworker

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/osmo-project/control-plane/internal/job"
)

func TestHandleFailureCreateGroupEnqueuesServerErrorUpdate(t *testing.T) {
	fb := &fakeBroker{}
	h := &Handlers{Broker: fb, Log: zap.NewNop()}

	j, err := job.New(job.SuperBackend, job.TypeCreateGroup, "wf-1/a", "backend-a", job.CreateGroupPayload{WorkflowID: "wf-1", Group: "a"})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	h.HandleFailure(context.Background(), j)

	if len(fb.enqueued) != 1 {
		t.Fatalf("expected an UpdateGroup failure job enqueued, got %d", len(fb.enqueued))
	}
}

func TestHandleFailureSubmitWorkflowRecordsFailureMessage(t *testing.T) {
	fs := &fakeStore{}
	h := &Handlers{Store: fs, Log: zap.NewNop()}

	j, err := job.New(job.SuperFrontend, job.TypeSubmitWorkflow, "wf-1", "", job.SubmitWorkflowPayload{WorkflowID: "wf-1"})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	h.HandleFailure(context.Background(), j)

	if fs.failureMsg == "" {
		t.Fatal("expected SetFailureMessage to be called")
	}
}

func TestHandleFailureUnknownJobTypeIsNoop(t *testing.T) {
	fb := &fakeBroker{}
	h := &Handlers{Broker: fb, Log: zap.NewNop()}

	j, err := job.New(job.SuperFrontend, job.TypeCheckQueueTimeout, "wf-1", "", job.CheckTimeoutPayload{WorkflowID: "wf-1"})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	h.HandleFailure(context.Background(), j)

	if len(fb.enqueued) != 0 {
		t.Fatal("expected no enqueue for a job type with no dedicated failure handler")
	}
}
