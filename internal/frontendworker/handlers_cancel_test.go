// Copyright 2025 James Ross
package frontendworker

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/osmo-project/control-plane/internal/job"
	"github.com/osmo-project/control-plane/internal/statemachine"
	"github.com/osmo-project/control-plane/internal/store"
)

func newCancelPayloadJob(t *testing.T, p job.CancelWorkflowPayload) job.Job {
	t.Helper()
	j, err := job.New(job.SuperFrontend, job.TypeCancelWorkflow, "wf-1", "", p)
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	return j
}

func TestCancelWorkflowSkipsAlreadyFinishedGroups(t *testing.T) {
	fs := &fakeStore{groups: []store.Group{
		{Name: "a", Status: statemachine.Completed},
		{Name: "b", Status: statemachine.Waiting},
	}}
	fb := &fakeBroker{}
	h := &Handlers{Store: fs, Broker: fb, Log: zap.NewNop()}

	p := job.CancelWorkflowPayload{WorkflowID: "wf-1", User: "alice", TaskStatus: "FAILED_CANCELED"}
	outcome, err := h.CancelWorkflow(context.Background(), newCancelPayloadJob(t, p))
	if err != nil {
		t.Fatalf("CancelWorkflow: %v", err)
	}
	if outcome != Success {
		t.Fatalf("got %v, want Success", outcome)
	}
	if fs.cancelledByUser != "alice" {
		t.Fatalf("expected SetCancelledBy to record alice, got %q", fs.cancelledByUser)
	}
	if len(fb.enqueued) != 1 {
		t.Fatalf("expected exactly one UpdateGroup enqueued for the unfinished group, got %d", len(fb.enqueued))
	}
}

func TestCancelWorkflowForceIncludesFinishedGroups(t *testing.T) {
	fs := &fakeStore{groups: []store.Group{
		{Name: "a", Status: statemachine.Completed},
	}}
	fb := &fakeBroker{}
	h := &Handlers{Store: fs, Broker: fb, Log: zap.NewNop()}

	p := job.CancelWorkflowPayload{WorkflowID: "wf-1", User: "alice", TaskStatus: "FAILED_CANCELED", Force: true}
	if _, err := h.CancelWorkflow(context.Background(), newCancelPayloadJob(t, p)); err != nil {
		t.Fatalf("CancelWorkflow: %v", err)
	}
	if len(fb.enqueued) != 1 {
		t.Fatalf("expected force cancel to still enqueue for an already-finished group, got %d", len(fb.enqueued))
	}
}
