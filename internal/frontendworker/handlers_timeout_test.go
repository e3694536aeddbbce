// Copyright 2025 James Ross
package frontendworker

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/osmo-project/control-plane/internal/job"
	"github.com/osmo-project/control-plane/internal/statemachine"
	"github.com/osmo-project/control-plane/internal/store"
)

func newCheckTimeoutJob(t *testing.T, workflowID string) job.Job {
	t.Helper()
	j, err := job.New(job.SuperFrontend, job.TypeCheckQueueTimeout, workflowID, "", job.CheckTimeoutPayload{WorkflowID: workflowID})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	return j
}

func TestCheckQueueTimeoutReenqueuesWhenNotYetElapsed(t *testing.T) {
	fs := &fakeStore{workflow: &store.Workflow{
		WorkflowID:   "wf-1",
		Status:       statemachine.WFPending,
		SubmitTime:   time.Now(),
		QueueTimeout: time.Hour,
	}}
	fb := &fakeBroker{}
	h := &Handlers{Store: fs, Broker: fb, Log: zap.NewNop()}

	outcome, err := h.CheckQueueTimeout(context.Background(), newCheckTimeoutJob(t, "wf-1"))
	if err != nil {
		t.Fatalf("CheckQueueTimeout: %v", err)
	}
	if outcome != Success {
		t.Fatalf("got %v, want Success", outcome)
	}
	if len(fb.delayedPayloads) != 1 {
		t.Fatalf("expected the watchdog to re-enqueue itself, got %d delayed jobs", len(fb.delayedPayloads))
	}
	if len(fb.enqueued) != 0 {
		t.Fatalf("expected no immediate cancellation while still within timeout")
	}
}

func TestCheckQueueTimeoutCancelsOnceElapsed(t *testing.T) {
	fs := &fakeStore{workflow: &store.Workflow{
		WorkflowID:   "wf-1",
		Status:       statemachine.WFPending,
		SubmitTime:   time.Now().Add(-2 * time.Hour),
		QueueTimeout: time.Hour,
	}}
	fb := &fakeBroker{}
	h := &Handlers{Store: fs, Broker: fb, Log: zap.NewNop()}

	outcome, err := h.CheckQueueTimeout(context.Background(), newCheckTimeoutJob(t, "wf-1"))
	if err != nil {
		t.Fatalf("CheckQueueTimeout: %v", err)
	}
	if outcome != Success {
		t.Fatalf("got %v, want Success", outcome)
	}
	if len(fb.enqueued) != 1 {
		t.Fatalf("expected a CancelWorkflow job once the timeout has elapsed, got %d", len(fb.enqueued))
	}
}

func TestCheckQueueTimeoutNoopWhenAlreadyPastQueuedPhase(t *testing.T) {
	fs := &fakeStore{workflow: &store.Workflow{
		WorkflowID:   "wf-1",
		Status:       statemachine.WFRunning,
		SubmitTime:   time.Now().Add(-2 * time.Hour),
		QueueTimeout: time.Hour,
	}}
	fb := &fakeBroker{}
	h := &Handlers{Store: fs, Broker: fb, Log: zap.NewNop()}

	outcome, err := h.CheckQueueTimeout(context.Background(), newCheckTimeoutJob(t, "wf-1"))
	if err != nil {
		t.Fatalf("CheckQueueTimeout: %v", err)
	}
	if outcome != Success {
		t.Fatalf("got %v, want Success", outcome)
	}
	if len(fb.enqueued) != 0 || len(fb.delayedPayloads) != 0 {
		t.Fatalf("expected no action once the workflow has already left PENDING")
	}
}

func TestCheckRunTimeoutNoopWhenNotYetStarted(t *testing.T) {
	fs := &fakeStore{workflow: &store.Workflow{
		WorkflowID:  "wf-1",
		Status:      statemachine.WFRunning,
		ExecTimeout: time.Hour,
	}}
	fb := &fakeBroker{}
	h := &Handlers{Store: fs, Broker: fb, Log: zap.NewNop()}

	j, err := job.New(job.SuperFrontend, job.TypeCheckRunTimeout, "wf-1", "", job.CheckTimeoutPayload{WorkflowID: "wf-1"})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	outcome, err := h.CheckRunTimeout(context.Background(), j)
	if err != nil {
		t.Fatalf("CheckRunTimeout: %v", err)
	}
	if outcome != Success {
		t.Fatalf("got %v, want Success", outcome)
	}
	if len(fb.enqueued) != 0 || len(fb.delayedPayloads) != 0 {
		t.Fatalf("expected no action before StartTime is set")
	}
}
