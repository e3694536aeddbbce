// Copyright 2025 James Ross
package frontendworker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/osmo-project/control-plane/internal/barrier"
	"github.com/osmo-project/control-plane/internal/config"
	"github.com/osmo-project/control-plane/internal/job"
	"github.com/osmo-project/control-plane/internal/statemachine"
	"github.com/osmo-project/control-plane/internal/store"
)

func TestIsGroupWideStatus(t *testing.T) {
	cases := map[statemachine.Status]bool{
		statemachine.FailedCanceled:     true,
		statemachine.FailedExecTimeout:  true,
		statemachine.FailedQueueTimeout: true,
		statemachine.FailedUpstream:     true,
		statemachine.FailedServerError:  true,
		statemachine.Completed:          false,
		statemachine.Running:            false,
	}
	for status, want := range cases {
		if got := isGroupWideStatus(status); got != want {
			t.Errorf("isGroupWideStatus(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestRewriteByExitActionNoSpecPassesThrough(t *testing.T) {
	h := &Handlers{Store: &fakeStore{}, Log: zap.NewNop(), Cfg: &config.Config{}}
	task := &store.Task{RetryID: 0}
	exitCode := 1
	got := h.rewriteByExitAction(context.Background(), "wf-1", task, statemachine.Failed, &exitCode)
	if got != statemachine.Failed {
		t.Fatalf("got %s, want FAILED unchanged", got)
	}
}

func TestRewriteByExitActionNilExitCodePassesThrough(t *testing.T) {
	h := &Handlers{Store: &fakeStore{}, Log: zap.NewNop(), Cfg: &config.Config{}}
	spec := map[statemachine.Status]string{statemachine.Completed: "0-3"}
	raw, _ := json.Marshal(spec)
	task := &store.Task{RetryID: 0, ExitActions: raw}
	got := h.rewriteByExitAction(context.Background(), "wf-1", task, statemachine.Failed, nil)
	if got != statemachine.Failed {
		t.Fatalf("got %s, want FAILED unchanged when exit code is nil", got)
	}
}

func TestRewriteByExitActionAppliesMatchingRange(t *testing.T) {
	h := &Handlers{Store: &fakeStore{}, Log: zap.NewNop(), Cfg: &config.Config{FrontendWorker: config.FrontendWorker{MaxRetryPerTask: 3}}}
	spec := map[statemachine.Status]string{statemachine.Completed: "0-3,10"}
	raw, _ := json.Marshal(spec)
	task := &store.Task{RetryID: 0, ExitActions: raw}
	exitCode := 2
	got := h.rewriteByExitAction(context.Background(), "wf-1", task, statemachine.Failed, &exitCode)
	if got != statemachine.Completed {
		t.Fatalf("got %s, want COMPLETED", got)
	}
}

func TestRewriteByExitActionMalformedSpecPassesThrough(t *testing.T) {
	h := &Handlers{Store: &fakeStore{}, Log: zap.NewNop(), Cfg: &config.Config{}}
	task := &store.Task{RetryID: 0, ExitActions: json.RawMessage(`not-json`)}
	exitCode := 1
	got := h.rewriteByExitAction(context.Background(), "wf-1", task, statemachine.Failed, &exitCode)
	if got != statemachine.Failed {
		t.Fatalf("got %s, want FAILED unchanged on malformed exit_actions", got)
	}
}

func TestRewriteByExitActionRetryLimitRecordsFailureMessage(t *testing.T) {
	fs := &fakeStore{}
	h := &Handlers{Store: fs, Log: zap.NewNop(), Cfg: &config.Config{FrontendWorker: config.FrontendWorker{MaxRetryPerTask: 1}}}
	spec := map[statemachine.Status]string{statemachine.Rescheduled: "0-3"}
	raw, _ := json.Marshal(spec)
	task := &store.Task{RetryID: 1, ExitActions: raw}
	exitCode := 1
	got := h.rewriteByExitAction(context.Background(), "wf-1", task, statemachine.Failed, &exitCode)
	if got != statemachine.Failed {
		t.Fatalf("got %s, want observed status FAILED unchanged past the retry limit", got)
	}
	if fs.failureMsg == "" {
		t.Fatal("expected the retry-limit note to be recorded as the workflow failure message")
	}
}

func newTestHandlerBarrier(t *testing.T) *barrier.Barrier {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return barrier.New(rdb)
}

func newUpdateGroupPayloadJob(t *testing.T, p job.UpdateGroupPayload) job.Job {
	t.Helper()
	j, err := job.New(job.SuperFrontend, job.TypeUpdateGroup, "wf-1", "", p)
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	return j
}

func baseWorkflow() *store.Workflow {
	start := time.Now().Add(-time.Minute)
	return &store.Workflow{
		WorkflowID:   "wf-1",
		WorkflowUUID: "wf-1-uuid",
		User:         "alice",
		Backend:      "backend-1",
		Status:       statemachine.WFRunning,
		StartTime:    &start,
		ExecTimeout:  time.Hour,
	}
}

// TestUpdateGroupGroupWideStatusBypassesAggregation guards the group-wide
// cancel/timeout statuses (FAILED_CANCELED, FAILED_QUEUE_TIMEOUT,
// FAILED_EXEC_TIMEOUT): they must land on the group row as-is rather than
// collapsing to the generic FAILED that AggregateGroup would produce.
func TestUpdateGroupGroupWideStatusBypassesAggregation(t *testing.T) {
	fs := &fakeStore{
		workflow:           baseWorkflow(),
		group:              &store.Group{Name: "g1", Status: statemachine.Running},
		groups:             []store.Group{{Name: "g1", Status: statemachine.Running}},
		groupStatusChanged: true,
		wfStatusChanged:    true,
	}
	fb := &fakeBroker{}
	h := &Handlers{Store: fs, Broker: fb, Log: zap.NewNop(), Cfg: &config.Config{}}

	p := job.UpdateGroupPayload{WorkflowID: "wf-1", Group: "g1", Status: string(statemachine.FailedExecTimeout), ForceCancel: true}
	outcome, err := h.UpdateGroup(context.Background(), newUpdateGroupPayloadJob(t, p))
	if err != nil {
		t.Fatalf("UpdateGroup: %v", err)
	}
	if outcome != Success {
		t.Fatalf("got %v, want Success", outcome)
	}
	if fs.markedGroupTasksStatus == nil || *fs.markedGroupTasksStatus != statemachine.FailedExecTimeout {
		t.Fatalf("expected MarkGroupTasksStatus(FAILED_EXEC_TIMEOUT), got %v", fs.markedGroupTasksStatus)
	}
	if fs.writtenGroupStatus == nil || *fs.writtenGroupStatus != statemachine.FailedExecTimeout {
		t.Fatalf("expected the group status written directly as FAILED_EXEC_TIMEOUT (not re-aggregated to FAILED), got %v", fs.writtenGroupStatus)
	}
	if fs.writtenWFStatus == nil || *fs.writtenWFStatus != statemachine.WFFailedExecTimeout {
		t.Fatalf("expected the workflow status to carry the same specific variant through AggregateWorkflow, got %v", fs.writtenWFStatus)
	}
}

func TestUpdateGroupLeadRescheduleInsertsRetryAndRestartsPeers(t *testing.T) {
	b := newTestHandlerBarrier(t)
	lead := store.Task{TaskDBKey: 1, Name: "lead", Lead: true, Status: statemachine.Running, RefreshTokenHash: "tok"}
	peer := store.Task{TaskDBKey: 2, Name: "peer", Lead: false, Status: statemachine.Running}
	fs := &fakeStore{
		workflow:           baseWorkflow(),
		group:              &store.Group{Name: "g1", Status: statemachine.Running},
		groups:             []store.Group{{Name: "g1", Status: statemachine.Running}},
		tasks:              []store.Task{lead, peer},
		task:               &lead,
		applyResult:        true,
		insertedRetry:      &store.Task{TaskDBKey: 3, RetryID: 1},
		groupStatusChanged: true,
	}
	fb := &fakeBroker{}
	h := &Handlers{Store: fs, Broker: fb, Barrier: b, Log: zap.NewNop(), Cfg: &config.Config{}}

	p := job.UpdateGroupPayload{WorkflowID: "wf-1", Group: "g1", Task: "lead", Lead: true, Status: string(statemachine.Rescheduled)}
	if _, err := h.UpdateGroup(context.Background(), newUpdateGroupPayloadJob(t, p)); err != nil {
		t.Fatalf("UpdateGroup: %v", err)
	}
	if len(fb.enqueued) != 1 {
		t.Fatalf("expected exactly one RescheduleTask job enqueued, got %d", len(fb.enqueued))
	}
}

// TestUpdateGroupNonleadRescheduleAlwaysRetriesRegardlessOfIgnoreNonleadStatus
// guards the bug where a non-lead RESCHEDULED event was silently dropped:
// Failed() never matches RESCHEDULED, so the old code's ignoreNonleadStatus
// gate left the retry unissued.
func TestUpdateGroupNonleadRescheduleAlwaysRetriesRegardlessOfIgnoreNonleadStatus(t *testing.T) {
	b := newTestHandlerBarrier(t)
	lead := store.Task{TaskDBKey: 1, Name: "lead", Lead: true, Status: statemachine.Running}
	nonlead := store.Task{TaskDBKey: 2, Name: "nonlead", Lead: false, Status: statemachine.Running, RefreshTokenHash: "tok"}
	fs := &fakeStore{
		workflow:           baseWorkflow(),
		group:              &store.Group{Name: "g1", Status: statemachine.Running, IgnoreNonleadStatus: true},
		groups:             []store.Group{{Name: "g1", Status: statemachine.Running}},
		tasks:              []store.Task{lead, nonlead},
		task:               &nonlead,
		applyResult:        true,
		insertedRetry:      &store.Task{TaskDBKey: 3, RetryID: 1},
		groupStatusChanged: true,
	}
	fb := &fakeBroker{}
	h := &Handlers{Store: fs, Broker: fb, Barrier: b, Log: zap.NewNop(), Cfg: &config.Config{}}

	p := job.UpdateGroupPayload{WorkflowID: "wf-1", Group: "g1", Task: "nonlead", Lead: false, Status: string(statemachine.Rescheduled)}
	if _, err := h.UpdateGroup(context.Background(), newUpdateGroupPayloadJob(t, p)); err != nil {
		t.Fatalf("UpdateGroup: %v", err)
	}
	if len(fb.enqueued) != 1 {
		t.Fatalf("expected the non-lead RESCHEDULED event to still insert a retry and enqueue RescheduleTask even with ignore_nonlead_status set, got %d enqueued", len(fb.enqueued))
	}
}

func TestUpdateGroupBarrierFiresOnLastPeerArrival(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	b := barrier.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	lead := store.Task{TaskDBKey: 1, Name: "lead", Lead: true, Status: statemachine.Running}
	finishing := store.Task{TaskDBKey: 2, Name: "peer-a", Lead: false, Status: statemachine.Running}
	alreadyDone := store.Task{TaskDBKey: 3, Name: "peer-b", Lead: false, Status: statemachine.Completed}
	fs := &fakeStore{
		workflow:           baseWorkflow(),
		group:              &store.Group{Name: "g1", Status: statemachine.Running, Barrier: true},
		groups:             []store.Group{{Name: "g1", Status: statemachine.Running}},
		tasks:              []store.Task{lead, finishing, alreadyDone},
		task:               &finishing,
		applyResult:        true,
		groupStatusChanged: true,
	}
	fb := &fakeBroker{}
	h := &Handlers{Store: fs, Broker: fb, Barrier: b, Log: zap.NewNop(), Cfg: &config.Config{}}

	p := job.UpdateGroupPayload{WorkflowID: "wf-1", Group: "g1", Task: "peer-a", Lead: false, Status: string(statemachine.Completed)}
	if _, err := h.UpdateGroup(context.Background(), newUpdateGroupPayloadJob(t, p)); err != nil {
		t.Fatalf("UpdateGroup: %v", err)
	}

	ctx := context.Background()
	ready, err := b.Arrive(ctx, "wf-1", "g1", "peer-a", 1)
	if err != nil {
		t.Fatalf("Arrive: %v", err)
	}
	if !ready {
		t.Fatal("expected the barrier to already be satisfied by the single active peer's finish")
	}
	if !mr.Exists("barrier:wf-1:g1:peer-b:actions") {
		t.Fatal("expected the fired barrier to push a token onto peer-b's action queue")
	}
}
