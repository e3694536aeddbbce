package statemachine

import "testing"

func TestStatusFinished(t *testing.T) {
	cases := map[Status]bool{
		Completed:      true,
		Rescheduled:    true,
		Failed:         true,
		FailedUpstream: true,
		Running:        false,
		Waiting:        false,
	}
	for status, want := range cases {
		if got := status.Finished(); got != want {
			t.Errorf("%s.Finished() = %v, want %v", status, got, want)
		}
	}
}

func TestGroupFinishedTreatsRescheduledAsAlive(t *testing.T) {
	if Rescheduled.GroupFinished() {
		t.Fatal("RESCHEDULED must not count as group-finished; the group keeps waiting on the retry row")
	}
	if !Completed.GroupFinished() {
		t.Fatal("COMPLETED must count as group-finished")
	}
}

func TestHasErrorLogs(t *testing.T) {
	cases := map[Status]bool{
		Rescheduled:        true,
		Failed:             true,
		FailedServerError:  false,
		FailedUpstream:     false,
		FailedCanceled:     false,
		FailedExecTimeout:  false,
		FailedEvicted:      false,
		FailedStartError:   false,
		FailedImagePull:    false,
		FailedPreempted:    true,
		FailedStartTimeout: true,
		Completed:          false,
	}
	for status, want := range cases {
		if got := status.HasErrorLogs(); got != want {
			t.Errorf("%s.HasErrorLogs() = %v, want %v", status, got, want)
		}
	}
}

func TestCanTransitionHappyPath(t *testing.T) {
	path := []Status{Submitting, Waiting, Processing, Scheduling, Initializing, Running, Completed}
	for i := 1; i < len(path); i++ {
		if !CanTransition(path[i-1], path[i]) {
			t.Errorf("expected %s -> %s to be allowed", path[i-1], path[i])
		}
	}
}

func TestCanTransitionRejectsSkippingAhead(t *testing.T) {
	if CanTransition(Waiting, Running) {
		t.Fatal("WAITING -> RUNNING should skip the scheduling/initializing steps and be rejected")
	}
	if CanTransition(Completed, Running) {
		t.Fatal("COMPLETED is terminal; no transition should be allowed out of it")
	}
}

func TestCanTransitionCancellationJumpsFromAnyNonTerminalState(t *testing.T) {
	for _, from := range []Status{Submitting, Waiting, Processing, Scheduling, Initializing, Running} {
		if !CanTransition(from, FailedCanceled) {
			t.Errorf("expected %s -> FAILED_CANCELED to be allowed (cancellation jump)", from)
		}
	}
	if CanTransition(Completed, FailedCanceled) {
		t.Fatal("a COMPLETED task cannot be canceled after the fact")
	}
}

func TestAggregateGroupAnyRunningWins(t *testing.T) {
	tasks := []TaskView{
		{Status: Completed, Lead: false},
		{Status: Running, Lead: true},
	}
	if got := AggregateGroup(tasks, false); got != Running {
		t.Fatalf("got %s, want RUNNING", got)
	}
}

func TestAggregateGroupUpstreamBeatsOrdinaryFailure(t *testing.T) {
	tasks := []TaskView{
		{Status: FailedUpstream, Lead: true},
		{Status: Failed, Lead: false},
	}
	if got := AggregateGroup(tasks, false); got != FailedUpstream {
		t.Fatalf("got %s, want FAILED_UPSTREAM (precedence over plain FAILED)", got)
	}
}

func TestAggregateGroupIgnoreNonleadStatusOnlyConsidersLead(t *testing.T) {
	tasks := []TaskView{
		{Status: Completed, Lead: true},
		{Status: Failed, Lead: false}, // a sidecar failing must not drag the group down
	}
	if got := AggregateGroup(tasks, true); got != Completed {
		t.Fatalf("got %s, want COMPLETED when ignoreNonleadStatus hides the sidecar failure", got)
	}
}

func TestAggregateGroupAllCompleted(t *testing.T) {
	tasks := []TaskView{{Status: Completed, Lead: true}, {Status: Completed, Lead: false}}
	if got := AggregateGroup(tasks, false); got != Completed {
		t.Fatalf("got %s, want COMPLETED", got)
	}
}

func TestAggregateWorkflowCascadesUpstreamFailure(t *testing.T) {
	groups := []GroupView{{Status: Completed}, {Status: FailedUpstream}, {Status: FailedUpstream}}
	if got := AggregateWorkflow(groups); got != WFFailedUpstream {
		t.Fatalf("got %s, want FAILED_UPSTREAM", got)
	}
}

func TestAggregateWorkflowPendingBeforeAnyRunning(t *testing.T) {
	groups := []GroupView{{Status: Waiting}, {Status: Processing}}
	if got := AggregateWorkflow(groups); got != WFPending {
		t.Fatalf("got %s, want PENDING", got)
	}
}
