// Copyright 2025 James Ross
package statemachine

// allowedPredecessors lists, for each target task status, the statuses a
// row must currently be in for the transition to be accepted. This is the
// guard behind the Store's predicated `UPDATE ... WHERE status IN (...)`
// (I1): a write that does not match one of these sets is a no-op, which is
// what makes stale or reordered agent events idempotent (P1, P6).
var allowedPredecessors = map[Status][]Status{
	Waiting:      {Submitting},
	Processing:   {Waiting},
	Scheduling:   {Processing},
	Initializing: {Scheduling},
	Running:      {Initializing},
	Completed:    {Running, Initializing, Scheduling},
	Rescheduled:  {Running, Initializing, Scheduling, Processing, Waiting},
	Failed:       {Running, Initializing, Scheduling, Processing, Waiting, Submitting},
}

// cancellationTargets may be reached from any non-terminal status; they
// jump the normal lattice rather than following allowedPredecessors.
var cancellationTargets = map[Status]bool{
	FailedCanceled:     true,
	FailedExecTimeout:  true,
	FailedQueueTimeout: true,
}

// failureTargets are the remaining FAILED_* variants reachable from any
// non-terminal status when the backend or cluster reports a terminal
// condition directly (no normal predecessor walk required).
var failureTargets = map[Status]bool{
	Failed:             true,
	FailedServerError:  true,
	FailedBackendError: true,
	FailedImagePull:    true,
	FailedUpstream:     true,
	FailedEvicted:      true,
	FailedStartError:   true,
	FailedStartTimeout: true,
	FailedPreempted:    true,
}

// AllowedPredecessors returns the statuses a task/group row must currently
// be in for a transition to `to` to be legal; the same table CanTransition
// consults, exported so Store callers can build the predicated UPDATE's
// `WHERE status IN (...)` clause (§4.3) without duplicating the lattice.
func AllowedPredecessors(to Status) []Status {
	if cancellationTargets[to] || failureTargets[to] {
		return AliveStatuses()
	}
	return allowedPredecessors[to]
}

// CanTransition reports whether moving a task/group currently in `from`
// to `to` is a legal state-machine edge. It does not consult the phase
// start-time optimistic-concurrency token; that check lives in the Store
// query itself (§4.3) because it requires reading which timestamp column
// is still NULL.
func CanTransition(from, to Status) bool {
	if from.Finished() {
		// Rescheduled task rows are immutable once written; nothing else
		// transitions out of a truly terminal status.
		return false
	}
	if cancellationTargets[to] {
		return true
	}
	if failureTargets[to] {
		return true
	}
	preds, ok := allowedPredecessors[to]
	if !ok {
		return false
	}
	for _, p := range preds {
		if p == from {
			return true
		}
	}
	return false
}

// AggregateGroup computes Group.status from its current tasks (I2),
// honouring ignoreNonleadStatus: when true only the lead task's status is
// "considered" for the FAILED_EVICTED, generic FAILED and all-COMPLETED
// checks below; the FAILED_UPSTREAM, FAILED_SERVER_ERROR and
// FAILED_PREEMPTED checks look at every task.
func AggregateGroup(tasks []TaskView, ignoreNonleadStatus bool) Status {
	considered := func(t TaskView) bool {
		return !ignoreNonleadStatus || t.Lead
	}

	anyUnfinished := false
	anyRunning := false
	for _, t := range tasks {
		if !t.Status.GroupFinished() {
			anyUnfinished = true
			if t.Status == Running {
				anyRunning = true
			}
		}
	}
	if anyUnfinished {
		if anyRunning {
			return Running
		}
		return Initializing
	}

	for _, t := range tasks {
		if t.Status == FailedUpstream {
			return FailedUpstream
		}
	}
	for _, t := range tasks {
		if t.Status == FailedServerError {
			return FailedServerError
		}
	}
	for _, t := range tasks {
		if t.Status == FailedPreempted {
			return FailedPreempted
		}
	}
	for _, t := range tasks {
		if considered(t) && t.Status == FailedEvicted {
			return FailedEvicted
		}
	}
	for _, t := range tasks {
		if considered(t) && t.Status.Failed() {
			return Failed
		}
	}
	allCompleted := true
	for _, t := range tasks {
		if considered(t) && t.Status != Completed {
			allCompleted = false
			break
		}
	}
	if allCompleted {
		return Completed
	}
	return Running
}

// TaskView is the minimal task projection AggregateGroup needs; callers in
// internal/frontendworker build it from store task rows without pulling in
// the storage package here, keeping this package dependency-free.
type TaskView struct {
	Status Status
	Lead   bool
}

// AggregateWorkflow computes Workflow.status from its current groups, the
// same lattice as AggregateGroup with PENDING standing in for the
// pre-processing state and no ignoreNonleadStatus concept (every group
// counts).
func AggregateWorkflow(groups []GroupView) WorkflowStatus {
	anyUnfinished := false
	anyRunning := false
	for _, g := range groups {
		if !g.Status.GroupFinished() {
			anyUnfinished = true
			if g.Status == Running {
				anyRunning = true
			}
		}
	}
	if anyUnfinished {
		if anyRunning {
			return WFRunning
		}
		return WFPending
	}

	for _, g := range groups {
		if g.Status == FailedUpstream {
			return WFFailedUpstream
		}
	}
	for _, g := range groups {
		if g.Status == FailedServerError {
			return WFFailedServerError
		}
	}
	for _, g := range groups {
		if g.Status == FailedPreempted {
			return WFFailedPreempted
		}
	}
	for _, g := range groups {
		if g.Status == FailedEvicted {
			return WFFailedEvicted
		}
	}
	for _, g := range groups {
		if g.Status == FailedCanceled {
			return WFFailedCanceled
		}
	}
	for _, g := range groups {
		if g.Status == FailedQueueTimeout {
			return WFFailedQueueTimeout
		}
	}
	for _, g := range groups {
		if g.Status == FailedExecTimeout {
			return WFFailedExecTimeout
		}
	}
	for _, g := range groups {
		if g.Status.Failed() {
			return WFFailed
		}
	}
	return WFCompleted
}

// GroupView is the minimal group projection AggregateWorkflow needs.
type GroupView struct {
	Status Status
}
