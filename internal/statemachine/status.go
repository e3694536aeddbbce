// Copyright 2025 James Ross
// Package statemachine holds the pure transition and aggregation rules for
// TaskGroupStatus and WorkflowStatus. Nothing in this package touches
// Store, Broker, or the network; it is exercised by both FrontendWorker
// and BackendSession so they agree on what a status transition means.
package statemachine

// Status is the finite status lattice shared by Task and Group rows. Group
// rows never observe RESCHEDULED; it is a task-only terminal that spawns a
// new row at retry_id+1.
type Status string

const (
	Submitting         Status = "SUBMITTING"
	Waiting            Status = "WAITING"
	Processing         Status = "PROCESSING"
	Scheduling         Status = "SCHEDULING"
	Initializing       Status = "INITIALIZING"
	Running            Status = "RUNNING"
	Completed          Status = "COMPLETED"
	Rescheduled        Status = "RESCHEDULED"
	Failed             Status = "FAILED"
	FailedCanceled     Status = "FAILED_CANCELED"
	FailedServerError  Status = "FAILED_SERVER_ERROR"
	FailedBackendError Status = "FAILED_BACKEND_ERROR"
	FailedExecTimeout  Status = "FAILED_EXEC_TIMEOUT"
	FailedQueueTimeout Status = "FAILED_QUEUE_TIMEOUT"
	FailedImagePull    Status = "FAILED_IMAGE_PULL"
	FailedUpstream     Status = "FAILED_UPSTREAM"
	FailedEvicted      Status = "FAILED_EVICTED"
	FailedStartError   Status = "FAILED_START_ERROR"
	FailedStartTimeout Status = "FAILED_START_TIMEOUT"
	FailedPreempted    Status = "FAILED_PREEMPTED"
)

// AliveStatuses are the statuses a task/group can be in before it finishes.
func AliveStatuses() []Status {
	return []Status{Submitting, Waiting, Processing, Scheduling, Initializing, Running}
}

// Failed reports whether s is any FAILED* variant.
func (s Status) Failed() bool {
	return len(s) >= 6 && s[:6] == "FAILED"
}

// Finished reports whether a task in status s will never be written to
// again (aside from the RESCHEDULED row which spawns a sibling).
func (s Status) Finished() bool {
	return s == Completed || s == Rescheduled || s.Failed()
}

// GroupFinished reports whether s counts as done for group aggregation.
// RESCHEDULED is finished for the task row but not for the group: the
// group keeps waiting on the freshly inserted retry row instead.
func (s Status) GroupFinished() bool {
	return s == Completed || s.Failed()
}

// Prescheduling reports s is before the backend has picked the job up.
func (s Status) Prescheduling() bool {
	switch s {
	case Submitting, Waiting, Processing:
		return true
	}
	return false
}

// InQueue reports s is before the task began running on a cluster node.
func (s Status) InQueue() bool {
	switch s {
	case Submitting, Waiting, Processing, Scheduling:
		return true
	}
	return false
}

// Prerunning reports s is at or before INITIALIZING.
func (s Status) Prerunning() bool {
	return s.InQueue() || s == Initializing
}

// Canceled reports s is one of the cancellation-family terminals.
func (s Status) Canceled() bool {
	switch s {
	case FailedCanceled, FailedExecTimeout, FailedQueueTimeout:
		return true
	}
	return false
}

// ServerErrored reports s is an infrastructure-attributed failure rather
// than a user code failure.
func (s Status) ServerErrored() bool {
	switch s {
	case FailedServerError, FailedEvicted, FailedStartError, FailedImagePull:
		return true
	}
	return false
}

// HasErrorLogs reports whether CleanupGroup should request an error-log
// extraction spec for a task that ended in s. RESCHEDULED always extracts
// (the old pod's log is about to become unreachable); a FAILED* status
// extracts unless it is attributed to infra, upstream, or cancellation.
func (s Status) HasErrorLogs() bool {
	if s == Rescheduled {
		return true
	}
	return s.Failed() && !s.ServerErrored() && s != FailedUpstream && !s.Canceled()
}

// WorkflowStatus mirrors Status but adds the PENDING pre-processing state;
// it is always derived, never written directly except by the aggregation
// step in UpdateGroup.
type WorkflowStatus string

const (
	WFPending            WorkflowStatus = "PENDING"
	WFRunning            WorkflowStatus = "RUNNING"
	WFCompleted          WorkflowStatus = "COMPLETED"
	WFFailed             WorkflowStatus = "FAILED"
	WFFailedCanceled     WorkflowStatus = "FAILED_CANCELED"
	WFFailedServerError  WorkflowStatus = "FAILED_SERVER_ERROR"
	WFFailedExecTimeout  WorkflowStatus = "FAILED_EXEC_TIMEOUT"
	WFFailedQueueTimeout WorkflowStatus = "FAILED_QUEUE_TIMEOUT"
	WFFailedUpstream     WorkflowStatus = "FAILED_UPSTREAM"
	WFFailedPreempted    WorkflowStatus = "FAILED_PREEMPTED"
	WFFailedEvicted      WorkflowStatus = "FAILED_EVICTED"
)

// Finished reports that the workflow will receive no further status writes.
func (s WorkflowStatus) Finished() bool {
	return s == WFCompleted || (len(s) >= 6 && s[:6] == "FAILED")
}
