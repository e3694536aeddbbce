// Copyright 2025 James Ross
// Package frontendworker dequeues frontend jobs, dispatches them to typed
// handlers, and enqueues follow-on jobs: the engine that drives every
// Workflow/Group/Task transition (§4.2).
package frontendworker

// Outcome is what a handler reports back to the dispatch loop; only
// FailedRetry causes a broker requeue (§7 propagation policy).
type Outcome int

const (
	Success Outcome = iota
	FailedRetry
	FailedNoRetry
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case FailedRetry:
		return "failed_retry"
	case FailedNoRetry:
		return "failed_no_retry"
	default:
		return "unknown"
	}
}
