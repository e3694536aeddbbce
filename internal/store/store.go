// Copyright 2025 James Ross
package store

import (
	"context"
	"time"

	"github.com/osmo-project/control-plane/internal/statemachine"
)

// NewWorkflow bundles everything SubmitWorkflow needs to insert in one
// transaction (§4.2.1 SubmitWorkflow steps 1-3).
type NewWorkflow struct {
	Workflow Workflow
	Groups   []NewGroup
}

// NewGroup carries a group row plus its initial tasks, all created at
// retry_id=0 in WAITING (§3 Task lifecycle).
type NewGroup struct {
	Group Group
	Tasks []Task
}

// TaskTransition is a predicated single-row update: it only applies when
// the task's current status is one of From and its phase-start column
// (identified by To via the state machine's phase mapping) is still
// NULL, the optimistic-concurrency token described in §4.3.
type TaskTransition struct {
	TaskDBKey  int64
	From       []statemachine.Status
	To         statemachine.Status
	ExitCode   *int
	FinishNow  bool
}

// Store is the relational persistence boundary. Every method that touches
// more than one row is transactional; single-row predicated updates report
// whether they actually applied so callers can detect stale events (I1).
type Store interface {
	// InsertWorkflow performs SubmitWorkflow's transactional insert: the
	// workflow row, every group row (status SUBMITTING), and every task
	// row (status WAITING, retry_id=0).
	InsertWorkflow(ctx context.Context, nw NewWorkflow) error

	// FlipSubmittingToWaiting atomically moves every group of a workflow
	// from SUBMITTING to WAITING, but only if the workflow has not been
	// cancelled meanwhile (§4.2.1 SubmitWorkflow step 5). Returns false if
	// the workflow was already cancelled (no-op).
	FlipSubmittingToWaiting(ctx context.Context, workflowID string) (bool, error)

	// GroupsReadyToStart returns the names of groups in a workflow whose
	// remaining_upstream set is empty, for the initial PROCESSING dispatch.
	GroupsReadyToStart(ctx context.Context, workflowID string) ([]string, error)

	// MarkGroupProcessing sets Group.status=PROCESSING and every one of
	// its tasks to PROCESSING in one transaction (§4.2.1 step 5).
	MarkGroupProcessing(ctx context.Context, workflowID, group string) error

	// GetWorkflow loads a workflow row by workflow_id.
	GetWorkflow(ctx context.Context, workflowID string) (*Workflow, error)

	// GetGroup loads a (workflow_id, name) group row.
	GetGroup(ctx context.Context, workflowID, group string) (*Group, error)

	// GetGroups loads every group row of a workflow, used to recompute
	// WorkflowStatus from its current group aggregate (I2, §4.3).
	GetGroups(ctx context.Context, workflowID string) ([]Group, error)

	// GetTasks loads every retry_id=latest task row for a group, newest
	// retry first is not guaranteed; callers filter by status.
	GetTasks(ctx context.Context, workflowID, group string) ([]Task, error)

	// GetTask loads one task row by its natural key.
	GetTask(ctx context.Context, workflowID, group, name string, retryID int) (*Task, error)

	// GetTaskByUUID resolves a task_uuid to its owning row, used to route
	// a POD_LOG frame (task_uuid only) to its canonical log key.
	GetTaskByUUID(ctx context.Context, taskUUID string) (*Task, error)

	// ApplyTaskTransition performs the state-machine-guarded UPDATE from
	// §4.2.1 step 3.b: `UPDATE tasks SET status=... WHERE task_db_key=...
	// AND status IN (from) AND <phase>_start_time IS NULL`. Returns
	// applied=false when no row matched (stale/duplicate event, I1).
	ApplyTaskTransition(ctx context.Context, t TaskTransition) (applied bool, err error)

	// MarkGroupTasksStatus sets every unfinished task of a group (finish_time
	// still NULL) to status in one UPDATE statement; used for the
	// whole-group cancellation/failure variants
	// in §4.2.1 UpdateGroup step 2.
	MarkGroupTasksStatus(ctx context.Context, workflowID, group string, status statemachine.Status) error

	// InsertRetryTask inserts a new task row at retry_id+1 for a RESCHEDULED
	// task (lead or non-lead), copying the refresh token hash. It does not
	// check whether an earlier retry of the same name is still in a
	// non-finished status; the table's unique key only rejects a duplicate
	// retry_id.
	InsertRetryTask(ctx context.Context, workflowID, group, name string, refreshTokenHash string) (Task, error)

	// WriteGroupStatus writes the given group status if it differs from
	// the stored value (I2); returns whether a write occurred.
	WriteGroupStatus(ctx context.Context, workflowID, group string, status statemachine.Status) (changed bool, err error)

	// WriteWorkflowStatus is WriteGroupStatus's workflow-level analogue.
	WriteWorkflowStatus(ctx context.Context, workflowID string, status statemachine.WorkflowStatus, startedNow bool) (changed bool, err error)

	// SetGroupCleanedUp flips cleaned_up false->true exactly once (I6) and
	// reports whether every group of the workflow is now cleaned up.
	SetGroupCleanedUp(ctx context.Context, workflowID, group string) (allCleaned bool, err error)

	// SetCancelledBy records who cancelled a workflow; idempotent.
	SetCancelledBy(ctx context.Context, workflowID, user string) error

	// SetFailureMessage records the workflow's user-visible failure message
	// the first time it is written (§7 user-visible behaviour); later calls
	// are no-ops so the earliest root cause wins.
	SetFailureMessage(ctx context.Context, workflowID, msg string) error

	// SetArchiveURLs records the FileStore locations CleanupWorkflow moved
	// a workflow's logs/events to (§4.2.1 CleanupWorkflow).
	SetArchiveURLs(ctx context.Context, workflowID, logsURL, eventsURL string) error

	// DownstreamReadyAfter removes `group` from the remaining_upstream set
	// of every downstream group and returns the names whose set became
	// empty as a result (§4.2.1 UpdateGroup step 8, invariant I3).
	DownstreamReadyAfter(ctx context.Context, workflowID, group string) ([]string, error)

	// DownstreamOf returns every group name directly downstream of group.
	DownstreamOf(ctx context.Context, workflowID, group string) ([]string, error)

	// GetBackendByName loads a backend row by name, used to verify a
	// reconnecting agent's k8s_uid before UpsertBackend runs.
	GetBackendByName(ctx context.Context, name string) (*Backend, error)

	// UpsertBackend registers or refreshes a backend row on listener INIT.
	UpsertBackend(ctx context.Context, b Backend) error

	// TouchBackendHeartbeat bumps last_heartbeat for an already-registered
	// backend.
	TouchBackendHeartbeat(ctx context.Context, name string, at time.Time) error

	// GetPool loads pool configuration used by SubmitWorkflow validation
	// (maintenance state, priority support, GPU quota).
	GetPool(ctx context.Context, name string) (*Pool, error)

	// UpsertResource writes a listener RESOURCE/RESOURCE_USAGE update.
	UpsertResource(ctx context.Context, r Resource) error

	// DeleteResource removes a (name, backend) resource row.
	DeleteResource(ctx context.Context, name, backend string) error

	// Ping verifies connectivity for the /readyz probe.
	Ping(ctx context.Context) error

	Close() error
}
