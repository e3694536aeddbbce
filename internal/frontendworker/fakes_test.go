// Copyright 2025 James Ross
package frontendworker

import (
	"context"
	"time"

	"github.com/osmo-project/control-plane/internal/broker"
	"github.com/osmo-project/control-plane/internal/statemachine"
	"github.com/osmo-project/control-plane/internal/store"
)

// fakeStore embeds the zero-value Store interface and overrides only the
// methods a given test exercises; any unoverridden method panics on a nil
// interface call, which fails the test loudly rather than silently passing.
type fakeStore struct {
	store.Store

	workflow    *store.Workflow
	workflowErr error
	groups      []store.Group
	groupsErr   error
	pool        *store.Pool
	poolErr     error

	cancelledBy      string
	cancelledByUser  string
	failureMsg       string
	insertedWorkflow *store.NewWorkflow
	insertErr        error
	flippedNotCancel bool
	flipErr          error
	readyGroups      []string
	readyErr         error
	markedProcessing []string

	group    *store.Group
	groupErr error
	tasks    []store.Task
	tasksErr error
	task     *store.Task
	taskErr  error

	markedGroupTasksStatus *statemachine.Status
	markGroupErr           error

	writtenGroupStatus  *statemachine.Status
	groupStatusChanged  bool
	writeGroupStatusErr error

	writtenWFStatus  *statemachine.WorkflowStatus
	wfStatusChanged  bool
	writeWFStatusErr error

	appliedTransitions []store.TaskTransition
	applyResult        bool
	applyErr           error

	insertedRetry  *store.Task
	insertRetryErr error

	downstreamOfNames    []string
	downstreamOfErr      error
	downstreamReadyNames []string
	downstreamReadyErr   error
}

func (f *fakeStore) GetWorkflow(ctx context.Context, workflowID string) (*store.Workflow, error) {
	return f.workflow, f.workflowErr
}

func (f *fakeStore) GetGroups(ctx context.Context, workflowID string) ([]store.Group, error) {
	return f.groups, f.groupsErr
}

func (f *fakeStore) GetPool(ctx context.Context, name string) (*store.Pool, error) {
	return f.pool, f.poolErr
}

func (f *fakeStore) SetCancelledBy(ctx context.Context, workflowID, user string) error {
	f.cancelledBy = workflowID
	f.cancelledByUser = user
	return nil
}

func (f *fakeStore) SetFailureMessage(ctx context.Context, workflowID, msg string) error {
	f.failureMsg = msg
	return nil
}

func (f *fakeStore) InsertWorkflow(ctx context.Context, nw store.NewWorkflow) error {
	f.insertedWorkflow = &nw
	return f.insertErr
}

func (f *fakeStore) FlipSubmittingToWaiting(ctx context.Context, workflowID string) (bool, error) {
	return f.flippedNotCancel, f.flipErr
}

func (f *fakeStore) GroupsReadyToStart(ctx context.Context, workflowID string) ([]string, error) {
	return f.readyGroups, f.readyErr
}

func (f *fakeStore) MarkGroupProcessing(ctx context.Context, workflowID, group string) error {
	f.markedProcessing = append(f.markedProcessing, group)
	return nil
}

func (f *fakeStore) GetGroup(ctx context.Context, workflowID, group string) (*store.Group, error) {
	return f.group, f.groupErr
}

func (f *fakeStore) GetTasks(ctx context.Context, workflowID, group string) ([]store.Task, error) {
	return f.tasks, f.tasksErr
}

func (f *fakeStore) GetTask(ctx context.Context, workflowID, group, name string, retryID int) (*store.Task, error) {
	return f.task, f.taskErr
}

func (f *fakeStore) MarkGroupTasksStatus(ctx context.Context, workflowID, group string, status statemachine.Status) error {
	s := status
	f.markedGroupTasksStatus = &s
	return f.markGroupErr
}

func (f *fakeStore) WriteGroupStatus(ctx context.Context, workflowID, group string, status statemachine.Status) (bool, error) {
	s := status
	f.writtenGroupStatus = &s
	if f.writeGroupStatusErr != nil {
		return false, f.writeGroupStatusErr
	}
	return f.groupStatusChanged, nil
}

func (f *fakeStore) WriteWorkflowStatus(ctx context.Context, workflowID string, status statemachine.WorkflowStatus, startedNow bool) (bool, error) {
	s := status
	f.writtenWFStatus = &s
	if f.writeWFStatusErr != nil {
		return false, f.writeWFStatusErr
	}
	return f.wfStatusChanged, nil
}

func (f *fakeStore) ApplyTaskTransition(ctx context.Context, t store.TaskTransition) (bool, error) {
	f.appliedTransitions = append(f.appliedTransitions, t)
	if f.applyErr != nil {
		return false, f.applyErr
	}
	return f.applyResult, nil
}

func (f *fakeStore) InsertRetryTask(ctx context.Context, workflowID, group, name, refreshTokenHash string) (store.Task, error) {
	if f.insertedRetry != nil {
		return *f.insertedRetry, f.insertRetryErr
	}
	return store.Task{}, f.insertRetryErr
}

func (f *fakeStore) DownstreamOf(ctx context.Context, workflowID, group string) ([]string, error) {
	return f.downstreamOfNames, f.downstreamOfErr
}

func (f *fakeStore) DownstreamReadyAfter(ctx context.Context, workflowID, group string) ([]string, error) {
	return f.downstreamReadyNames, f.downstreamReadyErr
}

// fakeBroker embeds the zero-value Broker interface and records every
// payload handed to Enqueue/EnqueueDelayed so tests can assert on the
// follow-on jobs a handler dispatched.
type fakeBroker struct {
	broker.Broker

	enqueued        []string
	enqueueErr      error
	delayedPayloads []string
	delayedDur      []time.Duration
	delayedErr      error
}

func (f *fakeBroker) Enqueue(ctx context.Context, queueKey, payload string) error {
	f.enqueued = append(f.enqueued, payload)
	return f.enqueueErr
}

func (f *fakeBroker) EnqueueDelayed(ctx context.Context, queueKey, payload string, d time.Duration) error {
	f.delayedPayloads = append(f.delayedPayloads, payload)
	f.delayedDur = append(f.delayedDur, d)
	return f.delayedErr
}

func groupFinished(status statemachine.Status) store.Group {
	return store.Group{Status: status}
}
