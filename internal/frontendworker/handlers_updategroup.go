// Copyright 2025 James Ross
package frontendworker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/osmo-project/control-plane/internal/job"
	"github.com/osmo-project/control-plane/internal/scheduler"
	"github.com/osmo-project/control-plane/internal/statemachine"
	"github.com/osmo-project/control-plane/internal/store"
)

// UpdateGroup is the central transition handler (§4.2.1): it applies one
// task's (or a whole group's) status event, recomputes group and workflow
// aggregates, and cascades cleanup/downstream dispatch when a group
// finishes.
func (h *Handlers) UpdateGroup(ctx context.Context, j job.Job) (Outcome, error) {
	var p job.UpdateGroupPayload
	if err := j.Decode(&p); err != nil {
		return FailedNoRetry, fmt.Errorf("decode UpdateGroup payload: %w", err)
	}
	status := statemachine.Status(p.Status)

	group, err := h.Store.GetGroup(ctx, p.WorkflowID, p.Group)
	if err != nil {
		return classifyStoreErr(err)
	}
	if group == nil {
		return FailedNoRetry, fmt.Errorf("group %s/%s not found", p.WorkflowID, p.Group)
	}
	wf, err := h.Store.GetWorkflow(ctx, p.WorkflowID)
	if err != nil {
		return classifyStoreErr(err)
	}
	if wf == nil {
		return FailedNoRetry, fmt.Errorf("workflow %s not found", p.WorkflowID)
	}

	// Step 1: a cancellation observed while a CreateGroup is still in
	// flight re-queues itself one minute out rather than racing the
	// in-progress dispatch, unless the caller forced it.
	if status.Canceled() && group.Status == statemachine.Processing && !p.ForceCancel {
		requeued, err := newUpdateGroupJob(p.WorkflowID, p.Group, p.Task, p.RetryID, p.Lead, p.Status, p.Message, p.ExitCode, p.ForceCancel)
		if err != nil {
			return FailedNoRetry, err
		}
		requeued.JobUUID = j.JobUUID
		if err := h.enqueueDelayed(ctx, requeued, time.Minute); err != nil {
			return FailedRetry, fmt.Errorf("re-enqueue UpdateGroup: %w", err)
		}
		return Success, nil
	}

	var newGroupStatus statemachine.Status
	if isGroupWideStatus(status) {
		if err := h.Store.MarkGroupTasksStatus(ctx, p.WorkflowID, p.Group, status); err != nil {
			return classifyStoreErr(err)
		}
		// The literal status was just written to every task row; running it
		// back through AggregateGroup would collapse it to the generic
		// FAILED branch, so it's applied to the group directly instead
		// (task.py's update_status_to_db bypasses aggregation the same way
		// for in_queue()/canceled() statuses).
		newGroupStatus = status
	} else {
		if p.Task != "" {
			if outcome, err := h.applyTaskEvent(ctx, p, wf, group, status); outcome != Success {
				return outcome, err
			}
		}
		tasks, err := h.Store.GetTasks(ctx, p.WorkflowID, p.Group)
		if err != nil {
			return classifyStoreErr(err)
		}
		newGroupStatus = statemachine.AggregateGroup(taskViews(tasks), group.IgnoreNonleadStatus)
	}
	groupChanged, err := h.Store.WriteGroupStatus(ctx, p.WorkflowID, p.Group, newGroupStatus)
	if err != nil {
		return classifyStoreErr(err)
	}

	groups, err := h.Store.GetGroups(ctx, p.WorkflowID)
	if err != nil {
		return classifyStoreErr(err)
	}
	groupViews := make([]statemachine.GroupView, 0, len(groups))
	for _, g := range groups {
		st := g.Status
		if g.Name == p.Group {
			st = newGroupStatus
		}
		groupViews = append(groupViews, statemachine.GroupView{Status: st})
	}
	newWFStatus := statemachine.AggregateWorkflow(groupViews)
	wasPending := wf.Status == statemachine.WFPending
	wfChanged, err := h.Store.WriteWorkflowStatus(ctx, p.WorkflowID, newWFStatus, wasPending && newWFStatus == statemachine.WFRunning)
	if err != nil {
		return classifyStoreErr(err)
	}
	if wfChanged && wasPending && newWFStatus == statemachine.WFRunning {
		rj, err := newCheckRunTimeoutJob(p.WorkflowID)
		if err != nil {
			return FailedNoRetry, err
		}
		if err := h.enqueueDelayed(ctx, rj, wf.ExecTimeout); err != nil {
			return FailedRetry, fmt.Errorf("enqueue CheckRunTimeout: %w", err)
		}
	}
	// Step 6: a freshly-terminal workflow's user-visible notification is an
	// out-of-scope mechanism (§1 UI/metrics collectors); nothing further to
	// do here beyond the status write already applied above.

	if groupChanged && (newGroupStatus.GroupFinished() || p.ForceCancel) {
		if err := h.enqueueCleanupGroup(ctx, wf, group, newGroupStatus); err != nil {
			return FailedRetry, err
		}
	}

	if groupChanged && newGroupStatus.GroupFinished() {
		if newGroupStatus.Failed() {
			downstream, err := h.Store.DownstreamOf(ctx, p.WorkflowID, p.Group)
			if err != nil {
				return classifyStoreErr(err)
			}
			for _, name := range downstream {
				uj, err := newUpdateGroupJob(p.WorkflowID, name, "", 0, false, string(statemachine.FailedUpstream), "", nil, false)
				if err != nil {
					return FailedNoRetry, err
				}
				if err := h.enqueue(ctx, uj); err != nil {
					return FailedRetry, fmt.Errorf("enqueue downstream FAILED_UPSTREAM: %w", err)
				}
			}
		} else {
			ready, err := h.Store.DownstreamReadyAfter(ctx, p.WorkflowID, p.Group)
			if err != nil {
				return classifyStoreErr(err)
			}
			for _, name := range ready {
				if err := h.Store.MarkGroupProcessing(ctx, p.WorkflowID, name); err != nil {
					return classifyStoreErr(err)
				}
				cg, err := newCreateGroupJob(p.WorkflowID, name, wf.User, wf.Backend)
				if err != nil {
					return FailedNoRetry, err
				}
				if err := h.enqueue(ctx, cg); err != nil {
					return FailedRetry, fmt.Errorf("enqueue downstream CreateGroup: %w", err)
				}
			}
		}
	}

	return Success, nil
}

func isGroupWideStatus(s statemachine.Status) bool {
	switch s {
	case statemachine.FailedCanceled, statemachine.FailedExecTimeout, statemachine.FailedQueueTimeout,
		statemachine.FailedUpstream, statemachine.FailedServerError:
		return true
	}
	return false
}

func taskViews(tasks []store.Task) []statemachine.TaskView {
	views := make([]statemachine.TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, statemachine.TaskView{Status: t.Status, Lead: t.Lead})
	}
	return views
}

// applyTaskEvent runs §4.2.1 UpdateGroup step 3: rewrite the observed
// status through ExitActions, apply the predicated transition, and cascade
// barrier/lead/peer-propagation side effects if (and only if) the
// transition actually applied; a stale or duplicate event is a no-op (I1).
func (h *Handlers) applyTaskEvent(ctx context.Context, p job.UpdateGroupPayload, wf *store.Workflow, group *store.Group, status statemachine.Status) (Outcome, error) {
	task, err := h.Store.GetTask(ctx, p.WorkflowID, p.Group, p.Task, p.RetryID)
	if err != nil {
		return classifyStoreErr(err)
	}
	if task == nil {
		return FailedNoRetry, fmt.Errorf("task %s/%s/%s retry %d not found", p.WorkflowID, p.Group, p.Task, p.RetryID)
	}
	peers, err := h.Store.GetTasks(ctx, p.WorkflowID, p.Group)
	if err != nil {
		return classifyStoreErr(err)
	}

	finalStatus := h.rewriteByExitAction(ctx, p.WorkflowID, task, status, p.ExitCode)

	applied, err := h.Store.ApplyTaskTransition(ctx, store.TaskTransition{
		TaskDBKey: task.TaskDBKey,
		From:      statemachine.AllowedPredecessors(finalStatus),
		To:        finalStatus,
		ExitCode:  p.ExitCode,
		FinishNow: finalStatus.Finished(),
	})
	if err != nil {
		return classifyStoreErr(err)
	}
	if !applied {
		return Success, nil // stale/duplicate event (I1)
	}

	if group.Barrier && len(peers) > 1 && !task.Lead && finalStatus.GroupFinished() {
		if err := h.fireBarrier(ctx, p.WorkflowID, p.Group, wf, peers, task.Name); err != nil {
			return classifyStoreErr(err)
		}
	}

	switch {
	case task.Lead:
		if err := h.onLeadTransition(ctx, p, wf, group, peers, *task, finalStatus); err != nil {
			return classifyStoreErr(err)
		}
	case finalStatus == statemachine.Rescheduled:
		if err := h.onNonleadReschedule(ctx, p, wf, group, peers, *task); err != nil {
			return classifyStoreErr(err)
		}
	case !group.IgnoreNonleadStatus && finalStatus.Failed():
		if err := h.propagateStatusToPeers(ctx, peers, task.Name, finalStatus); err != nil {
			return classifyStoreErr(err)
		}
	}
	return Success, nil
}

// rewriteByExitAction applies the task's ExitActions spec (§4.5) to the
// observed status; a task with no spec or no reported exit code passes
// through unchanged. A retry-limit note comes back attached rather than
// applied (§4.5); it's recorded as the workflow's failure message so it
// reaches CleanupWorkflow's archived event the same way onfailure.go's
// rejection message does.
func (h *Handlers) rewriteByExitAction(ctx context.Context, workflowID string, task *store.Task, status statemachine.Status, exitCode *int) statemachine.Status {
	if exitCode == nil || len(task.ExitActions) == 0 {
		return status
	}
	var spec scheduler.ExitActionSpec
	if err := json.Unmarshal(task.ExitActions, &spec); err != nil {
		h.Log.Warn("ignoring malformed exit_actions", zap.Error(err))
		return status
	}
	result := scheduler.ApplyExitAction(spec, status, *exitCode, task.RetryID, h.Cfg.FrontendWorker.MaxRetryPerTask, true)
	if result.Note != "" {
		if err := h.Store.SetFailureMessage(ctx, workflowID, result.Note); err != nil {
			h.Log.Warn("recording exit action note", zap.Error(err))
		}
	}
	return result.Status
}

// fireBarrier pushes this task's finish into the group-ready membership set
// and, once every still-active non-lead peer has arrived, pushes a barrier
// token to each of them (§4.3, §12).
func (h *Handlers) fireBarrier(ctx context.Context, workflowID, groupName string, wf *store.Workflow, peers []store.Task, arriving string) error {
	active := 0
	var names []string
	for _, t := range peers {
		if t.Lead {
			continue
		}
		names = append(names, t.Name)
		if t.Name == arriving || !t.Status.GroupFinished() {
			active++
		}
	}
	ready, err := h.Barrier.Arrive(ctx, workflowID, groupName, arriving, active)
	if err != nil {
		return err
	}
	if !ready {
		return nil
	}
	return h.Barrier.PushBarrierToEveryPeer(ctx, workflowID, groupName, names, remainingExecTimeout(wf))
}

func remainingExecTimeout(wf *store.Workflow) time.Duration {
	if wf.StartTime == nil {
		return wf.ExecTimeout
	}
	remaining := wf.ExecTimeout - time.Since(*wf.StartTime)
	if remaining <= 0 {
		return time.Minute
	}
	return remaining
}

// onLeadTransition implements §4.2.1 step 3.c: barrier wipe, the
// reschedule-insert-and-restart-peers path, or plain status propagation.
func (h *Handlers) onLeadTransition(ctx context.Context, p job.UpdateGroupPayload, wf *store.Workflow, group *store.Group, peers []store.Task, lead store.Task, finalStatus statemachine.Status) error {
	if group.Barrier {
		if err := h.Barrier.Wipe(ctx, p.WorkflowID, p.Group); err != nil {
			return err
		}
	}

	if finalStatus != statemachine.Rescheduled {
		return h.propagateStatusToPeers(ctx, peers, lead.Name, finalStatus)
	}

	newTask, err := h.Store.InsertRetryTask(ctx, p.WorkflowID, p.Group, lead.Name, lead.RefreshTokenHash)
	if err != nil {
		return err
	}
	cleanupJob, err := newRescheduleCleanupJob(wf, group, lead)
	if err != nil {
		return err
	}
	createJob, err := newCreateGroupJob(p.WorkflowID, p.Group, wf.User, wf.Backend)
	if err != nil {
		return err
	}
	rj, err := newRescheduleTaskJob(p.WorkflowID, wf.WorkflowUUID, wf.Backend, lead.Name, newTask.RetryID, true, cleanupJob, createJob)
	if err != nil {
		return err
	}
	if err := h.enqueue(ctx, rj); err != nil {
		return fmt.Errorf("enqueue RescheduleTask: %w", err)
	}

	var peerNames []string
	for _, t := range peers {
		if !t.Lead {
			peerNames = append(peerNames, t.Name)
		}
	}
	if len(peerNames) == 0 {
		return nil
	}
	return h.Barrier.PushRestartToEveryPeer(ctx, p.WorkflowID, p.Group, peerNames, remainingExecTimeout(wf))
}

// onNonleadReschedule implements jobs.py's non-lead RESCHEDULED branch: the
// task always gets a retry row, regardless of ignoreNonleadStatus, but the
// barrier wipe and peer restart only happen when peer status isn't ignored
// (so a barrier group's still-live peers restart alongside it).
func (h *Handlers) onNonleadReschedule(ctx context.Context, p job.UpdateGroupPayload, wf *store.Workflow, group *store.Group, peers []store.Task, task store.Task) error {
	if !group.IgnoreNonleadStatus {
		if group.Barrier {
			if err := h.Barrier.Wipe(ctx, p.WorkflowID, p.Group); err != nil {
				return err
			}
		}
		var peerNames []string
		for _, t := range peers {
			if t.Name != task.Name {
				peerNames = append(peerNames, t.Name)
			}
		}
		if len(peerNames) > 0 {
			if err := h.Barrier.PushRestartToEveryPeer(ctx, p.WorkflowID, p.Group, peerNames, remainingExecTimeout(wf)); err != nil {
				return err
			}
		}
	}

	newTask, err := h.Store.InsertRetryTask(ctx, p.WorkflowID, p.Group, task.Name, task.RefreshTokenHash)
	if err != nil {
		return err
	}
	cleanupJob, err := newRescheduleCleanupJob(wf, group, task)
	if err != nil {
		return err
	}
	createJob, err := newCreateGroupJob(p.WorkflowID, p.Group, wf.User, wf.Backend)
	if err != nil {
		return err
	}
	rj, err := newRescheduleTaskJob(p.WorkflowID, wf.WorkflowUUID, wf.Backend, task.Name, newTask.RetryID, false, cleanupJob, createJob)
	if err != nil {
		return err
	}
	return h.enqueue(ctx, rj)
}

// propagateStatusToPeers applies a lead's (or a non-lead's, when
// !ignoreNonleadStatus) outcome to every other unfinished task of the
// group. Every FAILED_* variant is propagated as plain FAILED, since the
// peer didn't itself fail, so it shouldn't carry the original's specific
// failure reason.
func (h *Handlers) propagateStatusToPeers(ctx context.Context, peers []store.Task, exclude string, status statemachine.Status) error {
	propagated := status
	if status.Failed() && status != statemachine.Failed {
		propagated = statemachine.Failed
	}
	for _, t := range peers {
		if t.Name == exclude || t.Status.Finished() {
			continue
		}
		if _, err := h.Store.ApplyTaskTransition(ctx, store.TaskTransition{
			TaskDBKey: t.TaskDBKey,
			From:      statemachine.AllowedPredecessors(propagated),
			To:        propagated,
			FinishNow: propagated.Finished(),
		}); err != nil {
			return err
		}
	}
	return nil
}

// enqueueCleanupGroup builds and enqueues the backend-routed CleanupGroup
// job for a group that just finished (or was force-cancelled), attaching an
// error-log extraction spec when the terminal status warrants one.
func (h *Handlers) enqueueCleanupGroup(ctx context.Context, wf *store.Workflow, group *store.Group, status statemachine.Status) error {
	gl := scheduler.NewGangLabel(wf.Backend, wf.Pool, wf.WorkflowID, group.Name)
	labels := map[string]string(gl.Set)

	var errLog *job.ErrorLogSpec
	if status.HasErrorLogs() {
		errLog = &job.ErrorLogSpec{ResourceType: "pod", Labels: labels}
	}

	cg, err := newCleanupGroupJob(wf.WorkflowID, wf.WorkflowUUID, group.Name, wf.Backend, labels, errLog, h.Cfg.FrontendWorker.MaxErrorLogLines)
	if err != nil {
		return err
	}
	return h.enqueue(ctx, cg)
}

// newRescheduleCleanupJob builds the CleanupGroup job that tears down the
// old pod a RESCHEDULED lead is being replaced under, scoped to just that
// task's retry row rather than the whole gang.
func newRescheduleCleanupJob(wf *store.Workflow, group *store.Group, lead store.Task) (job.Job, error) {
	gl := scheduler.NewGangLabel(wf.Backend, wf.Pool, wf.WorkflowID, group.Name)
	labels := map[string]string(gl.Set)
	labels["osmo.task"] = lead.Name
	labels["osmo.retry_id"] = strconv.Itoa(lead.RetryID)
	return newCleanupGroupJob(wf.WorkflowID, wf.WorkflowUUID, group.Name, wf.Backend, labels, nil, 0)
}
