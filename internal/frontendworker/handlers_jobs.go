// Copyright 2025 James Ross
package frontendworker

import "github.com/osmo-project/control-plane/internal/job"

// The newXxxJob helpers build follow-on job envelopes with their
// deterministic dedup key, so every enqueue call site constructs its job
// the same way instead of repeating job.New/job.JobID* pairs inline.

func newCheckQueueTimeoutJob(workflowID string) (job.Job, error) {
	return job.New(job.SuperFrontend, job.TypeCheckQueueTimeout, job.JobIDCheckQueueTimeout(workflowID), "",
		job.CheckTimeoutPayload{WorkflowID: workflowID})
}

func newCheckRunTimeoutJob(workflowID string) (job.Job, error) {
	return job.New(job.SuperFrontend, job.TypeCheckRunTimeout, job.JobIDCheckRunTimeout(workflowID), "",
		job.CheckTimeoutPayload{WorkflowID: workflowID})
}

func newCreateGroupJob(workflowID, group, user, backend string) (job.Job, error) {
	return job.New(job.SuperBackend, job.TypeCreateGroup, job.JobIDCreateGroup(workflowID, group), backend,
		job.CreateGroupPayload{WorkflowID: workflowID, Group: group, User: user})
}

func newUpdateGroupJob(workflowID, group, task string, retryID int, lead bool, status, message string, exitCode *int, forceCancel bool) (job.Job, error) {
	return job.New(job.SuperFrontend, job.TypeUpdateGroup, job.JobIDUpdateGroup(workflowID, group, task, retryID, status), "",
		job.UpdateGroupPayload{
			WorkflowID:  workflowID,
			Group:       group,
			Task:        task,
			RetryID:     retryID,
			Lead:        lead,
			Status:      status,
			Message:     message,
			ExitCode:    exitCode,
			ForceCancel: forceCancel,
		})
}

func newCleanupGroupJob(workflowID, workflowUUID, group, backend string, labels map[string]string, errLog *job.ErrorLogSpec, maxLogLines int) (job.Job, error) {
	return job.New(job.SuperBackend, job.TypeCleanupGroup, job.JobIDCleanupGroup(workflowID, group), backend,
		job.CleanupGroupPayload{
			WorkflowID:   workflowID,
			WorkflowUUID: workflowUUID,
			Group:        group,
			Backend:      backend,
			Labels:       labels,
			ErrorLogSpec: errLog,
			MaxLogLines:  maxLogLines,
		})
}

func newCleanupWorkflowJob(workflowID, workflowUUID string) (job.Job, error) {
	return job.New(job.SuperFrontend, job.TypeCleanupWorkflow, job.JobIDCleanupWorkflow(workflowID), "",
		job.CleanupWorkflowPayload{WorkflowID: workflowID, WorkflowUUID: workflowUUID})
}

func newCancelWorkflowJob(workflowID, user, workflowStatus, taskStatus string, force bool) (job.Job, error) {
	return job.New(job.SuperFrontend, job.TypeCancelWorkflow, job.JobIDCancelWorkflow(workflowID), "",
		job.CancelWorkflowPayload{WorkflowID: workflowID, User: user, WorkflowStatus: workflowStatus, TaskStatus: taskStatus, Force: force})
}

func newRescheduleTaskJob(workflowID, workflowUUID, backend, taskName string, retryID int, lead bool, cleanupJob, createJob job.Job) (job.Job, error) {
	return job.New(job.SuperFrontend, job.TypeRescheduleTask, job.JobIDRescheduleTask(workflowID, taskName, retryID), "",
		job.RescheduleTaskPayload{
			WorkflowID: workflowID, WorkflowUUID: workflowUUID, Backend: backend,
			TaskName: taskName, RetryID: retryID, Lead: lead,
			CleanupJob: cleanupJob, CreateJob: createJob,
		})
}
