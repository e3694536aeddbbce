// Copyright 2025 James Ross
package frontendworker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/osmo-project/control-plane/internal/job"
	"github.com/osmo-project/control-plane/internal/statemachine"
)

// PrepareResult is what PrepareExecute returns for a backend-routed job: the
// modified job to actually send (with rendered manifests attached), whether
// it should be sent at all, and the Outcome to report for a no-send.
type PrepareResult struct {
	Send    bool
	Outcome Outcome
	Job     job.Job
}

// PrepareExecute runs the frontend-side half of a backend job before it is
// handed to a BackendSession's worker channel (§4.2.1 CreateGroup steps
// 1-4, CleanupGroup has no prepare step). Only CreateGroup currently needs
// preparation; every other backend job type passes through unmodified.
func (h *Handlers) PrepareExecute(ctx context.Context, j job.Job) (PrepareResult, error) {
	switch j.JobType {
	case job.TypeCreateGroup:
		return h.prepareCreateGroup(ctx, j)
	default:
		return PrepareResult{Send: true, Outcome: Success, Job: j}, nil
	}
}

// Execute runs the frontend-side completion hook a BackendSession calls
// once it has sent a backend job (§4.2.1 CreateGroup step 4, CleanupGroup).
func (h *Handlers) Execute(ctx context.Context, j job.Job) (Outcome, error) {
	switch j.JobType {
	case job.TypeCreateGroup:
		return h.executeCreateGroup(ctx, j)
	case job.TypeCleanupGroup:
		return h.executeCleanupGroup(ctx, j)
	default:
		return Success, nil
	}
}

// prepareCreateGroup renders every task's pod spec, stages them in
// FileStore via a deduplicated UploadWorkflowFiles job, and attaches the
// rendered manifests to the job before it is sent to the backend. A group
// that has already moved past PROCESSING (a stale dispatch racing a
// cancellation or reschedule) is dropped silently.
func (h *Handlers) prepareCreateGroup(ctx context.Context, j job.Job) (PrepareResult, error) {
	var p job.CreateGroupPayload
	if err := j.Decode(&p); err != nil {
		return PrepareResult{}, fmt.Errorf("decode CreateGroupPayload: %w", err)
	}

	group, err := h.Store.GetGroup(ctx, p.WorkflowID, p.Group)
	if err != nil {
		return PrepareResult{}, err
	}
	if group == nil || group.Status != statemachine.Processing {
		return PrepareResult{Send: false, Outcome: Success}, nil
	}

	tasks, err := h.Store.GetTasks(ctx, p.WorkflowID, p.Group)
	if err != nil {
		return PrepareResult{}, err
	}

	resources, podSpecs, err := h.Renderer.Render(ctx, p.WorkflowID, p.Group, tasks, group.Spec)
	if err != nil {
		return PrepareResult{}, fmt.Errorf("render pod specs for %s/%s: %w", p.WorkflowID, p.Group, err)
	}

	digest := contentDigest(podSpecs)
	uploadJob, err := job.New(job.SuperFrontend, job.TypeUploadWorkflowFiles, job.JobIDUploadWorkflowFiles(p.WorkflowID, digest), "",
		job.UploadWorkflowFilesPayload{WorkflowID: p.WorkflowID, PodSpecs: podSpecs})
	if err != nil {
		return PrepareResult{}, err
	}
	if err := h.enqueue(ctx, uploadJob); err != nil {
		return PrepareResult{}, fmt.Errorf("enqueue UploadWorkflowFiles: %w", err)
	}

	p.K8sResources = resources
	p.PodSpecs = podSpecs
	updated, err := job.New(j.SuperType, j.JobType, j.JobID, j.Backend, p)
	if err != nil {
		return PrepareResult{}, err
	}
	updated.JobUUID = j.JobUUID
	return PrepareResult{Send: true, Outcome: Success, Job: updated}, nil
}

// executeCreateGroup is a no-op: the tasks' subsequent status changes
// arrive as listener-driven UpdateGroup events, not as a synchronous
// response to dispatch.
func (h *Handlers) executeCreateGroup(ctx context.Context, j job.Job) (Outcome, error) {
	return Success, nil
}

// executeCleanupGroup marks the group cleaned up and, once every group of
// the workflow has been cleaned up, enqueues CleanupWorkflow (I6, §4.2.1).
func (h *Handlers) executeCleanupGroup(ctx context.Context, j job.Job) (Outcome, error) {
	var p job.CleanupGroupPayload
	if err := j.Decode(&p); err != nil {
		return FailedNoRetry, fmt.Errorf("decode CleanupGroupPayload: %w", err)
	}
	allCleaned, err := h.Store.SetGroupCleanedUp(ctx, p.WorkflowID, p.Group)
	if err != nil {
		return classifyStoreErr(err)
	}
	if !allCleaned {
		return Success, nil
	}
	cw, err := newCleanupWorkflowJob(p.WorkflowID, p.WorkflowUUID)
	if err != nil {
		return FailedNoRetry, err
	}
	if err := h.enqueue(ctx, cw); err != nil {
		return FailedRetry, fmt.Errorf("enqueue CleanupWorkflow: %w", err)
	}
	return Success, nil
}

// contentDigest hashes a pod-spec set deterministically (sorted by task
// name) so two renders of byte-identical content collapse onto the same
// UploadWorkflowFiles dedup key.
func contentDigest(podSpecs map[string][]byte) string {
	names := make([]string, 0, len(podSpecs))
	for n := range podSpecs {
		names = append(names, n)
	}
	sort.Strings(names)
	h := sha256.New()
	for _, n := range names {
		h.Write([]byte(n))
		h.Write(podSpecs[n])
	}
	return hex.EncodeToString(h.Sum(nil))
}
