// Copyright 2025 James Ross
package frontendworker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/osmo-project/control-plane/internal/job"
	"github.com/osmo-project/control-plane/internal/scheduler"
	"github.com/osmo-project/control-plane/internal/statemachine"
	"github.com/osmo-project/control-plane/internal/store"
)

// SubmitWorkflow is the §4.2.1 SubmitWorkflow handler: expand the spec into
// group-level DAG edges, validate pool/priority/GPU quota, insert every row
// at once, schedule the queue-timeout check, and dispatch any group that is
// already ready (empty remaining_upstream).
func (h *Handlers) SubmitWorkflow(ctx context.Context, j job.Job) (Outcome, error) {
	var p job.SubmitWorkflowPayload
	if err := j.Decode(&p); err != nil {
		return FailedNoRetry, fmt.Errorf("decode SubmitWorkflow payload: %w", err)
	}

	if err := ValidateWorkflowSpec(p.Spec); err != nil {
		h.Log.Warn("workflow spec failed schema validation", zap.String("workflow_id", p.WorkflowID), zap.Error(err))
		return FailedNoRetry, err
	}
	spec, err := ParseWorkflowSpec(p.Spec)
	if err != nil {
		return FailedNoRetry, fmt.Errorf("parse workflow spec: %w", err)
	}

	pool, err := h.Store.GetPool(ctx, p.Pool)
	if err != nil {
		return classifyStoreErr(err)
	}
	if pool == nil {
		return FailedNoRetry, fmt.Errorf("pool %q not found", p.Pool)
	}

	specGroups := make([]scheduler.SpecGroup, 0, len(spec.Groups))
	gpuRequests := make([]scheduler.GroupGPURequest, 0, len(spec.Groups))
	for _, g := range spec.Groups {
		tasks := make(map[string][]scheduler.TaskInput, len(g.Tasks))
		gpuCount := 0
		for _, t := range g.Tasks {
			inputs := make([]scheduler.TaskInput, 0, len(t.Inputs))
			for _, in := range t.Inputs {
				inputs = append(inputs, scheduler.TaskInput{Task: in.Task, IsTaskRef: in.isTaskRef()})
			}
			tasks[t.Name] = inputs
			gpuCount += t.GPUCount
		}
		specGroups = append(specGroups, scheduler.SpecGroup{Name: g.Name, Tasks: tasks})
		gpuRequests = append(gpuRequests, scheduler.GroupGPURequest{Group: g.Name, GPUCount: gpuCount})
	}

	if err := scheduler.ValidateSubmission(
		scheduler.PoolCapability{PrioritySupported: pool.PrioritySupported, Maintenance: pool.Maintenance, GPUQuota: pool.GPUQuota},
		p.Priority, p.IsAdmin, gpuRequests,
	); err != nil {
		h.Log.Warn("workflow submission rejected", zap.String("workflow_id", p.WorkflowID), zap.Error(err))
		return FailedNoRetry, err
	}

	expansions, err := scheduler.ExpandDAG(specGroups)
	if err != nil {
		h.Log.Warn("workflow DAG rejected", zap.String("workflow_id", p.WorkflowID), zap.Error(err))
		return FailedNoRetry, err
	}

	nw := store.NewWorkflow{
		Workflow: store.Workflow{
			WorkflowUUID: p.WorkflowUUID,
			WorkflowID:   p.WorkflowID,
			User:         p.User,
			Pool:         p.Pool,
			Backend:      p.Backend,
			Priority:     string(p.Priority),
			Status:       statemachine.WFPending,
			QueueTimeout: p.QueueTimeout,
			ExecTimeout:  p.ExecTimeout,
		},
	}
	if p.ParentUUID != "" {
		nw.Workflow.ParentUUID = &p.ParentUUID
	}
	if p.AppUUID != "" {
		nw.Workflow.AppUUID = &p.AppUUID
	}
	if len(p.Plugins) > 0 {
		raw, err := json.Marshal(p.Plugins)
		if err != nil {
			return FailedNoRetry, fmt.Errorf("marshal plugins: %w", err)
		}
		nw.Workflow.Plugins = raw
	}

	for _, g := range spec.Groups {
		exp := expansions[g.Name]
		upstream, err := marshalSet(exp.RemainingUpstream)
		if err != nil {
			return FailedNoRetry, err
		}
		downstream, err := marshalSet(exp.Downstream)
		if err != nil {
			return FailedNoRetry, err
		}
		groupSpec, err := json.Marshal(g)
		if err != nil {
			return FailedNoRetry, fmt.Errorf("marshal group spec: %w", err)
		}

		ng := store.NewGroup{
			Group: store.Group{
				GroupUUID:           uuid.NewString(),
				WorkflowID:          p.WorkflowID,
				Name:                g.Name,
				Status:              statemachine.Submitting,
				Spec:                groupSpec,
				RemainingUpstream:   upstream,
				Downstream:          downstream,
				SchedulerSettings:   g.SchedulerSettings,
				IgnoreNonleadStatus: g.IgnoreNonlead,
				Barrier:             g.Barrier,
			},
		}
		for _, t := range g.Tasks {
			ng.Tasks = append(ng.Tasks, store.Task{
				TaskUUID:         uuid.NewString(),
				WorkflowID:       p.WorkflowID,
				Group:            g.Name,
				Name:             t.Name,
				RetryID:          0,
				Status:           statemachine.Waiting,
				Lead:             t.Lead,
				RefreshTokenHash: refreshTokenHash(),
				ExitActions:      t.ExitActions,
			})
		}
		nw.Groups = append(nw.Groups, ng)
	}

	if err := h.Store.InsertWorkflow(ctx, nw); err != nil {
		return classifyStoreErr(err)
	}

	checkJob, err := newCheckQueueTimeoutJob(p.WorkflowID)
	if err != nil {
		return FailedNoRetry, err
	}
	if err := h.enqueueDelayed(ctx, checkJob, p.QueueTimeout); err != nil {
		return FailedRetry, fmt.Errorf("enqueue CheckQueueTimeout: %w", err)
	}

	notCancelled, err := h.Store.FlipSubmittingToWaiting(ctx, p.WorkflowID)
	if err != nil {
		return classifyStoreErr(err)
	}
	if !notCancelled {
		return Success, nil
	}

	ready, err := h.Store.GroupsReadyToStart(ctx, p.WorkflowID)
	if err != nil {
		return classifyStoreErr(err)
	}
	for _, name := range ready {
		if err := h.Store.MarkGroupProcessing(ctx, p.WorkflowID, name); err != nil {
			return classifyStoreErr(err)
		}
		cg, err := newCreateGroupJob(p.WorkflowID, name, p.User, p.Backend)
		if err != nil {
			return FailedNoRetry, err
		}
		if err := h.enqueue(ctx, cg); err != nil {
			return FailedRetry, fmt.Errorf("enqueue CreateGroup: %w", err)
		}
	}
	return Success, nil
}

func marshalSet(set map[string]struct{}) (json.RawMessage, error) {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	raw, err := json.Marshal(names)
	if err != nil {
		return nil, fmt.Errorf("marshal group edge set: %w", err)
	}
	return raw, nil
}

// refreshTokenHash generates the per-task refresh-token hash stored at row
// creation time. The live token is minted and handed to the agent by the
// external credential boundary (§1 SecretBox); the control plane only ever
// persists its hash.
func refreshTokenHash() string {
	sum := sha256.Sum256([]byte(uuid.NewString()))
	return hex.EncodeToString(sum[:])
}
