// Copyright 2025 James Ross
package backendsession

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/osmo-project/control-plane/internal/job"
	"github.com/osmo-project/control-plane/internal/statemachine"
	"github.com/osmo-project/control-plane/internal/store"
)

// conditionKey identifies the per-(workflow, task, condition) ordering token
// the listener channel deduplicates stale pod-condition frames against
// (§4.4 ordering).
type conditionKey struct {
	workflowID string
	task       string
	condition  string
}

func (s *session) runListener(ctx context.Context, conn wsConn) error {
	defer conn.Close()

	first, err := readFrame(conn)
	if err != nil {
		return err
	}
	if _, err := s.handleInit(ctx, first); err != nil {
		return err
	}
	resp, err := newFrame(MsgInit, first.UUID, InitResponseBody{})
	if err != nil {
		return err
	}
	if err := writeFrame(conn, resp); err != nil {
		return err
	}

	latest := make(map[conditionKey]time.Time)
	heartbeatTicker := time.NewTicker(s.deps.Cfg.BackendSession.HeartbeatInterval)
	defer heartbeatTicker.Stop()
	go s.heartbeatLoop(ctx, conn, heartbeatTicker)
	go closeOnDone(ctx, conn)

	for ctx.Err() == nil {
		f, err := readFrame(conn)
		if err != nil {
			return err
		}
		if err := s.handleListenerFrame(ctx, conn, f, latest); err != nil {
			s.deps.Log.Warn("listener frame handling failed",
				zap.String("backend", s.backend), zap.String("type", string(f.Type)), zap.Error(err))
			continue
		}
		ack, err := newFrame(MsgAck, f.UUID, nil)
		if err != nil {
			continue
		}
		_ = writeFrame(conn, ack)
	}
	return ctx.Err()
}

func (s *session) heartbeatLoop(ctx context.Context, conn wsConn, t *time.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			f, err := newFrame(MsgHeartbeat, "", HeartbeatBody{})
			if err != nil {
				continue
			}
			if err := writeFrame(conn, f); err != nil {
				return
			}
		}
	}
}

func (s *session) handleListenerFrame(ctx context.Context, conn wsConn, f Frame, latest map[conditionKey]time.Time) error {
	switch f.Type {
	case MsgHeartbeat:
		return s.deps.Store.TouchBackendHeartbeat(ctx, s.backend, time.Now())
	case MsgLogging:
		var body LoggingBody
		if err := json.Unmarshal(f.Body, &body); err != nil {
			return err
		}
		s.deps.Log.Info("agent log", zap.String("backend", s.backend), zap.String("level", body.Level), zap.String("message", body.Message))
		return nil
	case MsgResource, MsgResourceUsage:
		var body ResourceBody
		if err := json.Unmarshal(f.Body, &body); err != nil {
			return err
		}
		return s.deps.Store.UpsertResource(ctx, store.Resource{
			Name: body.Name, Backend: s.backend, Allocatable: body.Allocatable,
			Usage: body.Usage, Labels: body.Labels, Taints: body.Taints,
			Conditions: body.Conditions, Available: body.Available,
		})
	case MsgDeleteResource:
		var body DeleteResourceBody
		if err := json.Unmarshal(f.Body, &body); err != nil {
			return err
		}
		return s.deps.Store.DeleteResource(ctx, body.Name, s.backend)
	case MsgPodConditions:
		return s.handlePodConditions(ctx, f, latest)
	case MsgUpdatePod, MsgMonitorPod, MsgPodEvent:
		return s.handlePodEvent(ctx, f)
	case MsgNodeHash, MsgTaskList, MsgMetrics, MsgNodeConditions:
		return nil // advisory, no state to update
	default:
		return nil
	}
}

// handlePodConditions filters ContainersReady, filters Initialized/Ready
// when true, and drops anything older than the latest timestamp already
// recorded for the same (workflow, task, condition) (§4.4 ordering).
func (s *session) handlePodConditions(ctx context.Context, f Frame, latest map[conditionKey]time.Time) error {
	var body PodConditionBody
	if err := json.Unmarshal(f.Body, &body); err != nil {
		return err
	}
	if body.Type == "ContainersReady" {
		return nil
	}
	if (body.Type == "Initialized" || body.Type == "Ready") && body.Status {
		return nil
	}
	key := conditionKey{workflowID: body.WorkflowID, task: body.Task, condition: body.Type}
	if prev, ok := latest[key]; ok && !body.Timestamp.After(prev) {
		return nil
	}
	latest[key] = body.Timestamp
	return nil
}

// handlePodEvent translates a reported task status into an UpdateGroup job
// (§5 data flow: "cluster events return through the listener channel, are
// translated into UpdateGroup jobs").
func (s *session) handlePodEvent(ctx context.Context, f Frame) error {
	var body PodEventBody
	if err := json.Unmarshal(f.Body, &body); err != nil {
		return err
	}
	if !isKnownStatus(body.Status) {
		return nil
	}
	j, err := job.New(job.SuperFrontend, job.TypeUpdateGroup,
		job.JobIDUpdateGroup(body.WorkflowID, body.Group, body.Task, body.RetryID, body.Status), "",
		job.UpdateGroupPayload{
			WorkflowID: body.WorkflowID, Group: body.Group, Task: body.Task,
			RetryID: body.RetryID, Lead: body.Lead, Status: body.Status,
			Message: body.Message, ExitCode: body.ExitCode,
		})
	if err != nil {
		return err
	}
	return s.enqueueFrontendJob(ctx, j)
}

func isKnownStatus(s string) bool {
	switch statemachine.Status(s) {
	case statemachine.Scheduling, statemachine.Initializing, statemachine.Running, statemachine.Completed,
		statemachine.Rescheduled, statemachine.Failed, statemachine.FailedServerError, statemachine.FailedBackendError,
		statemachine.FailedImagePull, statemachine.FailedEvicted, statemachine.FailedStartError,
		statemachine.FailedStartTimeout, statemachine.FailedPreempted:
		return true
	}
	return false
}
