// Copyright 2025 James Ross
package backendsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/osmo-project/control-plane/internal/broker"
	"github.com/osmo-project/control-plane/internal/filestore"
	"github.com/osmo-project/control-plane/internal/frontendworker"
	"github.com/osmo-project/control-plane/internal/job"
)

// workerState is the in-process state owned by one worker-channel
// connection's pump-jobs/pump-messages pair (§5: "owned by that session and
// not shared across sessions").
type workerState struct {
	statusFrames chan Frame
	disconnected chan error
}

func (s *session) runWorker(ctx context.Context, conn wsConn) error {
	defer conn.Close()

	first, err := readFrame(conn)
	if err != nil {
		return err
	}
	if _, err := s.handleInit(ctx, first); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ws := &workerState{
		statusFrames: make(chan Frame, 1),
		disconnected: make(chan error, 1),
	}
	go s.pumpMessages(ctx, conn, ws)
	go closeOnDone(ctx, conn)
	return s.pumpJobs(ctx, conn, ws)
}

// pumpMessages is the worker channel's inbound half: it reads frames until
// the socket closes, routing JOB_STATUS to the waiting pumpJobs goroutine
// and streaming POD_LOG/LOGGING frames to their sinks (§4.4 worker channel
// step 2).
func (s *session) pumpMessages(ctx context.Context, conn wsConn, ws *workerState) {
	for {
		f, err := readFrame(conn)
		if err != nil {
			ws.disconnected <- err
			return
		}
		switch f.Type {
		case MsgJobStatus:
			select {
			case ws.statusFrames <- f:
			case <-ctx.Done():
				return
			}
		case MsgPodLog:
			if err := s.handlePodLog(ctx, f); err != nil {
				s.deps.Log.Warn("pod log ingest failed", zap.String("backend", s.backend), zap.Error(err))
			}
		case MsgLogging:
			var body LoggingBody
			if err := json.Unmarshal(f.Body, &body); err == nil {
				s.deps.Log.Info("agent log", zap.String("backend", s.backend), zap.String("level", body.Level), zap.String("message", body.Message))
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// handlePodLog stages a log chunk in LogStream, masking any of the task's
// known secrets first when the frame requests it.
func (s *session) handlePodLog(ctx context.Context, f Frame) error {
	var body PodLogBody
	if err := json.Unmarshal(f.Body, &body); err != nil {
		return err
	}
	text := body.Text
	if body.Mask && s.deps.Secrets != nil {
		secrets, err := s.deps.Secrets(ctx, body.TaskUUID)
		if err != nil {
			return fmt.Errorf("fetch secrets for masking: %w", err)
		}
		text = maskSecrets(text, secrets)
	}

	task, err := s.deps.Store.GetTaskByUUID(ctx, body.TaskUUID)
	if err != nil {
		return fmt.Errorf("resolve task_uuid %s: %w", body.TaskUUID, err)
	}
	if task == nil {
		return fmt.Errorf("unknown task_uuid %s", body.TaskUUID)
	}

	key := filestore.WorkflowLogKey(s.deps.Cfg.FileStore.Prefix, task.WorkflowID, task.Group, task.Name)
	existing, err := s.deps.Handlers.LogStream.Get(ctx, key)
	if err != nil {
		existing = nil
	}
	return s.deps.Handlers.LogStream.Put(ctx, key, append(existing, []byte(text)...))
}

func maskSecrets(text string, secrets []string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		text = redact(text, secret)
	}
	return text
}

func redact(text, secret string) string {
	mask := "***"
	for {
		idx := indexOf(text, secret)
		if idx < 0 {
			return text
		}
		text = text[:idx] + mask + text[idx+len(secret):]
	}
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

// pumpJobs is the worker channel's outbound half: it dequeues one backend
// job at a time, dedups, runs PrepareExecute, sends the job, and awaits its
// terminal JOB_STATUS before moving to the next (§4.4 worker channel steps
// 2-5: "processes one job at a time by design").
func (s *session) pumpJobs(ctx context.Context, conn wsConn, ws *workerState) error {
	queue := broker.BackendQueueKey(s.backend)
	for ctx.Err() == nil {
		payload, handle, ok, err := s.deps.Broker.Dequeue(ctx, queue)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.deps.Log.Warn("backend dequeue error", zap.String("backend", s.backend), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		j, err := job.Unmarshal(payload)
		if err != nil {
			_ = s.deps.Broker.Reject(ctx, handle, false)
			continue
		}

		accepted, storedUUID, err := s.deps.Broker.Dedup(ctx, j.JobID, j.JobUUID, s.deps.Cfg.Broker.DedupTTL)
		if err != nil {
			_ = s.deps.Broker.Reject(ctx, handle, true)
			continue
		}
		if !accepted && storedUUID != j.JobUUID {
			_ = s.deps.Broker.Ack(ctx, handle)
			continue
		}

		if err := s.runOneJob(ctx, conn, ws, j, handle); err != nil {
			if ctx.Err() != nil {
				return err
			}
			return err // disconnect: caller's defer closes conn, job already requeued
		}
	}
	return ctx.Err()
}

// runOneJob drives a single backend job through prepare, send, and
// await-status, acking or requeuing the broker handle according to the
// outcome.
func (s *session) runOneJob(ctx context.Context, conn wsConn, ws *workerState, j job.Job, handle broker.Handle) error {
	prep, err := s.deps.Handlers.PrepareExecute(ctx, j)
	if err != nil {
		_ = s.deps.Broker.Reject(ctx, handle, true)
		return nil
	}
	if !prep.Send {
		return s.completeJob(ctx, handle, j, prep.Outcome)
	}

	raw, err := json.Marshal(prep.Job)
	if err != nil {
		_ = s.deps.Broker.Reject(ctx, handle, false)
		return nil
	}
	frame := Frame{Type: MsgJob, UUID: prep.Job.JobUUID, Body: raw}
	if err := writeFrame(conn, frame); err != nil {
		_ = s.deps.Broker.Reject(ctx, handle, true)
		return err
	}

	select {
	case <-ctx.Done():
		_ = s.deps.Broker.Reject(ctx, handle, true)
		return ctx.Err()
	case err := <-ws.disconnected:
		_ = s.deps.Broker.Reject(ctx, handle, !isMessageTooLarge(err))
		if isMessageTooLarge(err) {
			return s.completeJob(ctx, handle, prep.Job, frontendworker.FailedNoRetry)
		}
		return err
	case statusFrame := <-ws.statusFrames:
		var status JobStatusBody
		if err := json.Unmarshal(statusFrame.Body, &status); err != nil {
			_ = s.deps.Broker.Reject(ctx, handle, true)
			return nil
		}
		return s.completeJob(ctx, handle, prep.Job, outcomeFromStatus(status.Status))
	}
}

func outcomeFromStatus(status string) frontendworker.Outcome {
	switch status {
	case JobStatusSuccess:
		return frontendworker.Success
	case JobStatusFailedNoRetry:
		return frontendworker.FailedNoRetry
	default:
		return frontendworker.FailedRetry
	}
}

// completeJob runs a successful WorkflowJob's frontend-side Execute step
// (§4.4 worker channel step 5), then acks or requeues the broker handle.
func (s *session) completeJob(ctx context.Context, handle broker.Handle, j job.Job, outcome frontendworker.Outcome) error {
	if outcome == frontendworker.Success && j.SuperType == job.SuperBackend {
		execOutcome, err := s.deps.Handlers.Execute(ctx, j)
		if err != nil {
			s.deps.Log.Warn("execute step failed", zap.String("job_type", string(j.JobType)), zap.Error(err))
		}
		outcome = execOutcome
	}
	if outcome == frontendworker.FailedNoRetry {
		s.deps.Handlers.HandleFailure(ctx, j)
	}
	if outcome == frontendworker.FailedRetry {
		return s.deps.Broker.Reject(ctx, handle, true)
	}
	return s.deps.Broker.Ack(ctx, handle)
}

func isMessageTooLarge(err error) bool {
	return errors.Is(err, websocket.ErrReadLimit) || websocket.IsCloseError(err, websocket.CloseMessageTooBig)
}
