// Copyright 2025 James Ross
// Package job defines the envelope OSMO jobs travel in across Broker: a
// discriminated union (SuperType + Type) with a deterministic dedup key
// and a randomly generated instance identity, carrying a type-specific
// JSON payload. See spec §4.1 and §9 ("Enum + tagged payload dispatch").
package job

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// SuperType routes a job to either the single FRONTEND queue or a
// per-backend BACKEND_JOBS:<backend> queue.
type SuperType string

const (
	SuperFrontend SuperType = "frontend"
	SuperBackend  SuperType = "backend"
)

// Type names the handler that should process a job (the discriminant of
// the tagged-union payload).
type Type string

const (
	TypeSubmitWorkflow      Type = "SubmitWorkflow"
	TypeCreateGroup         Type = "CreateGroup"
	TypeUpdateGroup         Type = "UpdateGroup"
	TypeCleanupGroup        Type = "CleanupGroup"
	TypeCleanupWorkflow     Type = "CleanupWorkflow"
	TypeCancelWorkflow      Type = "CancelWorkflow"
	TypeCheckQueueTimeout   Type = "CheckQueueTimeout"
	TypeCheckRunTimeout     Type = "CheckRunTimeout"
	TypeUploadWorkflowFiles Type = "UploadWorkflowFiles"
	TypeUploadApp           Type = "UploadApp"
	TypeDeleteApp           Type = "DeleteApp"
	TypeRescheduleTask      Type = "RescheduleTask"
)

// Job is the wire envelope persisted on Broker. Payload carries the
// type-specific fields as raw JSON so the envelope itself never needs to
// know every job variant; handlers unmarshal Payload into their own
// struct (see payloads.go).
type Job struct {
	SuperType SuperType       `json:"super_type"`
	JobType   Type            `json:"job_type"`
	JobID     string          `json:"job_id"`
	JobUUID   string          `json:"job_uuid"`
	Backend   string          `json:"backend,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// New builds a job envelope. jobID must already be the deterministic
// dedup key for this job's logical operation (callers derive it with the
// JobID* helpers below so that duplicate submissions produce equal IDs,
// per spec §4.1).
func New(super SuperType, typ Type, jobID, backend string, payload interface{}) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("marshal job payload for %s: %w", typ, err)
	}
	return Job{
		SuperType: super,
		JobType:   typ,
		JobID:     jobID,
		JobUUID:   uuid.NewString(),
		Backend:   backend,
		Payload:   raw,
	}, nil
}

// Marshal serializes the envelope for Broker transport.
func (j Job) Marshal() (string, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("marshal job envelope: %w", err)
	}
	return string(b), nil
}

// Unmarshal parses a Broker-transported envelope.
func Unmarshal(s string) (Job, error) {
	var j Job
	if err := json.Unmarshal([]byte(s), &j); err != nil {
		return Job{}, fmt.Errorf("unmarshal job envelope: %w", err)
	}
	return j, nil
}

// Decode unmarshals j.Payload into dst (a pointer to one of the payload
// structs in payloads.go).
func (j Job) Decode(dst interface{}) error {
	if err := json.Unmarshal(j.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.JobType, err)
	}
	return nil
}

// JobIDSubmitWorkflow is deterministic on workflow_id alone: a retried or
// duplicated submission request for the same workflow_id always produces
// the same dedup key.
func JobIDSubmitWorkflow(workflowID string) string {
	return fmt.Sprintf("%s-submit", workflowID)
}

// JobIDCreateGroup is deterministic on (workflow_id, group); re-dispatch
// after a requeue or reconnect must collide with the original.
func JobIDCreateGroup(workflowID, group string) string {
	return fmt.Sprintf("%s-%s-create", workflowID, group)
}

// JobIDUpdateGroup encodes the target status in the key's suffix so two
// UpdateGroup jobs for the same group but different statuses never collide
// in the dedup table, while replays of the exact same transition do.
func JobIDUpdateGroup(workflowID, group string, task string, retryID int, status string) string {
	if task == "" {
		return fmt.Sprintf("%s-%s-update-%s", workflowID, group, status)
	}
	return fmt.Sprintf("%s-%s-%s-%d-update-%s", workflowID, group, task, retryID, status)
}

// JobIDCleanupGroup is deterministic on (workflow_id, group): I6 requires
// the cleaned_up flag transitions exactly once, which is only safe if
// redelivered cleanup jobs dedup onto the original.
func JobIDCleanupGroup(workflowID, group string) string {
	return fmt.Sprintf("%s-%s-cleanup", workflowID, group)
}

// JobIDCleanupWorkflow is deterministic on workflow_id: P4 requires exactly
// one CleanupWorkflow job ever has effect.
func JobIDCleanupWorkflow(workflowID string) string {
	return fmt.Sprintf("%s-cleanup-workflow", workflowID)
}

// JobIDCancelWorkflow is deterministic on workflow_id so repeated cancel
// requests (e.g. a user double-clicking cancel) collapse to one.
func JobIDCancelWorkflow(workflowID string) string {
	return fmt.Sprintf("%s-cancel", workflowID)
}

// JobIDCheckQueueTimeout / JobIDCheckRunTimeout are deterministic on
// workflow_id: a check job re-enqueues itself under the same ID and
// job_uuid every time it reschedules (§4.2 Check*), so its own dedup entry
// keeps accepting it, while a second check job built for the same
// workflow (a different job_uuid) is absorbed by dedup rather than
// producing two competing timers.
func JobIDCheckQueueTimeout(workflowID string) string {
	return fmt.Sprintf("%s-check-queue-timeout", workflowID)
}

func JobIDCheckRunTimeout(workflowID string) string {
	return fmt.Sprintf("%s-check-run-timeout", workflowID)
}

// JobIDRescheduleTask is deterministic on the *new* retry row so a replayed
// reschedule dispatch can't insert two rows at the same retry_id (I4).
func JobIDRescheduleTask(workflowID, taskName string, retryID int) string {
	return fmt.Sprintf("%s-%s-%d-reschedule", workflowID, taskName, retryID)
}

// contentHash-derived IDs for the thin FileStore wrappers: two uploads of
// byte-identical content coalesce into one dedup entry (§4.2.1).
func JobIDUploadWorkflowFiles(workflowID, contentSHA256 string) string {
	return fmt.Sprintf("%s-upload-%s", workflowID, contentSHA256)
}
