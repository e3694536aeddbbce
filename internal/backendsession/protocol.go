// Copyright 2025 James Ross
// Package backendsession implements the per-backend bidirectional websocket
// protocol (§4.4): a listener channel carrying cluster telemetry into the
// control plane, and a worker channel carrying job dispatch out to the
// cluster agent.
package backendsession

import (
	"encoding/json"
	"time"
)

// MessageType is the discriminant of every frame exchanged on either
// channel (§6 agent protocol).
type MessageType string

const (
	MsgInit           MessageType = "INIT"
	MsgLogging        MessageType = "LOGGING"
	MsgUpdatePod      MessageType = "UPDATE_POD"
	MsgMonitorPod     MessageType = "MONITOR_POD"
	MsgResource       MessageType = "RESOURCE"
	MsgResourceUsage  MessageType = "RESOURCE_USAGE"
	MsgDeleteResource MessageType = "DELETE_RESOURCE"
	MsgNodeHash       MessageType = "NODE_HASH"
	MsgTaskList       MessageType = "TASK_LIST"
	MsgHeartbeat      MessageType = "HEARTBEAT"
	MsgMetrics        MessageType = "METRICS"
	MsgPodConditions  MessageType = "POD_CONDITIONS"
	MsgPodEvent       MessageType = "POD_EVENT"
	MsgAck            MessageType = "ACK"
	MsgJobStatus      MessageType = "JOB_STATUS"
	MsgPodLog         MessageType = "POD_LOG"
	MsgNodeConditions MessageType = "NODE_CONDITIONS"
	MsgJob            MessageType = "JOB" // worker-channel frame carrying a job.Job envelope
)

// Frame is the wire envelope every text frame on either channel carries.
type Frame struct {
	Type MessageType     `json:"type"`
	UUID string          `json:"uuid"`
	Body json.RawMessage `json:"body"`
}

func newFrame(typ MessageType, uuid string, body interface{}) (Frame, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: typ, UUID: uuid, Body: raw}, nil
}

// InitBody is the first frame either channel must send (§4.4 steps 2/1).
type InitBody struct {
	K8sUID            string          `json:"k8s_uid"`
	Namespace         string          `json:"namespace"`
	Version           string          `json:"version"`
	RouterAddress     string          `json:"router_address"`
	SchedulerSettings json.RawMessage `json:"scheduler_settings"`
}

// InitResponseBody is returned on a listener channel's INIT, carrying
// node-condition filtering configuration the agent should apply locally.
type InitResponseBody struct {
	NodeConditions json.RawMessage `json:"node_conditions"`
}

// ResourceBody carries a listener RESOURCE/RESOURCE_USAGE upsert.
type ResourceBody struct {
	Name        string          `json:"name"`
	Allocatable json.RawMessage `json:"allocatable"`
	Usage       json.RawMessage `json:"usage"`
	Labels      json.RawMessage `json:"labels"`
	Taints      json.RawMessage `json:"taints"`
	Conditions  json.RawMessage `json:"conditions"`
	Available   bool            `json:"available"`
}

// DeleteResourceBody names a resource row to remove.
type DeleteResourceBody struct {
	Name string `json:"name"`
}

// PodConditionBody is one filtered, deduplicated condition observation
// (§4.4 ordering: ContainersReady dropped, Initialized/Ready dropped when
// true, stale timestamps discarded).
type PodConditionBody struct {
	WorkflowID string    `json:"workflow_id"`
	Group      string    `json:"group"`
	Task       string    `json:"task"`
	RetryID    int       `json:"retry_id"`
	Type       string    `json:"condition_type"`
	Status     bool      `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// PodEventBody reports a task's observed terminal or phase status, the
// frame that drives UpdateGroup dispatch.
type PodEventBody struct {
	WorkflowID string `json:"workflow_id"`
	Group      string `json:"group"`
	Task       string `json:"task"`
	RetryID    int    `json:"retry_id"`
	Lead       bool   `json:"lead"`
	Status     string `json:"status"`
	ExitCode   *int   `json:"exit_code,omitempty"`
	Message    string `json:"message,omitempty"`
}

// JobStatusBody reports a worker-channel job's terminal outcome.
type JobStatusBody struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"` // SUCCESS, FAILED_NO_RETRY, FAILED_RETRY
	Message string `json:"message,omitempty"`
}

const (
	JobStatusSuccess      = "SUCCESS"
	JobStatusFailedNoRetry = "FAILED_NO_RETRY"
	JobStatusFailedRetry   = "FAILED_RETRY"
)

// PodLogBody streams a chunk of task log text (§4.4 worker channel step 5).
type PodLogBody struct {
	TaskUUID string `json:"task_uuid"`
	RetryID  int    `json:"retry_id"`
	Text     string `json:"text"`
	Mask     bool   `json:"mask"`
}

// LoggingBody is an agent-originated audit line, recorded as-is.
type LoggingBody struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// HeartbeatBody is empty; its arrival is the signal.
type HeartbeatBody struct{}
