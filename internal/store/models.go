// Copyright 2025 James Ross
// Package store is the transactional relational layer for workflows,
// groups, tasks, resources, backends, and pools. All multi-row
// operations that must appear atomic to a concurrent reader are
// exposed as named methods on Store rather than raw SQL left to
// callers.
package store

import (
	"encoding/json"
	"time"

	"github.com/osmo-project/control-plane/internal/statemachine"
)

// Workflow is the workflows row (§3, §6 persisted-state sketch).
type Workflow struct {
	WorkflowUUID string                    `db:"workflow_uuid"`
	WorkflowID   string                    `db:"workflow_id"`
	User         string                    `db:"user_name"`
	Pool         string                    `db:"pool"`
	Backend      string                    `db:"backend"`
	Priority     string                    `db:"priority"`
	Status       statemachine.WorkflowStatus `db:"status"`
	SubmitTime   time.Time                 `db:"submit_time"`
	StartTime    *time.Time                `db:"start_time"`
	EndTime      *time.Time                `db:"end_time"`
	QueueTimeout time.Duration             `db:"queue_timeout"`
	ExecTimeout  time.Duration             `db:"exec_timeout"`
	Plugins      json.RawMessage           `db:"plugins"`
	ParentUUID   *string                   `db:"parent_uuid"`
	AppUUID      *string                   `db:"app_uuid"`
	AppVersion   *string                   `db:"app_version"`
	CancelledBy  *string                   `db:"cancelled_by"`
	FailureMsg   *string                   `db:"failure_message"`
	LogsURL      *string                   `db:"logs_url"`
	EventsURL    *string                   `db:"events_url"`
}

// Group is the groups row. RemainingUpstream and Downstream are stored as
// JSON string arrays; Store callers treat them as sets.
type Group struct {
	GroupUUID         string             `db:"group_uuid"`
	WorkflowID        string             `db:"workflow_id"`
	Name              string             `db:"name"`
	Status            statemachine.Status `db:"status"`
	Spec              json.RawMessage    `db:"spec"`
	RemainingUpstream json.RawMessage    `db:"remaining_upstream"`
	Downstream        json.RawMessage    `db:"downstream"`
	SchedulerSettings json.RawMessage    `db:"scheduler_settings"`
	CleanedUp         bool               `db:"cleaned_up"`
	IgnoreNonleadStatus bool             `db:"ignore_nonlead_status"`
	Barrier           bool               `db:"barrier"`
}

// Task is the tasks row, keyed by TaskDBKey which is unique per
// (workflow_id, name, retry_id); invariant I4.
type Task struct {
	TaskDBKey       int64              `db:"task_db_key"`
	TaskUUID        string             `db:"task_uuid"`
	WorkflowID      string             `db:"workflow_id"`
	Group           string             `db:"group_name"`
	Name            string             `db:"name"`
	RetryID         int                `db:"retry_id"`
	Status          statemachine.Status `db:"status"`
	Lead            bool               `db:"lead"`
	ExitCode        *int               `db:"exit_code"`
	RefreshTokenHash string            `db:"refresh_token_hash"`
	ExitActions     json.RawMessage    `db:"exit_actions"`
	ScheduleStart   *time.Time         `db:"schedule_start_time"`
	InitStart       *time.Time         `db:"init_start_time"`
	RunStart        *time.Time         `db:"run_start_time"`
	FinishTime      *time.Time         `db:"finish_time"`
}

// Backend is the backends row, registered/refreshed by listener INIT.
type Backend struct {
	Name              string          `db:"name"`
	K8sUID            string          `db:"k8s_uid"`
	Namespace         string          `db:"k8s_namespace"`
	Version           string          `db:"version"`
	LastHeartbeat     time.Time       `db:"last_heartbeat"`
	SchedulerSettings json.RawMessage `db:"scheduler_settings"`
	NodeConditions    json.RawMessage `db:"node_conditions"`
	RouterAddress     string          `db:"router_address"`
}

// Pool is operator-managed; Status is derived from backend heartbeat age
// plus an explicit maintenance flag.
type Pool struct {
	Name               string          `db:"name"`
	Backend            string          `db:"backend"`
	Platforms          json.RawMessage `db:"platforms"`
	QueueTimeout       time.Duration   `db:"queue_timeout"`
	ExecTimeout        time.Duration   `db:"exec_timeout"`
	GPUQuota           *int            `db:"gpu_quota"`
	PrioritySupported  bool            `db:"priority_supported"`
	ActionPermissions  json.RawMessage `db:"action_permissions"`
	Status             string          `db:"status"`
	Maintenance        bool            `db:"maintenance"`
}

// Resource is a (backend, node_name) row upserted by listener RESOURCE
// messages and removed by DELETE_RESOURCE or node-list reconciliation.
type Resource struct {
	Name         string          `db:"name"`
	Backend      string          `db:"backend"`
	Allocatable  json.RawMessage `db:"allocatable"`
	Usage        json.RawMessage `db:"usage"`
	Labels       json.RawMessage `db:"labels"`
	Taints       json.RawMessage `db:"taints"`
	Conditions   json.RawMessage `db:"conditions"`
	Available    bool            `db:"available"`
}
