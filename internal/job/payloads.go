package job

import "time"

// Priority is the workflow scheduling priority (§4.5); only schedulers
// that declare PrioritySupported accept anything but Normal.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
)

// SubmitWorkflowPayload is the §4.2.1 SubmitWorkflow handler's input.
type SubmitWorkflowPayload struct {
	WorkflowID   string          `json:"workflow_id"`
	WorkflowUUID string          `json:"workflow_uuid"`
	Spec         []byte          `json:"spec"`
	User         string          `json:"user"`
	Pool         string          `json:"pool"`
	Backend      string          `json:"backend"`
	Priority     Priority        `json:"priority"`
	QueueTimeout time.Duration   `json:"queue_timeout"`
	ExecTimeout  time.Duration   `json:"exec_timeout"`
	Plugins      map[string]bool `json:"plugins,omitempty"`
	ParentUUID   string          `json:"parent_uuid,omitempty"`
	AppUUID      string          `json:"app_uuid,omitempty"`
	IsAdmin      bool            `json:"is_admin,omitempty"`
}

// CreateGroupPayload is the §4.2.1 CreateGroup handler's input. K8sResources
// is populated by the frontend-side prepare_execute step (PodSpecRenderer
// output) before BackendSession ever sees the job.
type CreateGroupPayload struct {
	WorkflowID   string            `json:"workflow_id"`
	WorkflowUUID string            `json:"workflow_uuid"`
	Group        string            `json:"group"`
	User         string            `json:"user"`
	K8sResources []RawK8sResource  `json:"k8s_resources,omitempty"`
	PodSpecs     map[string][]byte `json:"pod_specs,omitempty"`
}

// RawK8sResource is an opaque cluster object as rendered by the external
// PodSpecRenderer; OSMO's core never interprets its contents.
type RawK8sResource struct {
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Manifest []byte `json:"manifest"`
}

// UpdateGroupPayload is the §4.2.1 UpdateGroup handler's input: the
// central transition event. Task/RetryID/Lead are empty/zero when the
// event describes the whole group (a cancellation variant or the backend
// reporting a group-wide failure).
type UpdateGroupPayload struct {
	WorkflowID  string           `json:"workflow_id"`
	Group       string           `json:"group"`
	Task        string           `json:"task,omitempty"`
	RetryID     int              `json:"retry_id"`
	Lead        bool             `json:"lead"`
	Status      string           `json:"status"`
	Message     string           `json:"message,omitempty"`
	ExitCode    *int             `json:"exit_code,omitempty"`
	ForceCancel bool             `json:"force_cancel"`
}

// CleanupGroupPayload is the backend-job input that tells a BackendSession
// which cluster objects to remove once a group has finished.
type CleanupGroupPayload struct {
	WorkflowID    string            `json:"workflow_id"`
	WorkflowUUID  string            `json:"workflow_uuid"`
	Group         string            `json:"group"`
	Backend       string            `json:"backend"`
	Labels        map[string]string `json:"labels"`
	ErrorLogSpec  *ErrorLogSpec     `json:"error_log_spec,omitempty"`
	MaxLogLines   int               `json:"max_log_lines"`
}

// ErrorLogSpec names the cluster resource CleanupGroup should pull logs
// from before deleting it, gated by Status.HasErrorLogs.
type ErrorLogSpec struct {
	ResourceType string            `json:"resource_type"`
	Labels       map[string]string `json:"labels"`
}

// CleanupWorkflowPayload is the §4.2.1 CleanupWorkflow handler's input.
type CleanupWorkflowPayload struct {
	WorkflowID   string `json:"workflow_id"`
	WorkflowUUID string `json:"workflow_uuid"`
}

// CancelWorkflowPayload is the §4.2.1 CancelWorkflow handler's input.
type CancelWorkflowPayload struct {
	WorkflowID     string `json:"workflow_id"`
	User           string `json:"user"`
	WorkflowStatus string `json:"workflow_status"`
	TaskStatus     string `json:"task_status"`
	Force          bool   `json:"force"`
}

// CheckTimeoutPayload is shared by CheckQueueTimeout and CheckRunTimeout;
// both re-read the current timeout from the workflow row before acting so
// an operator-driven extension (P8, Scenario S4) is always honoured.
type CheckTimeoutPayload struct {
	WorkflowID string `json:"workflow_id"`
}

// UploadWorkflowFilesPayload is the thin FileStore wrapper's input.
type UploadWorkflowFilesPayload struct {
	WorkflowID string            `json:"workflow_id"`
	PodSpecs   map[string][]byte `json:"pod_specs"`
}

// UploadAppPayload/DeleteAppPayload are thin FileStore wrappers for
// reusable application bundles referenced by workflow submissions.
type UploadAppPayload struct {
	AppUUID string `json:"app_uuid"`
	Content []byte `json:"content"`
}

type DeleteAppPayload struct {
	AppUUID string `json:"app_uuid"`
}

// RescheduleTaskPayload carries the pre-built follow-on jobs so the
// reschedule path can enqueue a CleanupGroup for the old pod and a
// CreateGroup for the new one in one shot (§4.2.1 UpdateGroup step 3.c).
type RescheduleTaskPayload struct {
	WorkflowID   string  `json:"workflow_id"`
	WorkflowUUID string  `json:"workflow_uuid"`
	Backend      string  `json:"backend"`
	TaskName     string  `json:"task_name"`
	RetryID      int     `json:"retry_id"`
	Lead         bool    `json:"lead"`
	CleanupJob   Job     `json:"cleanup_job"`
	CreateJob    Job     `json:"create_job"`
}
