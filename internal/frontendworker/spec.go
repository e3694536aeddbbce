// Copyright 2025 James Ross
package frontendworker

import "encoding/json"

// WorkflowSpec is the user-submitted DAG definition carried as raw JSON in
// SubmitWorkflowPayload.Spec. OSMO's core only needs the fields that drive
// DAG expansion, quota checks, and row creation; everything else
// (container images, command lines, mounts) is opaque and handed to the
// external PodSpecRenderer untouched.
type WorkflowSpec struct {
	Groups []GroupSpec `json:"groups"`
}

type GroupSpec struct {
	Name              string          `json:"name"`
	Barrier           bool            `json:"barrier"`
	IgnoreNonlead     bool            `json:"ignore_nonlead_status"`
	SchedulerSettings json.RawMessage `json:"scheduler_settings"`
	Tasks             []TaskSpec      `json:"tasks"`
}

type TaskSpec struct {
	Name        string          `json:"name"`
	Lead        bool            `json:"lead"`
	GPUCount    int             `json:"gpu_count"`
	Inputs      []InputRef      `json:"inputs"`
	ExitActions json.RawMessage `json:"exit_actions"`
}

// InputRef is one element of a task's `inputs` list (§4.5 DAG expansion):
// a reference to another task's output, or to a dataset (ignored for DAG
// edges).
type InputRef struct {
	Task       string `json:"task,omitempty"`
	Dataset    string `json:"dataset,omitempty"`
}

func (r InputRef) isTaskRef() bool { return r.Task != "" }

// ParseWorkflowSpec decodes the submitted spec JSON.
func ParseWorkflowSpec(raw []byte) (WorkflowSpec, error) {
	var s WorkflowSpec
	if err := json.Unmarshal(raw, &s); err != nil {
		return WorkflowSpec{}, err
	}
	return s, nil
}
