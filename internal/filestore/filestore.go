// Copyright 2025 James Ross
// Package filestore is the opaque object-storage boundary used to archive
// workflow artefacts once a workflow finishes (§4.2.1 CleanupWorkflow):
// specs, per-task pod YAML, and log/event streams. OSMO's core never
// interprets blob contents; it only writes, reads back, and globs paths.
package filestore

import "context"

// FileStore is the object-storage boundary CleanupWorkflow and the
// UploadWorkflowFiles/UploadApp wrappers write through.
type FileStore interface {
	// Put writes data at key, overwriting any existing object.
	Put(ctx context.Context, key string, data []byte) error

	// Get reads the object at key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns every key matching a doublestar glob pattern, used to
	// find a workflow's scattered per-task log objects before archiving.
	List(ctx context.Context, pattern string) ([]string, error)

	// URL returns a reference the user-facing surface can hand back as the
	// workflow's archived log/event link (§7 user-visible behaviour).
	URL(key string) string
}

// WorkflowSpecKey, WorkflowLogKey, and WorkflowEventKey build the canonical
// object paths CleanupWorkflow and UploadWorkflowFiles write to, keyed by
// workflow_id so FileStore.List(WorkflowLogGlob(prefix, id)) finds every stream.
func WorkflowSpecKey(prefix, workflowID string) string {
	return prefix + "/" + workflowID + "/spec.json"
}

func WorkflowPodSpecKey(prefix, workflowID, task string) string {
	return prefix + "/" + workflowID + "/pods/" + task + ".yaml"
}

func WorkflowLogKey(prefix, workflowID, group, task string) string {
	return prefix + "/" + workflowID + "/logs/" + group + "/" + task + ".log"
}

func WorkflowEventKey(prefix, workflowID string) string {
	return prefix + "/" + workflowID + "/events.json"
}

func WorkflowLogGlob(prefix, workflowID string) string {
	return prefix + "/" + workflowID + "/logs/**/*.log"
}

func AppKey(prefix, appUUID string) string {
	return prefix + "/apps/" + appUUID + ".tar"
}
