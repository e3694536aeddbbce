// Copyright 2025 James Ross
package frontendworker

import (
	"context"
	"fmt"

	"github.com/osmo-project/control-plane/internal/filestore"
	"github.com/osmo-project/control-plane/internal/job"
)

// UploadWorkflowFiles stages every rendered pod spec at its canonical
// FileStore key (§4.2.1 CreateGroup step 3). It writes to the durable
// FileStore directly rather than LogStream; pod specs are write-once
// artefacts, not an append stream.
func (h *Handlers) UploadWorkflowFiles(ctx context.Context, j job.Job) (Outcome, error) {
	var p job.UploadWorkflowFilesPayload
	if err := j.Decode(&p); err != nil {
		return FailedNoRetry, fmt.Errorf("decode UploadWorkflowFilesPayload: %w", err)
	}
	prefix := h.Cfg.FileStore.Prefix
	for task, spec := range p.PodSpecs {
		key := filestore.WorkflowPodSpecKey(prefix, p.WorkflowID, task)
		if err := h.FileStore.Put(ctx, key, spec); err != nil {
			return FailedRetry, fmt.Errorf("put pod spec %s: %w", key, err)
		}
	}
	return Success, nil
}

// UploadApp stores a reusable application bundle referenced by future
// workflow submissions by app_uuid.
func (h *Handlers) UploadApp(ctx context.Context, j job.Job) (Outcome, error) {
	var p job.UploadAppPayload
	if err := j.Decode(&p); err != nil {
		return FailedNoRetry, fmt.Errorf("decode UploadAppPayload: %w", err)
	}
	key := filestore.AppKey(h.Cfg.FileStore.Prefix, p.AppUUID)
	if err := h.FileStore.Put(ctx, key, p.Content); err != nil {
		return FailedRetry, fmt.Errorf("put app bundle %s: %w", key, err)
	}
	return Success, nil
}

// DeleteApp removes a previously uploaded application bundle.
func (h *Handlers) DeleteApp(ctx context.Context, j job.Job) (Outcome, error) {
	var p job.DeleteAppPayload
	if err := j.Decode(&p); err != nil {
		return FailedNoRetry, fmt.Errorf("decode DeleteAppPayload: %w", err)
	}
	key := filestore.AppKey(h.Cfg.FileStore.Prefix, p.AppUUID)
	if err := h.FileStore.Delete(ctx, key); err != nil {
		return FailedRetry, fmt.Errorf("delete app bundle %s: %w", key, err)
	}
	return Success, nil
}
