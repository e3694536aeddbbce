// Copyright 2025 James Ross
package frontendworker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/osmo-project/control-plane/internal/filestore"
	"github.com/osmo-project/control-plane/internal/job"
)

// endFlagEvent is the final line appended to a workflow's archived event
// stream, letting a reader of the archive know the stream is complete
// without needing the workflow row itself.
type endFlagEvent struct {
	Type           string  `json:"type"`
	Status         string  `json:"status"`
	FailureMessage *string `json:"failure_message,omitempty"`
	Timestamp      string  `json:"timestamp"`
}

// CleanupWorkflow is the §4.2.1 terminal handler: it appends an end-of-stream
// marker to the workflow's event log, moves every staged log object from
// LogStream into the durable FileStore, and records the archive locations
// (P4, runs exactly once per workflow, via the deterministic dedup key).
func (h *Handlers) CleanupWorkflow(ctx context.Context, j job.Job) (Outcome, error) {
	var p job.CleanupWorkflowPayload
	if err := j.Decode(&p); err != nil {
		return FailedNoRetry, fmt.Errorf("decode CleanupWorkflowPayload: %w", err)
	}

	wf, err := h.Store.GetWorkflow(ctx, p.WorkflowID)
	if err != nil {
		return classifyStoreErr(err)
	}
	if wf == nil {
		return FailedNoRetry, fmt.Errorf("workflow %s not found", p.WorkflowID)
	}

	prefix := h.Cfg.FileStore.Prefix
	eventsKey := filestore.WorkflowEventKey(prefix, p.WorkflowID)
	existing, err := h.FileStore.Get(ctx, eventsKey)
	if err != nil {
		existing = nil // no prior events archived yet
	}
	flag := endFlagEvent{
		Type:           "END_FLAG",
		Status:         string(wf.Status),
		FailureMessage: wf.FailureMsg,
		Timestamp:      wf.SubmitTime.Format(time.RFC3339),
	}
	if wf.EndTime != nil {
		flag.Timestamp = wf.EndTime.Format(time.RFC3339)
	}
	line, err := json.Marshal(flag)
	if err != nil {
		return FailedNoRetry, fmt.Errorf("marshal end flag: %w", err)
	}
	body := append(existing, append(line, '\n')...)
	if err := h.FileStore.Put(ctx, eventsKey, body); err != nil {
		return FailedRetry, fmt.Errorf("archive events: %w", err)
	}

	logsURL, err := h.archiveLogs(ctx, prefix, p.WorkflowID)
	if err != nil {
		return FailedRetry, err
	}

	if err := h.Store.SetArchiveURLs(ctx, p.WorkflowID, logsURL, h.FileStore.URL(eventsKey)); err != nil {
		return classifyStoreErr(err)
	}
	return Success, nil
}

// archiveLogs drains every log object staged in LogStream for workflowID
// into the durable FileStore, bounded to cleanup_concurrency concurrent
// moves, and returns a URL representative of the archived log prefix.
func (h *Handlers) archiveLogs(ctx context.Context, prefix, workflowID string) (string, error) {
	glob := filestore.WorkflowLogGlob(prefix, workflowID)
	keys, err := h.LogStream.List(ctx, glob)
	if err != nil {
		return "", fmt.Errorf("list staged logs: %w", err)
	}
	if len(keys) == 0 {
		return h.FileStore.URL(logsRootKey(prefix, workflowID)), nil
	}

	concurrency := h.Cfg.FrontendWorker.CleanupConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	errCh := make(chan error, len(keys))

	for _, key := range keys {
		wg.Add(1)
		sem <- struct{}{}
		go func(key string) {
			defer wg.Done()
			defer func() { <-sem }()
			data, err := h.LogStream.Get(ctx, key)
			if err != nil {
				errCh <- fmt.Errorf("read staged log %s: %w", key, err)
				return
			}
			if err := h.FileStore.Put(ctx, key, data); err != nil {
				errCh <- fmt.Errorf("archive log %s: %w", key, err)
				return
			}
			if err := h.LogStream.Delete(ctx, key); err != nil {
				h.Log.Warn("failed to clear staged log after archive", zap.String("key", key), zap.Error(err))
			}
		}(key)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		return "", err
	}
	return h.FileStore.URL(logsRootKey(prefix, workflowID)), nil
}

func logsRootKey(prefix, workflowID string) string {
	return strings.TrimSuffix(filestore.WorkflowLogGlob(prefix, workflowID), "/**/*.log")
}
