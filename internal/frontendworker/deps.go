// Copyright 2025 James Ross
package frontendworker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/osmo-project/control-plane/internal/barrier"
	"github.com/osmo-project/control-plane/internal/broker"
	"github.com/osmo-project/control-plane/internal/config"
	"github.com/osmo-project/control-plane/internal/filestore"
	"github.com/osmo-project/control-plane/internal/job"
	"github.com/osmo-project/control-plane/internal/osmoerr"
	"github.com/osmo-project/control-plane/internal/store"
)

// PodSpecRenderer is consumed as an opaque external collaborator (§1): it
// turns a task into cluster-native YAML. OSMO's core never interprets the
// result.
type PodSpecRenderer interface {
	Render(ctx context.Context, workflowID, group string, tasks []store.Task, spec []byte) ([]job.RawK8sResource, map[string][]byte, error)
}

// Handlers bundles every dependency the §4.2.1 handler functions need.
// Each handler is a plain function bound to a *Handlers receiver rather
// than a distinct struct per job type: one registry, one set of deps,
// instead of a handler-per-struct indirection.
type Handlers struct {
	Store  store.Store
	Broker broker.Broker
	// FileStore is the durable archive target CleanupWorkflow moves
	// finished logs/events into.
	FileStore filestore.FileStore
	// LogStream is the staging store POD_LOG frames are appended to while a
	// workflow runs; CleanupWorkflow drains it into FileStore (§4.2.1).
	LogStream filestore.FileStore
	Barrier   *barrier.Barrier
	Renderer  PodSpecRenderer
	Log       *zap.Logger
	Cfg       *config.Config
}

// enqueue marshals and enqueues j on its routed queue (frontend or
// per-backend), the single choke point every handler's follow-on dispatch
// goes through.
func (h *Handlers) enqueue(ctx context.Context, j job.Job) error {
	payload, err := j.Marshal()
	if err != nil {
		return err
	}
	queue := broker.FrontendQueueKey
	if j.SuperType == job.SuperBackend {
		queue = broker.BackendQueueKey(j.Backend)
	}
	return h.Broker.Enqueue(ctx, queue, payload)
}

func (h *Handlers) enqueueDelayed(ctx context.Context, j job.Job, d time.Duration) error {
	payload, err := j.Marshal()
	if err != nil {
		return err
	}
	queue := broker.FrontendQueueKey
	if j.SuperType == job.SuperBackend {
		queue = broker.BackendQueueKey(j.Backend)
	}
	return h.Broker.EnqueueDelayed(ctx, queue, payload, d)
}

// classifyStoreErr turns a Store error into the Outcome/error pair a
// handler returns: permanent failures (as marked by osmoerr.Permanent) skip
// straight to handle_failure, everything else is requeued (§7).
func classifyStoreErr(err error) (Outcome, error) {
	if osmoerr.IsPermanent(err) {
		return FailedNoRetry, err
	}
	return FailedRetry, err
}
