// Copyright 2025 James Ross
package backendsession

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/osmo-project/control-plane/internal/broker"
	"github.com/osmo-project/control-plane/internal/config"
	"github.com/osmo-project/control-plane/internal/frontendworker"
	"github.com/osmo-project/control-plane/internal/job"
	"github.com/osmo-project/control-plane/internal/store"
)

// SecretLookup fetches a task's known secret values lazily for POD_LOG
// masking (§4.4 worker channel step 5). It is consumed as an opaque
// external boundary; OSMO's core never manages secret material itself.
type SecretLookup func(ctx context.Context, taskUUID string) ([]string, error)

// Deps bundles what every Session of any backend shares.
type Deps struct {
	Store    store.Store
	Broker   broker.Broker
	Handlers *frontendworker.Handlers
	Secrets  SecretLookup
	Log      *zap.Logger
	Cfg      *config.Config
}

// session is the in-process state for one backend's pair of channels. Its
// fields are owned by the goroutines this backend's listener/worker run on
// and are never shared across sessions (§5).
type session struct {
	backend string
	deps    Deps
}

// RunListener serves the listener channel for one backend connection until
// it closes or ctx is cancelled (§4.4 listener channel).
func RunListener(ctx context.Context, backend string, conn wsConn, deps Deps) error {
	s := &session{backend: backend, deps: deps}
	return s.runListener(ctx, conn)
}

// RunWorker serves the worker channel for one backend connection until it
// closes or ctx is cancelled (§4.4 worker channel).
func RunWorker(ctx context.Context, backend string, conn wsConn, deps Deps) error {
	s := &session{backend: backend, deps: deps}
	return s.runWorker(ctx, conn)
}

// handleInit processes the mandatory first frame of either channel:
// register/refresh the backend row, rejecting a reconnect whose k8s_uid
// does not match the one already on file.
func (s *session) handleInit(ctx context.Context, f Frame) (InitBody, error) {
	if f.Type != MsgInit {
		return InitBody{}, fmt.Errorf("expected INIT frame, got %s", f.Type)
	}
	var body InitBody
	if err := json.Unmarshal(f.Body, &body); err != nil {
		return InitBody{}, fmt.Errorf("decode INIT body: %w", err)
	}

	existing, err := s.deps.Store.GetBackendByName(ctx, s.backend)
	if err != nil {
		return InitBody{}, fmt.Errorf("lookup backend %s: %w", s.backend, err)
	}
	if existing != nil && existing.K8sUID != "" && existing.K8sUID != body.K8sUID {
		return InitBody{}, fmt.Errorf("backend %s identity mismatch: k8s_uid changed", s.backend)
	}

	if err := s.deps.Store.UpsertBackend(ctx, store.Backend{
		Name:              s.backend,
		K8sUID:            body.K8sUID,
		Namespace:         body.Namespace,
		Version:           body.Version,
		LastHeartbeat:     time.Now(),
		SchedulerSettings: body.SchedulerSettings,
		RouterAddress:     body.RouterAddress,
	}); err != nil {
		return InitBody{}, fmt.Errorf("upsert backend %s: %w", s.backend, err)
	}
	return body, nil
}

// closeOnDone closes conn as soon as ctx is cancelled, unblocking whatever
// goroutine is parked in a blocking ReadMessage call.
func closeOnDone(ctx context.Context, conn wsConn) {
	<-ctx.Done()
	_ = conn.Close()
}

// enqueueFrontendJob is the choke point listener handlers go through to
// raise an UpdateGroup (or other frontend) job from a translated cluster
// event.
func (s *session) enqueueFrontendJob(ctx context.Context, j job.Job) error {
	payload, err := j.Marshal()
	if err != nil {
		return err
	}
	return s.deps.Broker.Enqueue(ctx, broker.FrontendQueueKey, payload)
}
