// Copyright 2025 James Ross
package frontendworker

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/osmo-project/control-plane/internal/config"
	"github.com/osmo-project/control-plane/internal/filestore"
	"github.com/osmo-project/control-plane/internal/job"
)

func TestUploadWorkflowFilesStagesEveryPodSpec(t *testing.T) {
	fsStore := filestore.NewMemory()
	h := &Handlers{FileStore: fsStore, Log: zap.NewNop(), Cfg: &config.Config{FileStore: config.FileStore{Prefix: "osmo"}}}

	p := job.UploadWorkflowFilesPayload{
		WorkflowID: "wf-1",
		PodSpecs:   map[string][]byte{"lead": []byte("spec-a"), "worker-1": []byte("spec-b")},
	}
	j, err := job.New(job.SuperFrontend, job.TypeUploadWorkflowFiles, "wf-1", "", p)
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	outcome, err := h.UploadWorkflowFiles(context.Background(), j)
	if err != nil {
		t.Fatalf("UploadWorkflowFiles: %v", err)
	}
	if outcome != Success {
		t.Fatalf("got %v, want Success", outcome)
	}
	got, err := fsStore.Get(context.Background(), filestore.WorkflowPodSpecKey("osmo", "wf-1", "lead"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "spec-a" {
		t.Fatalf("got %q, want spec-a", got)
	}
}

func TestUploadAppThenDeleteApp(t *testing.T) {
	fsStore := filestore.NewMemory()
	h := &Handlers{FileStore: fsStore, Log: zap.NewNop(), Cfg: &config.Config{FileStore: config.FileStore{Prefix: "osmo"}}}

	uj, err := job.New(job.SuperFrontend, job.TypeUploadApp, "app-1", "", job.UploadAppPayload{AppUUID: "app-1", Content: []byte("bundle")})
	if err != nil {
		t.Fatalf("build upload job: %v", err)
	}
	if outcome, err := h.UploadApp(context.Background(), uj); err != nil || outcome != Success {
		t.Fatalf("UploadApp: outcome=%v err=%v", outcome, err)
	}

	key := filestore.AppKey("osmo", "app-1")
	if _, err := fsStore.Get(context.Background(), key); err != nil {
		t.Fatalf("expected app bundle to exist after upload: %v", err)
	}

	dj, err := job.New(job.SuperFrontend, job.TypeDeleteApp, "app-1", "", job.DeleteAppPayload{AppUUID: "app-1"})
	if err != nil {
		t.Fatalf("build delete job: %v", err)
	}
	if outcome, err := h.DeleteApp(context.Background(), dj); err != nil || outcome != Success {
		t.Fatalf("DeleteApp: outcome=%v err=%v", outcome, err)
	}
	if _, err := fsStore.Get(context.Background(), key); err == nil {
		t.Fatal("expected app bundle to be gone after DeleteApp")
	}
}
