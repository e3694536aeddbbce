// Copyright 2025 James Ross
// Package renderer is the concrete, deliberately thin adapter OSMO's core
// talks to through frontendworker.PodSpecRenderer. It never interprets
// Kubernetes semantics itself; it forwards a group's tasks to an external
// rendering service and passes the response straight through (§1, §4.2.1
// CreateGroup step 2: "opaque k8s_resources plus a dict of per-task pod
// YAML").
package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/osmo-project/control-plane/internal/config"
	"github.com/osmo-project/control-plane/internal/job"
	"github.com/osmo-project/control-plane/internal/store"
)

// HTTP calls an external render service over a plain JSON POST. A renderer
// that needs templating, Helm, or cluster lookups lives behind that
// endpoint, not in this client.
type HTTP struct {
	endpoint string
	client   *http.Client
}

func New(cfg config.Renderer) *HTTP {
	return &HTTP{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

type renderRequest struct {
	WorkflowID string        `json:"workflow_id"`
	Group      string        `json:"group"`
	Tasks      []renderTask  `json:"tasks"`
	Spec       []byte        `json:"spec"`
}

type renderTask struct {
	Name    string `json:"name"`
	RetryID int    `json:"retry_id"`
	Lead    bool   `json:"lead"`
}

type renderResponse struct {
	K8sResources []job.RawK8sResource `json:"k8s_resources"`
	PodSpecs     map[string][]byte    `json:"pod_specs"`
}

func (h *HTTP) Render(ctx context.Context, workflowID, group string, tasks []store.Task, spec []byte) ([]job.RawK8sResource, map[string][]byte, error) {
	if h.endpoint == "" {
		return nil, nil, fmt.Errorf("renderer endpoint not configured")
	}

	req := renderRequest{WorkflowID: workflowID, Group: group, Spec: spec}
	for _, t := range tasks {
		req.Tasks = append(req.Tasks, renderTask{Name: t.Name, RetryID: t.RetryID, Lead: t.Lead})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal render request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("build render request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("call renderer: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("renderer returned %s", resp.Status)
	}

	var out renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, nil, fmt.Errorf("decode render response: %w", err)
	}
	return out.K8sResources, out.PodSpecs, nil
}
