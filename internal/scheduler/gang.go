// Copyright 2025 James Ross
package scheduler

import (
	"k8s.io/apimachinery/pkg/labels"
)

// GangLabel is the queue label the cluster-side scheduler uses to
// co-schedule or preempt a group's tasks as one unit (§4.5 Gang grouping).
// The control plane only records membership and the queue name; it never
// talks to a live k8s API (PodSpecRenderer owns that).
type GangLabel struct {
	Queue string
	Set   labels.Set
}

// NewGangLabel builds the (backend.namespace, pool)-keyed queue label for a
// group's gang-scheduled task set.
func NewGangLabel(namespace, pool, workflowID, group string) GangLabel {
	queue := namespace + "/" + pool
	return GangLabel{
		Queue: queue,
		Set: labels.Set{
			"osmo.queue":       queue,
			"osmo.workflow_id": workflowID,
			"osmo.group":       group,
		},
	}
}

// Selector returns a label selector matching every task pod in this gang,
// for cluster-side co-scheduling or CleanupGroup's bulk delete.
func (g GangLabel) Selector() labels.Selector {
	return labels.SelectorFromSet(g.Set)
}
