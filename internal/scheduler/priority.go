// Copyright 2025 James Ross
package scheduler

import (
	"fmt"

	"github.com/osmo-project/control-plane/internal/job"
)

// PoolCapability is the subset of a pool's config priority/quota checks
// need (§4.5 Priorities); Store.GetPool supplies the real values.
type PoolCapability struct {
	PrioritySupported bool
	Maintenance       bool
	GPUQuota          *int // nil means unbounded
}

// GroupGPURequest is a group's total GPU request across its tasks, used to
// check against the pool's per-group GPU guarantee.
type GroupGPURequest struct {
	Group    string
	GPUCount int
}

// ValidateSubmission enforces §4.5's priority and quota rules at submit
// time: maintenance pools reject non-admin submissions, only
// priority-capable pools accept non-NORMAL priority, and NORMAL/HIGH
// workflows must fit the pool's per-group GPU guarantee.
func ValidateSubmission(pool PoolCapability, priority job.Priority, isAdmin bool, groups []GroupGPURequest) error {
	if pool.Maintenance && !isAdmin {
		return fmt.Errorf("pool is in maintenance")
	}
	if priority != job.PriorityNormal && !pool.PrioritySupported {
		return fmt.Errorf("pool does not support priority %s", priority)
	}
	if pool.GPUQuota == nil || priority == job.PriorityLow {
		return nil
	}
	for _, g := range groups {
		if g.GPUCount > *pool.GPUQuota {
			return fmt.Errorf("group %s requests %d GPUs, exceeding pool guarantee of %d", g.Group, g.GPUCount, *pool.GPUQuota)
		}
	}
	return nil
}
