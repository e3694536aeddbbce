// Copyright 2025 James Ross
package frontendworker

import "github.com/osmo-project/control-plane/internal/job"

// RegisterAll wires every frontend-routed job type to its handler and
// installs the handle_failure hook. CreateGroup and CleanupGroup are
// intentionally absent: those are backend jobs a BackendSession drives
// through PrepareExecute/Execute, not this pool's dispatch table.
func RegisterAll(pool *Pool, h *Handlers) {
	pool.Register(job.TypeSubmitWorkflow, h.SubmitWorkflow)
	pool.Register(job.TypeUpdateGroup, h.UpdateGroup)
	pool.Register(job.TypeCleanupWorkflow, h.CleanupWorkflow)
	pool.Register(job.TypeCancelWorkflow, h.CancelWorkflow)
	pool.Register(job.TypeCheckQueueTimeout, h.CheckQueueTimeout)
	pool.Register(job.TypeCheckRunTimeout, h.CheckRunTimeout)
	pool.Register(job.TypeUploadWorkflowFiles, h.UploadWorkflowFiles)
	pool.Register(job.TypeUploadApp, h.UploadApp)
	pool.Register(job.TypeDeleteApp, h.DeleteApp)
	pool.Register(job.TypeRescheduleTask, h.RescheduleTask)
	pool.OnFailure(h.HandleFailure)
}
