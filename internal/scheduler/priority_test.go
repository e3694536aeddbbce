// Copyright 2025 James Ross
package scheduler

import (
	"testing"

	"github.com/osmo-project/control-plane/internal/job"
)

func TestValidateSubmissionRejectsMaintenanceForNonAdmin(t *testing.T) {
	err := ValidateSubmission(PoolCapability{Maintenance: true}, job.PriorityNormal, false, nil)
	if err == nil {
		t.Fatal("expected maintenance rejection")
	}
}

func TestValidateSubmissionAllowsMaintenanceForAdmin(t *testing.T) {
	err := ValidateSubmission(PoolCapability{Maintenance: true}, job.PriorityNormal, true, nil)
	if err != nil {
		t.Fatalf("expected admin override to pass, got %v", err)
	}
}

func TestValidateSubmissionRejectsUnsupportedPriority(t *testing.T) {
	err := ValidateSubmission(PoolCapability{PrioritySupported: false}, job.PriorityHigh, false, nil)
	if err == nil {
		t.Fatal("expected priority rejection")
	}
}

func TestValidateSubmissionEnforcesGPUQuota(t *testing.T) {
	quota := 4
	err := ValidateSubmission(PoolCapability{PrioritySupported: true, GPUQuota: &quota}, job.PriorityHigh, false,
		[]GroupGPURequest{{Group: "g1", GPUCount: 8}})
	if err == nil {
		t.Fatal("expected GPU quota rejection")
	}
}

func TestValidateSubmissionUnboundedQuotaPasses(t *testing.T) {
	err := ValidateSubmission(PoolCapability{PrioritySupported: true}, job.PriorityHigh, false,
		[]GroupGPURequest{{Group: "g1", GPUCount: 1000}})
	if err != nil {
		t.Fatalf("expected unbounded quota to pass, got %v", err)
	}
}
