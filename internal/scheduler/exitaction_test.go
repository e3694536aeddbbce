// Copyright 2025 James Ross
package scheduler

import (
	"testing"

	"github.com/osmo-project/control-plane/internal/statemachine"
)

func TestApplyExitActionMatchesRange(t *testing.T) {
	spec := ExitActionSpec{statemachine.Completed: "0-3,10"}
	result := ApplyExitAction(spec, statemachine.Failed, 2, 0, 3, true)
	if result.Status != statemachine.Completed {
		t.Fatalf("got %s, want COMPLETED", result.Status)
	}
}

func TestApplyExitActionRescheduleWithinLimit(t *testing.T) {
	spec := ExitActionSpec{statemachine.Rescheduled: "1"}
	result := ApplyExitAction(spec, statemachine.Failed, 1, 0, 3, true)
	if result.Status != statemachine.Rescheduled {
		t.Fatalf("got %s, want RESCHEDULED", result.Status)
	}
	if result.Note != "" {
		t.Fatalf("expected no note, got %q", result.Note)
	}
}

func TestApplyExitActionRescheduleBeyondLimitLeavesNote(t *testing.T) {
	spec := ExitActionSpec{statemachine.Rescheduled: "1"}
	result := ApplyExitAction(spec, statemachine.Failed, 1, 3, 3, true)
	if result.Status != statemachine.Failed {
		t.Fatalf("got %s, want original FAILED status", result.Status)
	}
	if result.Note == "" {
		t.Fatal("expected a retry-limit note")
	}
}

func TestApplyExitActionNoMatchPassesThrough(t *testing.T) {
	spec := ExitActionSpec{statemachine.Completed: "0"}
	result := ApplyExitAction(spec, statemachine.Failed, 5, 0, 3, true)
	if result.Status != statemachine.Failed {
		t.Fatalf("got %s, want unchanged FAILED", result.Status)
	}
}
