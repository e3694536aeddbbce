// Copyright 2025 James Ross
package scheduler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/osmo-project/control-plane/internal/statemachine"
)

// ExitActionSpec is a task's per-outcome code-range map (§4.5 ExitActions),
// e.g. {"RESCHEDULED": "0-3,10"}.
type ExitActionSpec map[statemachine.Status]string

// ExitActionResult is what UpdateGroup's step 3.a applies to the task's
// observed status.
type ExitActionResult struct {
	Status statemachine.Status
	Note   string
}

// ApplyExitAction rewrites observedStatus per the task's ExitActionSpec if
// the exit code falls in a declared range, subject to the retry_id <
// max_retry_per_task and scheduler-support gates. When the matched action is
// RESCHEDULED but the task has exhausted its retries, the action is not
// applied and a note is attached instead (§12 supplemented behavior).
func ApplyExitAction(spec ExitActionSpec, observedStatus statemachine.Status, exitCode int, retryID, maxRetryPerTask int, schedulerSupportsRetry bool) ExitActionResult {
	for action, ranges := range spec {
		if !codeInRanges(exitCode, ranges) {
			continue
		}
		if action != statemachine.Rescheduled {
			return ExitActionResult{Status: action}
		}
		if !schedulerSupportsRetry || retryID >= maxRetryPerTask {
			return ExitActionResult{
				Status: observedStatus,
				Note:   fmt.Sprintf("No exit action applied due to retry limit %d.", maxRetryPerTask),
			}
		}
		return ExitActionResult{Status: statemachine.Rescheduled}
	}
	return ExitActionResult{Status: observedStatus}
}

// codeInRanges reports whether code matches a comma-separated range spec
// like "0-3,10" (§4.5 ExitActions).
func codeInRanges(code int, ranges string) bool {
	for _, part := range strings.Split(ranges, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, ok := parseRange(part)
		if !ok {
			continue
		}
		if code >= lo && code <= hi {
			return true
		}
	}
	return false
}

func parseRange(part string) (lo, hi int, ok bool) {
	if i := strings.IndexByte(part, '-'); i > 0 {
		loS, hiS := part[:i], part[i+1:]
		l, err1 := strconv.Atoi(loS)
		h, err2 := strconv.Atoi(hiS)
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}
		return l, h, true
	}
	v, err := strconv.Atoi(part)
	if err != nil {
		return 0, 0, false
	}
	return v, v, true
}
