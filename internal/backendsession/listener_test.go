// Copyright 2025 James Ross
package backendsession

import "testing"

func TestIsKnownStatus(t *testing.T) {
	if !isKnownStatus("RUNNING") {
		t.Fatal("expected RUNNING to be a known status")
	}
	if !isKnownStatus("COMPLETED") {
		t.Fatal("expected COMPLETED to be a known status")
	}
	if isKnownStatus("NOT_A_REAL_STATUS") {
		t.Fatal("expected an unrecognized status string to be rejected")
	}
	if isKnownStatus("") {
		t.Fatal("expected an empty status to be rejected")
	}
}
