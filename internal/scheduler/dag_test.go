// Copyright 2025 James Ross
package scheduler

import "testing"

func TestExpandDAGLinearChain(t *testing.T) {
	groups := []SpecGroup{
		{Name: "g1", Tasks: map[string][]TaskInput{"t1": nil}},
		{Name: "g2", Tasks: map[string][]TaskInput{"t2": {{Task: "t1", IsTaskRef: true}}}},
	}
	exp, err := ExpandDAG(groups)
	if err != nil {
		t.Fatalf("ExpandDAG: %v", err)
	}
	if len(exp["g1"].RemainingUpstream) != 0 {
		t.Fatalf("g1 should have no upstream, got %v", exp["g1"].RemainingUpstream)
	}
	if _, ok := exp["g2"].RemainingUpstream["g1"]; !ok {
		t.Fatalf("g2 should depend on g1, got %v", exp["g2"].RemainingUpstream)
	}
	if _, ok := exp["g1"].Downstream["g2"]; !ok {
		t.Fatalf("g1 should unlock g2, got %v", exp["g1"].Downstream)
	}
}

func TestExpandDAGRejectsCycle(t *testing.T) {
	groups := []SpecGroup{
		{Name: "g1", Tasks: map[string][]TaskInput{"t1": {{Task: "t2", IsTaskRef: true}}}},
		{Name: "g2", Tasks: map[string][]TaskInput{"t2": {{Task: "t1", IsTaskRef: true}}}},
	}
	if _, err := ExpandDAG(groups); err == nil {
		t.Fatal("expected a cycle error")
	}
}

func TestExpandDAGIgnoresIntraGroupReferences(t *testing.T) {
	groups := []SpecGroup{
		{Name: "g1", Tasks: map[string][]TaskInput{
			"t1": nil,
			"t2": {{Task: "t1", IsTaskRef: true}},
		}},
	}
	exp, err := ExpandDAG(groups)
	if err != nil {
		t.Fatalf("ExpandDAG: %v", err)
	}
	if len(exp["g1"].RemainingUpstream) != 0 {
		t.Fatalf("intra-group reference should not create a group edge, got %v", exp["g1"].RemainingUpstream)
	}
}

func TestReadyGroups(t *testing.T) {
	exp := map[string]Expansion{
		"g1": {RemainingUpstream: map[string]struct{}{}},
		"g2": {RemainingUpstream: map[string]struct{}{"g1": {}}},
	}
	ready := ReadyGroups(exp)
	if len(ready) != 1 || ready[0] != "g1" {
		t.Fatalf("got %v, want [g1]", ready)
	}
}
