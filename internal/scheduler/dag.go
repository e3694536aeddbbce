// Copyright 2025 James Ross
// Package scheduler turns a freshly submitted workflow spec into group-level
// DAG edges, priority/quota decisions, ExitAction rewrites, and gang queue
// labels (§4.5). It holds no Store/Broker handles; FrontendWorker calls it
// as a pure function over the spec and the rows it is about to write.
package scheduler

import "fmt"

// TaskInput is one element of a task's `inputs` list; only References to
// another task produce a group-level edge (dataset references do not).
type TaskInput struct {
	Task      string // referenced task name, empty if this input is a dataset
	IsTaskRef bool
}

// SpecGroup is the submit-time view of one group: its name and the tasks it
// contains, each with its raw inputs.
type SpecGroup struct {
	Name  string
	Tasks map[string][]TaskInput // task name -> its inputs
}

// Expansion is the per-group result of DAG expansion: the declared upstream
// group set (I3's starting point) and the downstream groups unlocked when
// this group completes.
type Expansion struct {
	RemainingUpstream map[string]struct{}
	Downstream        map[string]struct{}
}

// ExpandDAG computes remaining_upstream/downstream edges for every group
// from task-to-task input references (§4.5 DAG expansion) and rejects a
// cyclic edge set.
func ExpandDAG(groups []SpecGroup) (map[string]Expansion, error) {
	taskGroup := make(map[string]string, len(groups))
	for _, g := range groups {
		for task := range g.Tasks {
			taskGroup[task] = g.Name
		}
	}

	upstream := make(map[string]map[string]struct{}, len(groups))
	downstream := make(map[string]map[string]struct{}, len(groups))
	for _, g := range groups {
		upstream[g.Name] = map[string]struct{}{}
		downstream[g.Name] = map[string]struct{}{}
	}

	for _, g := range groups {
		for _, inputs := range g.Tasks {
			for _, in := range inputs {
				if !in.IsTaskRef {
					continue
				}
				upGroup, ok := taskGroup[in.Task]
				if !ok {
					return nil, fmt.Errorf("task input references unknown task %q", in.Task)
				}
				if upGroup == g.Name {
					continue // intra-group reference, not a group edge
				}
				upstream[g.Name][upGroup] = struct{}{}
				downstream[upGroup][g.Name] = struct{}{}
			}
		}
	}

	if cyc := findCycle(groups, upstream); cyc != "" {
		return nil, fmt.Errorf("workflow spec has a cyclic group dependency at %q", cyc)
	}

	out := make(map[string]Expansion, len(groups))
	for _, g := range groups {
		out[g.Name] = Expansion{RemainingUpstream: upstream[g.Name], Downstream: downstream[g.Name]}
	}
	return out, nil
}

// findCycle runs a DFS that follows each group's upstream edges and
// returns the name of a group found in a cycle, or "" if acyclic.
func findCycle(groups []SpecGroup, upstream map[string]map[string]struct{}) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(groups))
	var visit func(name string) string
	visit = func(name string) string {
		color[name] = gray
		for up := range upstream[name] {
			switch color[up] {
			case gray:
				return up
			case white:
				if cyc := visit(up); cyc != "" {
					return cyc
				}
			}
		}
		color[name] = black
		return ""
	}
	for _, g := range groups {
		if color[g.Name] == white {
			if cyc := visit(g.Name); cyc != "" {
				return cyc
			}
		}
	}
	return ""
}

// ReadyGroups returns the names of groups whose remaining_upstream is empty,
// the set dispatched immediately at workflow start (§4.5 Dispatch).
func ReadyGroups(expansions map[string]Expansion) []string {
	var ready []string
	for name, exp := range expansions {
		if len(exp.RemainingUpstream) == 0 {
			ready = append(ready, name)
		}
	}
	return ready
}
