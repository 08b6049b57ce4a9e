package rpc

import (
	"fmt"

	"github.com/arcor2/arcor2-core/shared/types"
)

// validateLogicItem enforces spec.md §3's Project.logic invariant: edges
// reference real nodes, no duplicate (start,end) edge, adding the edge
// keeps the logic a DAG, and conditional edges leaving one action cover
// distinct values of the same flow output.
func validateLogicItem(project types.Project, item types.LogicItem) error {
	if item.Start == "" || item.End == "" {
		return fmt.Errorf("logic item must declare both start and end")
	}
	if item.Start == types.LogicEnd {
		return fmt.Errorf("logic item: %s cannot be used as a start", types.LogicEnd)
	}
	if item.End == types.LogicStart {
		return fmt.Errorf("logic item: %s cannot be used as an end", types.LogicStart)
	}
	if err := validateLogicEndpoint(project, item.Start); err != nil {
		return err
	}
	if err := validateLogicEndpoint(project, item.End); err != nil {
		return err
	}

	for _, existing := range project.Logic {
		if existing.Start == item.Start && existing.End == item.End {
			return fmt.Errorf("logic item: duplicate edge %s->%s", item.Start, item.End)
		}
	}

	if logicCreatesCycle(project.Logic, item) {
		return fmt.Errorf("logic item: %s->%s would introduce a cycle", item.Start, item.End)
	}

	if item.Condition != nil {
		for _, existing := range project.Logic {
			if existing.Start != item.Start || existing.Condition == nil {
				continue
			}
			if existing.Condition.ActionID != item.Condition.ActionID || existing.Condition.FlowOutput != item.Condition.FlowOutput {
				return fmt.Errorf("logic item: conditional edges from %s must share one flow output, got %s/%s and %s/%s",
					item.Start, item.Condition.ActionID, item.Condition.FlowOutput,
					existing.Condition.ActionID, existing.Condition.FlowOutput)
			}
			if existing.Condition.Value == item.Condition.Value {
				return fmt.Errorf("logic item: conditional edges from %s already cover value %q", item.Start, item.Condition.Value)
			}
		}
	}
	return nil
}

// validateLogicEndpoint checks that id is either a virtual START/END node
// or an id actually present on an action in the project.
func validateLogicEndpoint(project types.Project, id string) error {
	if id == types.LogicStart || id == types.LogicEnd {
		return nil
	}
	if action, _ := project.FindAction(id); action == nil {
		return fmt.Errorf("logic item: unknown action %q", id)
	}
	return nil
}

// logicCreatesCycle reports whether adding candidate to the existing,
// already-acyclic logic set would introduce a cycle — equivalently,
// whether candidate.End can already reach candidate.Start.
func logicCreatesCycle(existing []types.LogicItem, candidate types.LogicItem) bool {
	adj := make(map[string][]string, len(existing)+1)
	for _, it := range existing {
		adj[it.Start] = append(adj[it.Start], it.End)
	}
	adj[candidate.Start] = append(adj[candidate.Start], candidate.End)

	visited := make(map[string]bool, len(adj))
	var reaches func(node, target string) bool
	reaches = func(node, target string) bool {
		if node == target {
			return true
		}
		if visited[node] {
			return false
		}
		visited[node] = true
		for _, next := range adj[node] {
			if reaches(next, target) {
				return true
			}
		}
		return false
	}
	return reaches(candidate.End, candidate.Start)
}
