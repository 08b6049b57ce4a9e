package rpc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcor2/arcor2-core/shared/types"
)

func projectWithActions(ids ...string) types.Project {
	var aps []types.ActionPoint
	for _, id := range ids {
		aps = append(aps, types.ActionPoint{
			ID:      "ap-" + id,
			Actions: []types.Action{{ID: id, Name: id}},
		})
	}
	return types.Project{ActionPoints: aps}
}

func TestValidateLogicItem_RejectsUnknownEndpoint(t *testing.T) {
	t.Parallel()
	project := projectWithActions("a1")

	err := validateLogicItem(project, types.LogicItem{Start: types.LogicStart, End: "missing"})
	require.Error(t, err)
}

func TestValidateLogicItem_AcceptsStartToEnd(t *testing.T) {
	t.Parallel()
	project := projectWithActions("a1")

	err := validateLogicItem(project, types.LogicItem{Start: types.LogicStart, End: "a1"})
	require.NoError(t, err)
}

func TestValidateLogicItem_RejectsDuplicateEdge(t *testing.T) {
	t.Parallel()
	project := projectWithActions("a1", "a2")
	project.Logic = []types.LogicItem{{Start: "a1", End: "a2"}}

	err := validateLogicItem(project, types.LogicItem{Start: "a1", End: "a2"})
	require.Error(t, err)
}

func TestValidateLogicItem_RejectsCycle(t *testing.T) {
	t.Parallel()
	project := projectWithActions("a1", "a2", "a3")
	project.Logic = []types.LogicItem{
		{Start: "a1", End: "a2"},
		{Start: "a2", End: "a3"},
	}

	err := validateLogicItem(project, types.LogicItem{Start: "a3", End: "a1"})
	require.Error(t, err)
}

func TestValidateLogicItem_RejectsEndAsStart(t *testing.T) {
	t.Parallel()
	project := projectWithActions("a1")

	err := validateLogicItem(project, types.LogicItem{Start: types.LogicEnd, End: "a1"})
	require.Error(t, err)
}

func TestValidateLogicItem_RejectsStartAsEnd(t *testing.T) {
	t.Parallel()
	project := projectWithActions("a1")

	err := validateLogicItem(project, types.LogicItem{Start: "a1", End: types.LogicStart})
	require.Error(t, err)
}

func TestValidateLogicItem_ConditionalEdgesMustShareFlowOutputAndCoverDistinctValues(t *testing.T) {
	t.Parallel()
	project := projectWithActions("a1", "a2", "a3")
	project.Logic = []types.LogicItem{
		{Start: "a1", End: "a2", Condition: &types.Condition{ActionID: "a1", FlowOutput: "result", Value: "true"}},
	}

	// Same flow output, distinct value: allowed.
	err := validateLogicItem(project, types.LogicItem{
		Start: "a1", End: "a3",
		Condition: &types.Condition{ActionID: "a1", FlowOutput: "result", Value: "false"},
	})
	require.NoError(t, err)

	// Same flow output, same value: rejected (no coverage of a new case).
	err = validateLogicItem(project, types.LogicItem{
		Start: "a1", End: "a3",
		Condition: &types.Condition{ActionID: "a1", FlowOutput: "result", Value: "true"},
	})
	require.Error(t, err)

	// Different flow output leaving the same action: rejected.
	err = validateLogicItem(project, types.LogicItem{
		Start: "a1", End: "a3",
		Condition: &types.Condition{ActionID: "a1", FlowOutput: "other", Value: "true"},
	})
	require.Error(t, err)
}

func TestLogicCreatesCycle(t *testing.T) {
	t.Parallel()
	existing := []types.LogicItem{
		{Start: "a1", End: "a2"},
		{Start: "a2", End: "a3"},
	}

	require.True(t, logicCreatesCycle(existing, types.LogicItem{Start: "a3", End: "a1"}))
	require.False(t, logicCreatesCycle(existing, types.LogicItem{Start: "a1", End: "a3"}))
}
