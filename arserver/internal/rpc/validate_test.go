package rpc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcor2/arcor2-core/shared/types"
)

func TestValidateIdentifier(t *testing.T) {
	t.Parallel()

	require.NoError(t, validateIdentifier("robot_1"))
	require.NoError(t, validateIdentifier("_private"))

	require.Error(t, validateIdentifier(""))
	require.Error(t, validateIdentifier("Robot1"))     // not snake_case
	require.Error(t, validateIdentifier("1robot"))      // leading digit
	require.Error(t, validateIdentifier("robot-one"))   // hyphen not allowed
	require.Error(t, validateIdentifier("class"))       // reserved word
	require.Error(t, validateIdentifier("robot one"))   // space
}

func TestRejectDuplicateName(t *testing.T) {
	t.Parallel()

	require.NoError(t, rejectDuplicateName([]string{"a", "b"}, "c"))
	require.Error(t, rejectDuplicateName([]string{"a", "b"}, "a"))
}

func TestSceneObjectNames(t *testing.T) {
	t.Parallel()
	scene := types.Scene{Objects: []types.SceneObject{{Name: "robot"}, {Name: "table"}}}
	require.ElementsMatch(t, []string{"robot", "table"}, sceneObjectNames(scene))
}

func TestActionPointSiblingNames(t *testing.T) {
	t.Parallel()
	project := types.Project{ActionPoints: []types.ActionPoint{
		{Name: "ap1", Parent: "robot"},
		{Name: "ap2", Parent: "robot"},
		{Name: "ap3", Parent: "other"},
	}}
	require.ElementsMatch(t, []string{"ap1", "ap2"}, actionPointSiblingNames(project, "robot"))
	require.ElementsMatch(t, []string{"ap3"}, actionPointSiblingNames(project, "other"))
}

func TestActionSiblingNames(t *testing.T) {
	t.Parallel()
	ap := &types.ActionPoint{Actions: []types.Action{{Name: "a1"}, {Name: "a2"}}}
	require.ElementsMatch(t, []string{"a1", "a2"}, actionSiblingNames(ap))
}
