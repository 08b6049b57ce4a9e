package aiming

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcor2/arcor2-core/shared/types"
)

func TestTable_StartRejectsZeroFocusPoints(t *testing.T) {
	t.Parallel()
	table := NewTable()

	_, err := table.Start("obj1", "robot1", "alice", "robot", 0)
	require.ErrorIs(t, err, ErrInvalidFocusPointCount)
}

func TestTable_StartRejectsDoubleArm(t *testing.T) {
	t.Parallel()
	table := NewTable()

	_, err := table.Start("obj1", "robot1", "alice", "robot", 3)
	require.NoError(t, err)

	_, err = table.Start("obj1", "robot1", "alice", "robot", 3)
	require.ErrorIs(t, err, ErrAlreadyArmed)
}

func TestTable_AddPointRejectsOutOfRangeIndex(t *testing.T) {
	t.Parallel()
	table := NewTable()
	_, err := table.Start("obj1", "robot1", "alice", "robot", 3)
	require.NoError(t, err)

	// spec.md §8 scenario S3: AddPoint(-1) -> result=false.
	_, err = table.AddPoint("obj1", "alice", -1, types.Pose{})
	require.ErrorIs(t, err, ErrIndexOutOfRange)

	// spec.md §8 scenario S3: AddPoint(len(focusPoints)) -> result=false.
	_, err = table.AddPoint("obj1", "alice", 3, types.Pose{})
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestTable_AddPointRejectsDuplicateIndex(t *testing.T) {
	t.Parallel()
	table := NewTable()
	_, err := table.Start("obj1", "robot1", "alice", "robot", 2)
	require.NoError(t, err)

	_, err = table.AddPoint("obj1", "alice", 0, types.Pose{})
	require.NoError(t, err)

	_, err = table.AddPoint("obj1", "alice", 0, types.Pose{})
	require.ErrorIs(t, err, ErrIndexAlreadyRecorded)
}

func TestTable_AddPointRejectsWithoutArmedSession(t *testing.T) {
	t.Parallel()
	table := NewTable()

	_, err := table.AddPoint("obj1", "alice", 0, types.Pose{})
	require.ErrorIs(t, err, ErrNotArmed)
}

func TestTable_CheckCompleteRejectsIncompleteSession(t *testing.T) {
	t.Parallel()
	table := NewTable()
	_, err := table.Start("obj1", "robot1", "alice", "robot", 2)
	require.NoError(t, err)
	_, err = table.AddPoint("obj1", "alice", 0, types.Pose{})
	require.NoError(t, err)

	// spec.md §8 scenario S3: Done before all indices filled -> result=false.
	_, err = table.CheckComplete("obj1", "alice")
	require.ErrorIs(t, err, ErrIncomplete)
}

func TestTable_CheckCompleteAndFinishHappyPath(t *testing.T) {
	t.Parallel()
	table := NewTable()
	_, err := table.Start("obj1", "robot1", "alice", "robot", 2)
	require.NoError(t, err)
	_, err = table.AddPoint("obj1", "alice", 0, types.Pose{Position: types.Position{X: 1}})
	require.NoError(t, err)
	_, err = table.AddPoint("obj1", "alice", 1, types.Pose{Position: types.Position{X: 2}})
	require.NoError(t, err)

	snapshot, err := table.CheckComplete("obj1", "alice")
	require.NoError(t, err)
	require.True(t, snapshot.Complete())
	require.Equal(t, "robot1", snapshot.RobotID)

	ordered := snapshot.OrderedPoints()
	require.Len(t, ordered, 2)
	require.Equal(t, float64(1), ordered[0].Position.X)
	require.Equal(t, float64(2), ordered[1].Position.X)

	require.NoError(t, table.Finish("obj1", "alice"))

	// Finish clears the session; a second Finish has nothing left to commit.
	err = table.Finish("obj1", "alice")
	require.ErrorIs(t, err, ErrNotArmed)

	_, ok := table.Get("obj1", "alice")
	require.False(t, ok)
}

func TestTable_CancelDiscardsArmedSession(t *testing.T) {
	t.Parallel()
	table := NewTable()
	_, err := table.Start("obj1", "robot1", "alice", "robot", 1)
	require.NoError(t, err)

	require.NoError(t, table.Cancel("obj1", "alice"))

	_, ok := table.Get("obj1", "alice")
	require.False(t, ok)
	require.True(t, errors.Is(table.Cancel("obj1", "alice"), ErrNotArmed))
}

func TestTable_PruneUserClearsOnlyThatUsersSessions(t *testing.T) {
	t.Parallel()
	table := NewTable()
	_, err := table.Start("obj1", "robot1", "alice", "robot", 1)
	require.NoError(t, err)
	_, err = table.Start("obj2", "robot2", "bob", "robot", 1)
	require.NoError(t, err)

	cleared := table.PruneUser("alice")
	require.ElementsMatch(t, []string{"obj1"}, cleared)

	_, ok := table.Get("obj1", "alice")
	require.False(t, ok)
	_, ok = table.Get("obj2", "bob")
	require.True(t, ok)
}
