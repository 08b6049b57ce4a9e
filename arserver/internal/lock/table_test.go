package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTree is a minimal Tree for tests: "child:<parent>" is a direct child
// of "<parent>", and the relation transits one level further when the
// parent id itself carries a "child:" prefix.
type fakeTree struct {
	parent map[string]string
}

func (f *fakeTree) IsDescendant(id, ancestor string) bool {
	for cur := id; ; {
		if cur == ancestor {
			return true
		}
		next, ok := f.parent[cur]
		if !ok {
			return false
		}
		cur = next
	}
}

func newFakeTree() *fakeTree { return &fakeTree{parent: make(map[string]string)} }

func TestTable_ReadLockThenWriteLockConflicts(t *testing.T) {
	t.Parallel()
	table := NewTable(newFakeTree())

	require.NoError(t, table.ReadLock("obj1", "alice"))
	err := table.WriteLock("obj1", "bob", false)
	require.Error(t, err)

	// The same user re-acquiring their own read as a writer is allowed.
	require.NoError(t, table.WriteLock("obj1", "alice", false))
}

func TestTable_WriteLockExcludesOtherWriters(t *testing.T) {
	t.Parallel()
	table := NewTable(newFakeTree())

	require.NoError(t, table.WriteLock("obj1", "alice", false))
	err := table.WriteLock("obj1", "bob", false)
	require.Error(t, err)
}

func TestTable_TreeWriteLockCoversDescendants(t *testing.T) {
	t.Parallel()
	tree := newFakeTree()
	tree.parent["child1"] = "root"
	table := NewTable(tree)

	require.NoError(t, table.WriteLock("root", "alice", true))

	err := table.WriteLock("child1", "bob", false)
	require.Error(t, err)

	// A tree write lock also blocks reads anywhere in the covered subtree.
	err = table.ReadLock("child1", "bob")
	require.Error(t, err)
}

func TestTable_TreeWriteRejectsWhenSubtreeAlreadyLocked(t *testing.T) {
	t.Parallel()
	tree := newFakeTree()
	tree.parent["child1"] = "root"
	table := NewTable(tree)

	require.NoError(t, table.ReadLock("child1", "bob"))

	err := table.WriteLock("root", "alice", true)
	require.Error(t, err)
}

func TestTable_WriteUnlockReleasesAndAllowsOthers(t *testing.T) {
	t.Parallel()
	table := NewTable(newFakeTree())

	require.NoError(t, table.WriteLock("obj1", "alice", false))
	require.NoError(t, table.WriteUnlock("obj1", "alice"))
	require.True(t, table.IsEmpty())

	require.NoError(t, table.WriteLock("obj1", "bob", false))
}

func TestTable_WriteUnlockByNonOwnerFails(t *testing.T) {
	t.Parallel()
	table := NewTable(newFakeTree())

	require.NoError(t, table.WriteLock("obj1", "alice", false))
	err := table.WriteUnlock("obj1", "bob")
	require.Error(t, err)
}

func TestTable_ReleaseAllDropsEveryLockForUser(t *testing.T) {
	t.Parallel()
	table := NewTable(newFakeTree())

	require.NoError(t, table.ReadLock("obj1", "alice"))
	require.NoError(t, table.WriteLock("obj2", "alice", false))
	require.NoError(t, table.WriteLock("obj3", "bob", false))

	released := table.ReleaseAll("alice")
	require.ElementsMatch(t, []string{"obj1", "obj2"}, released)
	require.False(t, table.IsEmpty()) // bob's lock on obj3 remains
}

func TestTable_AutoReleaseFiresAfterWindow(t *testing.T) {
	t.Parallel()
	table := NewTable(newFakeTree(), WithAutoReleaseWindow(20*time.Millisecond))

	require.NoError(t, table.WriteLock("obj1", "alice", false))
	table.ArmAutoRelease("alice")

	require.Eventually(t, func() bool {
		return table.IsEmpty()
	}, time.Second, 5*time.Millisecond)
}

func TestTable_CancelAutoReleasePreventsRelease(t *testing.T) {
	t.Parallel()
	table := NewTable(newFakeTree(), WithAutoReleaseWindow(20*time.Millisecond))

	require.NoError(t, table.WriteLock("obj1", "alice", false))
	table.ArmAutoRelease("alice")
	table.CancelAutoRelease("alice")

	time.Sleep(50 * time.Millisecond)
	require.False(t, table.IsEmpty())
}

func TestTable_ChangeHandlerInvokedOnLockAndUnlock(t *testing.T) {
	t.Parallel()
	var events []Event
	table := NewTable(newFakeTree(), WithChangeHandler(func(ev Event) {
		events = append(events, ev)
	}))

	require.NoError(t, table.WriteLock("obj1", "alice", false))
	require.NoError(t, table.WriteUnlock("obj1", "alice"))

	require.Len(t, events, 2)
	require.True(t, events[0].Locked)
	require.False(t, events[1].Locked)
}

func TestTable_UpdateLockUpgradesToTree(t *testing.T) {
	t.Parallel()
	tree := newFakeTree()
	tree.parent["child1"] = "root"
	table := NewTable(tree)

	require.NoError(t, table.WriteLock("root", "alice", false))
	require.NoError(t, table.UpdateLock("root", "alice", true))

	err := table.WriteLock("child1", "bob", false)
	require.Error(t, err)
}

func TestTable_UpdateLockRejectsUpgradeWhenSubtreeNotFree(t *testing.T) {
	t.Parallel()
	tree := newFakeTree()
	tree.parent["child1"] = "root"
	table := NewTable(tree)

	require.NoError(t, table.WriteLock("root", "alice", false))
	require.NoError(t, table.ReadLock("child1", "bob"))

	err := table.UpdateLock("root", "alice", true)
	require.Error(t, err)
}
