package runner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcor2/arcor2-core/shared/types"
)

// scriptFixture writes an executable shell script at dir/script.sh whose
// body is exactly body, and returns its path.
func scriptFixture(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "script.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

type eventRecorder struct {
	mu     sync.Mutex
	events []types.ScriptEventKind
}

func (r *eventRecorder) record(kind types.ScriptEventKind, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind)
}

func (r *eventRecorder) kinds() []types.ScriptEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.ScriptEventKind, len(r.events))
	copy(out, r.events)
	return out
}

func newTestRunner(rec *eventRecorder) *Runner {
	return New(rec.record, zap.NewNop())
}

func TestRunner_NewIsUndefined(t *testing.T) {
	t.Parallel()
	r := newTestRunner(&eventRecorder{})
	require.Equal(t, types.StateUndefined, r.State())
	require.False(t, r.IsRunning())
}

func TestRunner_StartRunsScriptAndReachesStopped(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	script := scriptFixture(t, dir, `echo '{"event":"PackageState","data":{"state":"Running"}}'
exit 0
`)

	rec := &eventRecorder{}
	r := newTestRunner(rec)

	ctx := context.Background()
	err := r.Start(ctx, StartArgs{PackageID: "pkg1", ScriptPath: script, ProjectPath: dir})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return r.State() == types.StateStopped
	}, 2*time.Second, 10*time.Millisecond)

	require.Empty(t, r.PackageID())
	kinds := rec.kinds()
	require.Contains(t, kinds, types.ScriptEventPackageState)
}

func TestRunner_StartRejectedWhileAlreadyRunning(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	script := scriptFixture(t, dir, `sleep 2
`)
	rec := &eventRecorder{}
	r := newTestRunner(rec)

	ctx := context.Background()
	require.NoError(t, r.Start(ctx, StartArgs{PackageID: "pkg1", ScriptPath: script, ProjectPath: dir}))

	require.Eventually(t, func() bool {
		return r.IsRunning()
	}, time.Second, 10*time.Millisecond)

	err := r.Start(ctx, StartArgs{PackageID: "pkg2", ScriptPath: script, ProjectPath: dir})
	require.Error(t, err)
	var transErr *ErrInvalidTransition
	require.ErrorAs(t, err, &transErr)
	require.Equal(t, "RunPackage", transErr.Op)

	stopCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(stopCtx))
}

func TestRunner_PauseResumeIllegalOutsideRunningState(t *testing.T) {
	t.Parallel()
	rec := &eventRecorder{}
	r := newTestRunner(rec)

	err := r.Pause()
	require.Error(t, err)
	var transErr *ErrInvalidTransition
	require.ErrorAs(t, err, &transErr)
	require.Equal(t, "PausePackage", transErr.Op)

	err = r.Resume()
	require.Error(t, err)
	require.ErrorAs(t, err, &transErr)
	require.Equal(t, "ResumePackage", transErr.Op)
}

func TestRunner_StopIllegalWhenNotRunning(t *testing.T) {
	t.Parallel()
	rec := &eventRecorder{}
	r := newTestRunner(rec)

	err := r.Stop(context.Background())
	require.Error(t, err)
	var transErr *ErrInvalidTransition
	require.ErrorAs(t, err, &transErr)
	require.Equal(t, "StopPackage", transErr.Op)
}

func TestRunner_StopEscalatesToSigkillPastDeadline(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// Ignores SIGTERM and sleeps well past the runner's stop deadline, so
	// Stop must escalate to SIGKILL to observe the process exit.
	script := scriptFixture(t, dir, `trap '' TERM
sleep 30
`)
	rec := &eventRecorder{}
	r := newTestRunner(rec)

	require.NoError(t, r.Start(context.Background(), StartArgs{PackageID: "pkg1", ScriptPath: script, ProjectPath: dir}))
	require.Eventually(t, func() bool { return r.IsRunning() }, time.Second, 10*time.Millisecond)

	start := time.Now()
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(stopCtx))
	elapsed := time.Since(start)

	require.GreaterOrEqual(t, elapsed, stopDeadline)
	require.Eventually(t, func() bool { return r.State() == types.StateStopped }, time.Second, 10*time.Millisecond)
}

func TestRunner_DispatchCachesActionStateAndClearsBeforeOnNewBefore(t *testing.T) {
	t.Parallel()
	rec := &eventRecorder{}
	r := newTestRunner(rec)

	r.dispatch(types.ScriptEvent{
		Event: types.ScriptEventActionStateBefore,
		Data:  types.ActionStateBeforeData{ActionID: "a1"},
	})
	before, after := r.CurrentAction()
	require.NotNil(t, before)
	require.Equal(t, "a1", before.ActionID)
	require.Nil(t, after)

	r.dispatch(types.ScriptEvent{
		Event: types.ScriptEventActionStateAfter,
		Data:  types.ActionStateAfterData{ActionID: "a1"},
	})
	before, after = r.CurrentAction()
	require.NotNil(t, before)
	require.NotNil(t, after)

	r.dispatch(types.ScriptEvent{
		Event: types.ScriptEventProjectException,
		Data:  types.ProjectExceptionData{Message: "boom"},
	})
	require.NotNil(t, r.LastError())
	require.Equal(t, "boom", r.LastError().Message)
}
