// Package runner owns the Execution Manager's child script process and its
// run state machine (spec.md §4.2). Grounded on the teacher's restic.Wrapper
// child-process idiom (agent/internal/restic/wrapper.go: stdin pipe +
// bufio.Scanner over stdout, CombinedOutput/stderr capture on failure) and
// the original source's manager.py (read_proc_stdout/project_run/
// project_stop/project_pause/project_resume), adapted to the NDJSON script
// contract instead of restic's own --json progress format.
package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/arcor2/arcor2-core/shared/types"
)

// ErrAlreadyRunning is returned by Start when a package is already active.
var ErrAlreadyRunning = errors.New("runner: a package is already running")

// ErrNotRunning is returned by operations that require an active run.
var ErrNotRunning = errors.New("runner: no package is running")

// ErrInvalidTransition is returned when an RPC is illegal in the current
// state (spec.md §4.2: "any other RPC returns result=false").
type ErrInvalidTransition struct {
	Op    string
	State types.PackageRunState
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot %s in state %s", e.Op, e.State)
}

// stopDeadline is how long Stop waits for the child to exit after SIGTERM
// before escalating to SIGKILL (spec.md §4.2, §5: "Deadline before SIGKILL
// is 5 s").
const stopDeadline = 5 * time.Second

// EventFunc is invoked for every script event and state transition the
// runner produces, so the caller (the Manager's rpc.Server) can broadcast
// it over the ARServer link. Invoked outside of r.mu, never while a lock is
// held (spec.md §5: "no business logic may hold a lock across an await on
// external I/O").
type EventFunc func(kind types.ScriptEventKind, data any)

// Runner serializes the lifecycle of exactly one running execution package
// (spec.md §4.2: "Operate the lifecycle of exactly one running execution
// package at a time").
type Runner struct {
	mu     sync.Mutex
	state  types.PackageRunState
	pkgID  string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	done   chan struct{}

	currentBefore *types.ActionStateBeforeData
	currentAfter  *types.ActionStateAfterData
	lastError     *types.ProjectExceptionData

	onEvent EventFunc
	logger  *zap.Logger
}

// New returns an idle Runner in state Undefined.
func New(onEvent EventFunc, logger *zap.Logger) *Runner {
	return &Runner{
		state:   types.StateUndefined,
		onEvent: onEvent,
		logger:  logger.Named("runner"),
	}
}

// State returns the current run state.
func (r *Runner) State() types.PackageRunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// PackageID returns the id of the package currently running, or "" if none.
func (r *Runner) PackageID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pkgID
}

// CurrentAction returns the most recent ActionStateBefore/After payloads
// cached from the script, if any (spec.md §4.2: "Cached as 'current
// action'").
func (r *Runner) CurrentAction() (*types.ActionStateBeforeData, *types.ActionStateAfterData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentBefore, r.currentAfter
}

// LastError returns the last ProjectException cached from the script, if
// any.
func (r *Runner) LastError() *types.ProjectExceptionData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastError
}

// StartArgs parameterizes Start.
type StartArgs struct {
	PackageID    string
	ScriptPath   string
	ProjectPath  string
	Breakpoints  []string // action-point ids; passed via argv (spec.md §4.2)
	PauseOnStart bool     // Paused is reached at startup for break-on-first-action debugging
}

// Start spawns the script process for args.PackageID (spec.md §4.2 "Start
// sequence" steps 5-8: package download/extraction/executable-bit happen in
// packagestore/buildclient before this is called). Legal only from
// Undefined or Stopped.
func (r *Runner) Start(ctx context.Context, args StartArgs) error {
	r.mu.Lock()
	if r.state != types.StateUndefined && r.state != types.StateStopped {
		s := r.state
		r.mu.Unlock()
		return &ErrInvalidTransition{Op: "RunPackage", State: s}
	}
	r.mu.Unlock()

	argv := append([]string{}, args.Breakpoints...)
	cmd := exec.CommandContext(ctx, args.ScriptPath, argv...)
	cmd.Env = append(os.Environ(),
		"ARCOR2_PROJECT_PATH="+args.ProjectPath,
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("runner: open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("runner: open stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout // merged into stdout, per spec.md §4.2 step 6

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("runner: start script: %w", err)
	}

	r.mu.Lock()
	r.pkgID = args.PackageID
	r.cmd = cmd
	r.stdin = stdin
	r.currentBefore = nil
	r.currentAfter = nil
	r.lastError = nil
	r.done = make(chan struct{})
	r.setStateLocked(types.StateStarting)
	r.mu.Unlock()

	go r.readLoop(stdout)
	go r.waitLoop()

	return nil
}

// readLoop reads NDJSON lines from the script's stdout until EOF, dispatching
// each by its event discriminator (spec.md §4.2 "Script event loop").
// Malformed lines are logged and dropped; an incomplete read at EOF
// terminates the loop cleanly.
func (r *Runner) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev types.ScriptEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			r.logger.Warn("runner: malformed script event line, dropping", zap.Error(err))
			continue
		}
		r.dispatch(ev)
	}
	if err := scanner.Err(); err != nil {
		r.logger.Warn("runner: stdout scanner error", zap.Error(err))
	}
}

func (r *Runner) dispatch(ev types.ScriptEvent) {
	raw, err := json.Marshal(ev.Data)
	if err != nil {
		r.logger.Warn("runner: re-marshal event data", zap.Error(err))
		return
	}

	switch ev.Event {
	case types.ScriptEventPackageState:
		var d types.PackageStateData
		if err := json.Unmarshal(raw, &d); err != nil {
			r.logger.Warn("runner: decode PackageState", zap.Error(err))
			return
		}
		r.mu.Lock()
		r.setStateLocked(d.State)
		r.mu.Unlock()
		r.emit(types.ScriptEventPackageState, d)

	case types.ScriptEventActionStateBefore:
		var d types.ActionStateBeforeData
		if err := json.Unmarshal(raw, &d); err != nil {
			r.logger.Warn("runner: decode ActionStateBefore", zap.Error(err))
			return
		}
		r.mu.Lock()
		r.currentBefore = &d
		r.currentAfter = nil
		r.mu.Unlock()
		r.emit(types.ScriptEventActionStateBefore, d)

	case types.ScriptEventActionStateAfter:
		var d types.ActionStateAfterData
		if err := json.Unmarshal(raw, &d); err != nil {
			r.logger.Warn("runner: decode ActionStateAfter", zap.Error(err))
			return
		}
		r.mu.Lock()
		r.currentAfter = &d
		r.mu.Unlock()
		r.emit(types.ScriptEventActionStateAfter, d)

	case types.ScriptEventProjectException:
		var d types.ProjectExceptionData
		if err := json.Unmarshal(raw, &d); err != nil {
			r.logger.Warn("runner: decode ProjectException", zap.Error(err))
			return
		}
		r.mu.Lock()
		r.lastError = &d
		r.mu.Unlock()
		r.emit(types.ScriptEventProjectException, d)

	default:
		r.logger.Warn("runner: unknown script event discriminator", zap.String("event", string(ev.Event)))
	}
}

// setStateLocked must be called with r.mu held.
func (r *Runner) setStateLocked(s types.PackageRunState) {
	r.state = s
}

// emit calls onEvent outside of r.mu.
func (r *Runner) emit(kind types.ScriptEventKind, data any) {
	if r.onEvent != nil {
		r.onEvent(kind, data)
	}
}

// waitLoop waits for the process to exit and finalizes post-run state
// (spec.md §4.2: "On any path, post-exit state is Stopped; the
// PROJECT_ID/current action caches are cleared").
func (r *Runner) waitLoop() {
	r.mu.Lock()
	cmd := r.cmd
	done := r.done
	r.mu.Unlock()

	err := cmd.Wait()
	if err != nil {
		r.logger.Info("runner: script process exited", zap.Error(err))
	} else {
		r.logger.Info("runner: script process exited cleanly")
	}

	r.mu.Lock()
	r.pkgID = ""
	r.currentBefore = nil
	r.currentAfter = nil
	r.cmd = nil
	r.stdin = nil
	r.setStateLocked(types.StateStopped)
	r.mu.Unlock()

	close(done)
	r.emit(types.ScriptEventPackageState, types.PackageStateData{State: types.StateStopped})
}

// Pause writes the pause control byte to the script's stdin. Legal only
// when Running (spec.md §4.2).
func (r *Runner) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != types.StateRunning {
		return &ErrInvalidTransition{Op: "PausePackage", State: r.state}
	}
	if _, err := io.WriteString(r.stdin, types.ControlPause); err != nil {
		return fmt.Errorf("runner: write pause control byte: %w", err)
	}
	return nil
}

// Resume writes the resume control byte to the script's stdin. Legal only
// when Paused.
func (r *Runner) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != types.StatePaused {
		return &ErrInvalidTransition{Op: "ResumePackage", State: r.state}
	}
	if _, err := io.WriteString(r.stdin, types.ControlResume); err != nil {
		return fmt.Errorf("runner: write resume control byte: %w", err)
	}
	return nil
}

// Stop sends SIGTERM and waits for the reader/wait loop to finish, escalating
// to SIGKILL after stopDeadline (spec.md §4.2, §5).
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.state == types.StateUndefined || r.state == types.StateStopped {
		s := r.state
		r.mu.Unlock()
		return &ErrInvalidTransition{Op: "StopPackage", State: s}
	}
	cmd := r.cmd
	done := r.done
	r.setStateLocked(types.StateStopping)
	r.mu.Unlock()
	r.emit(types.ScriptEventPackageState, types.PackageStateData{State: types.StateStopping})

	if cmd == nil || cmd.Process == nil {
		return ErrNotRunning
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		r.logger.Warn("runner: SIGTERM failed", zap.Error(err))
	}

	select {
	case <-done:
		return nil
	case <-time.After(stopDeadline):
		r.logger.Warn("runner: stop deadline exceeded, sending SIGKILL")
		_ = cmd.Process.Kill()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether a child process is currently active.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state != types.StateUndefined && r.state != types.StateStopped
}
