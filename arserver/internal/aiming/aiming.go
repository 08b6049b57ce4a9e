// Package aiming implements the Object Aiming state machine (spec.md §4.1):
// one session per (objectId, userId), IDLE -> ARMED -> IDLE, driven by
// Start/AddPoint/Done/Cancel and pruned on disconnect or re-login.
//
// Grounded on the teacher's in-memory session bookkeeping pattern
// (server/internal/agentmanager/manager.go: a mutex-guarded map keyed by
// identity, with an explicit prune pass) adapted to the aiming domain —
// the agentmanager package itself has no ARCOR2 target and is dropped
// (see DESIGN.md). The completeness/index-range contract is grounded on
// arcor2_arserver/tests/test_object_aiming.py and the original Mesh's
// focus_points field (arcor2/data/object_type.py).
package aiming

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arcor2/arcor2-core/shared/types"
)

// State is one phase of the per-session aiming state machine.
type State string

const (
	StateIdle  State = "Idle"
	StateArmed State = "Armed"
)

var (
	// ErrAlreadyArmed is returned by Start when a session for this
	// (objectId, userId) pair is already ARMED.
	ErrAlreadyArmed = errors.New("aiming: session already armed")
	// ErrNotArmed is returned by AddPoint/Done/Cancel when no ARMED session
	// exists for the given (objectId, userId) pair.
	ErrNotArmed = errors.New("aiming: no armed session")
	// ErrInvalidFocusPointCount is returned by Start when the target object
	// has no recordable focus points.
	ErrInvalidFocusPointCount = errors.New("aiming: object has no focus points to record")
	// ErrIndexOutOfRange is returned by AddPoint when idx falls outside
	// [0, focusPointCount) (spec.md §8 scenario S3).
	ErrIndexOutOfRange = errors.New("aiming: focus point index out of range")
	// ErrIndexAlreadyRecorded is returned by AddPoint when idx has already
	// been recorded for this session.
	ErrIndexAlreadyRecorded = errors.New("aiming: focus point index already recorded")
	// ErrIncomplete is returned by CheckComplete when not every index has
	// been recorded yet (spec.md §8 scenario S3: "Done before all indices
	// filled -> result=false").
	ErrIncomplete = errors.New("aiming: not all focus point indices are recorded")
)

// Session is one in-progress object-aiming attempt.
type Session struct {
	ObjectID string
	RobotID  string
	UserID   string
	State    State
	// FocusPointCount is the number of indices AddPoint must fill before
	// Done succeeds, fixed at Start from the target mesh's focus points.
	FocusPointCount int
	// Points maps a recorded focus-point index to the robot pose observed
	// there (spec.md §6: "mesh focus endpoint taking (object focus points,
	// recorded robot poses)").
	Points  map[int]types.Pose
	Started time.Time
	Method  string // e.g. "robot" or "uv"
}

// Complete reports whether every index in [0, FocusPointCount) has been
// recorded.
func (s *Session) Complete() bool {
	return len(s.Points) == s.FocusPointCount
}

// OrderedPoints returns the recorded poses ordered by index. Only valid
// when Complete() is true.
func (s *Session) OrderedPoints() []types.Pose {
	out := make([]types.Pose, s.FocusPointCount)
	for idx, pose := range s.Points {
		out[idx] = pose
	}
	return out
}

func key(objectID, userID string) string { return objectID + "\x00" + userID }

// Table tracks every in-flight aiming session.
type Table struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewTable returns an empty aiming Table.
func NewTable() *Table {
	return &Table{sessions: make(map[string]*Session)}
}

// Start arms a new aiming session for (objectID, userID) against robotID,
// expecting focusPointCount distinct indices to be recorded before Done can
// succeed (spec.md §4.1: "StartObjectFocusing arms a session"; the two-id
// Args(scene_obj.id, robot_arg) shape is grounded on
// test_object_aiming.py).
func (t *Table) Start(objectID, robotID, userID, method string, focusPointCount int) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key(objectID, userID)
	if existing, ok := t.sessions[k]; ok && existing.State == StateArmed {
		return nil, ErrAlreadyArmed
	}
	if focusPointCount <= 0 {
		return nil, ErrInvalidFocusPointCount
	}

	s := &Session{
		ObjectID:        objectID,
		RobotID:         robotID,
		UserID:          userID,
		State:           StateArmed,
		Method:          method,
		FocusPointCount: focusPointCount,
		Points:          make(map[int]types.Pose),
		Started:         time.Now(),
	}
	t.sessions[k] = s
	return s, nil
}

// AddPoint records the robot pose observed at idx against an armed session
// (spec.md §4.1: "AddPoint(idx) is rejected if idx is out of the mesh's
// focusPoints range or already recorded").
func (t *Table) AddPoint(objectID, userID string, idx int, pose types.Pose) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[key(objectID, userID)]
	if !ok || s.State != StateArmed {
		return nil, ErrNotArmed
	}
	if idx < 0 || idx >= s.FocusPointCount {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, idx, s.FocusPointCount)
	}
	if _, recorded := s.Points[idx]; recorded {
		return nil, fmt.Errorf("%w: index %d", ErrIndexAlreadyRecorded, idx)
	}
	s.Points[idx] = pose
	return s, nil
}

// CheckComplete returns a read-only snapshot of the armed session for
// (objectID, userID) once every index has been recorded, without mutating
// table state. Callers use the snapshot to drive the Scene-service focus
// call outside any lock, then call Finish once that call succeeds
// (spec.md §5: no business logic may hold a lock across external I/O).
func (t *Table) CheckComplete(objectID, userID string) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[key(objectID, userID)]
	if !ok || s.State != StateArmed {
		return Session{}, ErrNotArmed
	}
	if !s.Complete() {
		return Session{}, fmt.Errorf("%w: %d/%d", ErrIncomplete, len(s.Points), s.FocusPointCount)
	}
	return *s, nil
}

// Finish transitions the session back to IDLE after its Scene-service
// focus call has succeeded (spec.md §4.1: "ARMED -> IDLE (Done, on success
// emits SceneObjectChanged with new pose)").
func (t *Table) Finish(objectID, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key(objectID, userID)
	s, ok := t.sessions[k]
	if !ok || s.State != StateArmed {
		return ErrNotArmed
	}
	delete(t.sessions, k)
	s.State = StateIdle
	return nil
}

// Cancel discards an armed session without computing a pose
// (spec.md §4.1: "CancelObjectFocusing").
func (t *Table) Cancel(objectID, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key(objectID, userID)
	if _, ok := t.sessions[k]; !ok {
		return ErrNotArmed
	}
	delete(t.sessions, k)
	return nil
}

// Get returns the current session for (objectID, userID), if any.
func (t *Table) Get(objectID, userID string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[key(objectID, userID)]
	return s, ok
}

// PruneUser cancels every armed session owned by userID, e.g. on disconnect
// or re-login (spec.md §4.1: "armed sessions do not survive the owning
// connection").
func (t *Table) PruneUser(userID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var cleared []string
	for k, s := range t.sessions {
		if s.UserID == userID {
			cleared = append(cleared, s.ObjectID)
			delete(t.sessions, k)
		}
	}
	return cleared
}

// Describe returns a human-readable summary, used in diagnostics/logging.
func (s *Session) Describe() string {
	return fmt.Sprintf("object=%s robot=%s user=%s state=%s points=%d/%d",
		s.ObjectID, s.RobotID, s.UserID, s.State, len(s.Points), s.FocusPointCount)
}
