// Package session holds ARServer's single open-session singleton: the one
// scene and/or project currently opened for editing (spec.md §9: "exactly
// one scene/project may be open at a time, owned by the server loop, never
// by an individual connection"). All access funnels through the server's
// own goroutine-safe accessors so that concurrent per-connection task
// handlers (spec.md §5) observe a consistent view.
package session

import (
	"errors"
	"sync"

	"github.com/arcor2/arcor2-core/shared/types"
)

// ErrNoOpenScene is returned when an operation requires an open scene but
// none is open.
var ErrNoOpenScene = errors.New("session: no scene open")

// ErrNoOpenProject is returned when an operation requires an open project
// but none is open.
var ErrNoOpenProject = errors.New("session: no project open")

// ErrAlreadyOpen is returned by Open* when a scene or project is already
// open (spec.md §9: only one may be open at a time).
var ErrAlreadyOpen = errors.New("session: a scene or project is already open")

// State is the current open-editing state.
type State struct {
	Scene   *types.Scene
	Project *types.Project
	// EditingUsers tracks which connected userIDs are currently editing the
	// open scene/project, for ShowMainScreen broadcast purposes.
	EditingUsers map[string]struct{}
}

// Manager serializes all access to the single open-session State.
type Manager struct {
	mu    sync.RWMutex
	state State
}

// NewManager returns an empty, closed Manager.
func NewManager() *Manager {
	return &Manager{state: State{EditingUsers: make(map[string]struct{})}}
}

// OpenScene opens scene for editing. Fails if a scene or project is already
// open.
func (m *Manager) OpenScene(scene types.Scene) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Scene != nil || m.state.Project != nil {
		return ErrAlreadyOpen
	}
	m.state.Scene = &scene
	return nil
}

// OpenProject opens project (and its underlying scene) for editing.
func (m *Manager) OpenProject(project types.Project, scene types.Scene) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Scene != nil || m.state.Project != nil {
		return ErrAlreadyOpen
	}
	m.state.Scene = &scene
	m.state.Project = &project
	return nil
}

// Close clears the open scene/project and any editing-user bookkeeping.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Scene = nil
	m.state.Project = nil
	m.state.EditingUsers = make(map[string]struct{})
}

// Scene returns the currently open scene, if any.
func (m *Manager) Scene() (types.Scene, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.Scene == nil {
		return types.Scene{}, ErrNoOpenScene
	}
	return *m.state.Scene, nil
}

// Project returns the currently open project, if any.
func (m *Manager) Project() (types.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.Project == nil {
		return types.Project{}, ErrNoOpenProject
	}
	return *m.state.Project, nil
}

// IsOpen reports whether any scene or project is currently open.
func (m *Manager) IsOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Scene != nil || m.state.Project != nil
}

// MutateScene atomically applies fn to the open scene and stores the
// result, failing if no scene is open. The caller is responsible for any
// external persistence (catalog.Store.Put) before or after this call per
// the scene mutation envelope (spec.md §4.1).
func (m *Manager) MutateScene(fn func(types.Scene) (types.Scene, error)) (types.Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Scene == nil {
		return types.Scene{}, ErrNoOpenScene
	}
	next, err := fn(*m.state.Scene)
	if err != nil {
		return types.Scene{}, err
	}
	m.state.Scene = &next
	return next, nil
}

// MutateProject atomically applies fn to the open project and stores the
// result, failing if no project is open.
func (m *Manager) MutateProject(fn func(types.Project) (types.Project, error)) (types.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Project == nil {
		return types.Project{}, ErrNoOpenProject
	}
	next, err := fn(*m.state.Project)
	if err != nil {
		return types.Project{}, err
	}
	m.state.Project = &next
	return next, nil
}

// AddEditingUser records that userID is now editing the open scene/project.
func (m *Manager) AddEditingUser(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.EditingUsers[userID] = struct{}{}
}

// RemoveEditingUser drops userID from the editing-user set, e.g. on
// disconnect.
func (m *Manager) RemoveEditingUser(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state.EditingUsers, userID)
}

// EditingUsers returns a snapshot of every userID currently editing.
func (m *Manager) EditingUsers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.state.EditingUsers))
	for u := range m.state.EditingUsers {
		out = append(out, u)
	}
	return out
}

// IsDescendant implements lock.Tree by walking the open scene's object
// parent links and the open project's action-point parent links
// (spec.md §3: SceneObject.parent, ActionPoint.parent).
func (m *Manager) IsDescendant(id, ancestor string) bool {
	if id == ancestor {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	cur := id
	for {
		var parent string
		if m.state.Scene != nil {
			if obj := m.state.Scene.FindObject(cur); obj != nil {
				parent = obj.Parent
			}
		}
		if parent == "" && m.state.Project != nil {
			if ap := m.state.Project.FindActionPoint(cur); ap != nil {
				parent = ap.Parent
			}
		}
		if parent == "" {
			return false
		}
		if parent == ancestor {
			return true
		}
		cur = parent
	}
}
