package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arcor2/arcor2-core/shared/types"
	"github.com/arcor2/arcor2-core/shared/wsrpc"
)

func listProjects(ctx context.Context, s *Server, _ *wsrpc.Conn, _ types.RequestEnvelope) (any, []string, error) {
	listing, err := s.Projects.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	out := make([]types.ListingEntry, 0, len(listing))
	for _, m := range listing {
		out = append(out, types.ListingEntry{ID: m.ID, Name: m.Name, Description: m.Description, Created: m.Created, Modified: m.Modified})
	}
	return out, nil, nil
}

type newProjectArgs struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	SceneID     string `json:"sceneId"`
	HasLogic    bool   `json:"hasLogic"`
}

// newProject creates and opens a new project over an already-open scene
// (spec.md §8 scenario S4).
func newProject(ctx context.Context, s *Server, _ *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	var args newProjectArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("newProject: decode args: %w", err)
	}
	if err := validateIdentifier(args.Name); err != nil {
		return nil, nil, fmt.Errorf("newProject: %w", err)
	}
	listing, err := s.Projects.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("newProject: %w", err)
	}
	existingNames := make([]string, 0, len(listing))
	for _, m := range listing {
		existingNames = append(existingNames, m.Name)
	}
	if err := rejectDuplicateName(existingNames, args.Name); err != nil {
		return nil, nil, fmt.Errorf("newProject: %w", err)
	}
	if req.DryRun {
		return struct{}{}, nil, nil
	}

	scene, err := s.Session.Scene()
	if err != nil {
		return nil, nil, err
	}
	if args.SceneID != "" && args.SceneID != scene.ID {
		scene, err = s.Scenes.Get(ctx, args.SceneID)
		if err != nil {
			return nil, nil, err
		}
	}

	project := types.Project{
		ID:          uuid.NewString(),
		Name:        args.Name,
		Description: args.Description,
		SceneID:     scene.ID,
		HasLogic:    args.HasLogic,
		Created:     time.Now(),
		Modified:    time.Now(),
		IntModified: true,
	}
	if err := s.Session.OpenProject(project, scene); err != nil {
		return nil, nil, err
	}

	broadcastEvent(s, types.EventOpenProject, project, "", nil)
	return struct {
		ID string `json:"id"`
	}{ID: project.ID}, nil, nil
}

type projectIDArgs struct {
	ID string `json:"id"`
}

func openProject(ctx context.Context, s *Server, _ *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	var args projectIDArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("openProject: decode args: %w", err)
	}

	project, err := s.Projects.Get(ctx, args.ID)
	if err != nil {
		return nil, nil, err
	}
	if req.DryRun {
		return project, nil, nil
	}

	scene, err := s.Scenes.Get(ctx, project.SceneID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Session.OpenProject(project, scene); err != nil {
		return nil, nil, err
	}

	broadcastEvent(s, types.EventOpenProject, project, "", nil)
	return project, nil, nil
}

// saveProject persists the open project and clears its dirty flag
// (spec.md §3 invariant: "IntModified ... cleared only by a successful
// Save").
func saveProject(ctx context.Context, s *Server, c *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	project, err := s.Session.Project()
	if err != nil {
		return nil, nil, err
	}
	if req.DryRun {
		return struct{}{}, nil, nil
	}

	project.Modified = time.Now()
	project.IntModified = false
	modified, err := s.Projects.Put(ctx, project)
	if err != nil {
		return nil, nil, err
	}
	project.Modified = modified
	_, _ = s.Session.MutateProject(func(types.Project) (types.Project, error) { return project, nil })

	broadcastEvent(s, types.EventProjectSaved, struct {
		ID string `json:"id"`
	}{ID: project.ID}, "", nil)
	return struct{}{}, nil, nil
}

func closeProject(_ context.Context, s *Server, c *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	if req.DryRun {
		return struct{}{}, nil, nil
	}
	for _, obj := range s.Locks.ReleaseAll(userOf(c)) {
		broadcastEvent(s, types.EventObjectsUnlocked, types.LockEventData{ObjectIDs: []string{obj}, Owner: userOf(c)}, "", c)
	}
	s.Session.Close()
	return struct{}{}, nil, nil
}

func deleteProject(ctx context.Context, s *Server, _ *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	var args projectIDArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("deleteProject: decode args: %w", err)
	}
	if req.DryRun {
		return struct{}{}, nil, nil
	}

	if err := s.Projects.Delete(ctx, args.ID); err != nil {
		return nil, nil, err
	}
	broadcastEvent(s, types.EventProjectChanged, struct {
		ID string `json:"id"`
	}{ID: args.ID}, types.ChangeRemove, nil)
	return struct{}{}, nil, nil
}

type addActionPointArgs struct {
	Name     string        `json:"name"`
	Parent   string        `json:"parent"`
	Position types.Position `json:"position"`
}

func addActionPoint(_ context.Context, s *Server, c *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	var args addActionPointArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("addActionPoint: decode args: %w", err)
	}
	if err := validateIdentifier(args.Name); err != nil {
		return nil, nil, fmt.Errorf("addActionPoint: %w", err)
	}

	project, err := s.Session.Project()
	if err != nil {
		return nil, nil, fmt.Errorf("addActionPoint: %w", err)
	}
	if err := rejectDuplicateName(actionPointSiblingNames(project, args.Parent), args.Name); err != nil {
		return nil, nil, fmt.Errorf("addActionPoint: %w", err)
	}
	lockID := args.Parent
	if lockID == "" {
		lockID = project.ID
	}
	if !s.Locks.IsWriteLockedBy(lockID, userOf(c)) {
		return nil, nil, fmt.Errorf("addActionPoint: caller does not hold a write lock on %s", lockID)
	}

	ap := types.ActionPoint{ID: uuid.NewString(), Name: args.Name, Parent: args.Parent, Position: args.Position}
	if req.DryRun {
		return ap, nil, nil
	}

	_, err = s.Session.MutateProject(func(p types.Project) (types.Project, error) {
		p.ActionPoints = append(p.ActionPoints, ap)
		p.IntModified = true
		return p, nil
	})
	if err != nil {
		return nil, nil, err
	}

	broadcastEvent(s, types.EventActionPointChanged, ap, types.ChangeAdd, c)
	return ap, nil, nil
}

type addActionArgs struct {
	ActionPointID string                  `json:"actionPointId"`
	Name          string                  `json:"name"`
	Type          string                  `json:"type"`
	Parameters    []types.ActionParameter `json:"parameters"`
}

// addAction validates the action's type against the resolved ObjectType
// action catalog, validates each parameter's declared type and any
// link/projectParameter references, and checks name uniqueness and the
// write lock on the action point before appending it
// (spec.md §3 invariants, §4.1 mutation envelope, §8 property 4).
func addAction(_ context.Context, s *Server, c *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	var args addActionArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("addAction: decode args: %w", err)
	}
	if err := validateIdentifier(args.Name); err != nil {
		return nil, nil, fmt.Errorf("addAction: %w", err)
	}

	scene, err := s.Session.Scene()
	if err != nil {
		return nil, nil, fmt.Errorf("addAction: %w", err)
	}
	project, err := s.Session.Project()
	if err != nil {
		return nil, nil, fmt.Errorf("addAction: %w", err)
	}

	ap := project.FindActionPoint(args.ActionPointID)
	if ap == nil {
		return nil, nil, fmt.Errorf("addAction: unknown action point %q", args.ActionPointID)
	}
	if err := rejectDuplicateName(actionSiblingNames(ap), args.Name); err != nil {
		return nil, nil, fmt.Errorf("addAction: %w", err)
	}
	meta, err := resolveActionType(s.Graph, scene, args.Type)
	if err != nil {
		return nil, nil, fmt.Errorf("addAction: %w", err)
	}
	if err := validateActionParameters(project, meta, args.Parameters); err != nil {
		return nil, nil, fmt.Errorf("addAction: %w", err)
	}
	if !s.Locks.IsWriteLockedBy(args.ActionPointID, userOf(c)) {
		return nil, nil, fmt.Errorf("addAction: caller does not hold a write lock on action point %s", args.ActionPointID)
	}

	action := types.Action{ID: uuid.NewString(), Name: args.Name, Type: args.Type, Parameters: args.Parameters}
	if req.DryRun {
		return action, nil, nil
	}

	_, err = s.Session.MutateProject(func(p types.Project) (types.Project, error) {
		ap := p.FindActionPoint(args.ActionPointID)
		if ap == nil {
			return p, fmt.Errorf("addAction: unknown action point %q", args.ActionPointID)
		}
		ap.Actions = append(ap.Actions, action)
		p.IntModified = true
		return p, nil
	})
	if err != nil {
		return nil, nil, err
	}

	broadcastEvent(s, types.EventActionChanged, action, types.ChangeAdd, c)
	return action, nil, nil
}

type addLogicItemArgs struct {
	Start     string            `json:"start"`
	End       string            `json:"end"`
	Condition *types.Condition  `json:"condition,omitempty"`
}

// addLogicItem appends one edge to Project.logic after validating the DAG
// invariant: real endpoints, no duplicate (start,end) edge, no cycle, and
// conditional edges leaving one action cover distinct values of the same
// flow output (spec.md §3 Project.logic invariant).
func addLogicItem(_ context.Context, s *Server, c *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	var args addLogicItemArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("addLogicItem: decode args: %w", err)
	}

	project, err := s.Session.Project()
	if err != nil {
		return nil, nil, fmt.Errorf("addLogicItem: %w", err)
	}
	item := types.LogicItem{ID: uuid.NewString(), Start: args.Start, End: args.End, Condition: args.Condition}
	if err := validateLogicItem(project, item); err != nil {
		return nil, nil, fmt.Errorf("addLogicItem: %w", err)
	}
	if !s.Locks.IsWriteLockedBy(project.ID, userOf(c)) {
		return nil, nil, fmt.Errorf("addLogicItem: caller does not hold a write lock on project %s", project.ID)
	}

	if req.DryRun {
		return item, nil, nil
	}

	_, err = s.Session.MutateProject(func(p types.Project) (types.Project, error) {
		p.Logic = append(p.Logic, item)
		p.IntModified = true
		return p, nil
	})
	if err != nil {
		return nil, nil, err
	}

	broadcastEvent(s, types.EventLogicItemChanged, item, types.ChangeAdd, c)
	return item, nil, nil
}
