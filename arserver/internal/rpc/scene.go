package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arcor2/arcor2-core/shared/types"
	"github.com/arcor2/arcor2-core/shared/wsrpc"
)

// listScenes returns the catalog listing for every known scene
// (spec.md §8 scenario S1).
func listScenes(ctx context.Context, s *Server, _ *wsrpc.Conn, _ types.RequestEnvelope) (any, []string, error) {
	listing, err := s.Scenes.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	out := make([]types.ListingEntry, 0, len(listing))
	for _, m := range listing {
		out = append(out, types.ListingEntry{ID: m.ID, Name: m.Name, Description: m.Description, Created: m.Created, Modified: m.Modified})
	}
	return out, nil, nil
}

type newSceneArgs struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// newScene creates and opens a new, empty scene (spec.md §8 scenario S1:
// "NewScene(\"Test\",\"desc\") -> response result=true; observe OpenScene
// event").
func newScene(ctx context.Context, s *Server, c *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	var args newSceneArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("newScene: decode args: %w", err)
	}
	if err := validateIdentifier(args.Name); err != nil {
		return nil, nil, fmt.Errorf("newScene: %w", err)
	}
	listing, err := s.Scenes.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("newScene: %w", err)
	}
	existing := make([]string, 0, len(listing))
	for _, m := range listing {
		existing = append(existing, m.Name)
	}
	if err := rejectDuplicateName(existing, args.Name); err != nil {
		return nil, nil, fmt.Errorf("newScene: %w", err)
	}
	if req.DryRun {
		return struct{}{}, nil, nil
	}

	scene := types.Scene{
		ID:          uuid.NewString(),
		Name:        args.Name,
		Description: args.Description,
		Created:     time.Now(),
		Modified:    time.Now(),
	}
	if err := s.Session.OpenScene(scene); err != nil {
		return nil, nil, err
	}

	broadcastEvent(s, types.EventOpenScene, scene, "", nil)
	return struct {
		ID string `json:"id"`
	}{ID: scene.ID}, nil, nil
}

type sceneIDArgs struct {
	ID string `json:"id"`
}

// openScene opens an existing scene for editing (spec.md §8 scenario S6:
// "OpenScene(s) previously in progress yields result=false" if s has been
// removed externally in the meantime).
func openScene(ctx context.Context, s *Server, _ *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	var args sceneIDArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("openScene: decode args: %w", err)
	}

	scene, err := s.Scenes.Get(ctx, args.ID)
	if err != nil {
		return nil, nil, err
	}
	if req.DryRun {
		return scene, nil, nil
	}
	if err := s.Session.OpenScene(scene); err != nil {
		return nil, nil, err
	}

	broadcastEvent(s, types.EventOpenScene, scene, "", nil)
	return scene, nil, nil
}

// saveScene persists the currently open scene to the catalog
// (spec.md §8 scenario S1: "SaveScene -> SceneSaved").
func saveScene(ctx context.Context, s *Server, c *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	scene, err := s.Session.Scene()
	if err != nil {
		return nil, nil, err
	}
	if req.DryRun {
		return struct{}{}, nil, nil
	}

	scene.Modified = time.Now()
	modified, err := s.Scenes.Put(ctx, scene)
	if err != nil {
		return nil, nil, err
	}
	scene.Modified = modified
	_, _ = s.Session.MutateScene(func(types.Scene) (types.Scene, error) { return scene, nil })

	broadcastEvent(s, types.EventSceneSaved, struct {
		ID string `json:"id"`
	}{ID: scene.ID}, "", nil)
	return struct{}{}, nil, nil
}

// closeScene ends the editing session without deleting the scene.
func closeScene(_ context.Context, s *Server, c *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	if req.DryRun {
		return struct{}{}, nil, nil
	}
	for _, obj := range s.Locks.ReleaseAll(userOf(c)) {
		broadcastEvent(s, types.EventObjectsUnlocked, types.LockEventData{ObjectIDs: []string{obj}, Owner: userOf(c)}, "", c)
	}
	s.Session.Close()
	return struct{}{}, nil, nil
}

// deleteScene removes a scene from the catalog outright
// (spec.md §8 scenario S1: "DeleteScene(id) -> SceneChanged with
// changeType=REMOVE; ListScenes -> empty").
func deleteScene(ctx context.Context, s *Server, _ *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	var args sceneIDArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("deleteScene: decode args: %w", err)
	}
	if req.DryRun {
		return struct{}{}, nil, nil
	}

	if err := s.Scenes.Delete(ctx, args.ID); err != nil {
		return nil, nil, err
	}
	broadcastEvent(s, types.EventSceneChanged, struct {
		ID string `json:"id"`
	}{ID: args.ID}, types.ChangeRemove, nil)
	return struct{}{}, nil, nil
}

type addObjectToSceneArgs struct {
	Name string    `json:"name"`
	Type string    `json:"type"`
	Pose types.Pose `json:"pose"`
}

// addObjectToScene instantiates an ObjectType in the open scene
// (spec.md §8 scenario S4: "AddObjectToScene(RandomActions)").
func addObjectToScene(ctx context.Context, s *Server, c *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	var args addObjectToSceneArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("addObjectToScene: decode args: %w", err)
	}

	if _, ok := s.Graph.Get(args.Type); !ok {
		return nil, nil, fmt.Errorf("addObjectToScene: unknown object type %q", args.Type)
	}
	if err := validateIdentifier(args.Name); err != nil {
		return nil, nil, fmt.Errorf("addObjectToScene: %w", err)
	}

	scene, err := s.Session.Scene()
	if err != nil {
		return nil, nil, fmt.Errorf("addObjectToScene: %w", err)
	}
	if err := rejectDuplicateName(sceneObjectNames(scene), args.Name); err != nil {
		return nil, nil, fmt.Errorf("addObjectToScene: %w", err)
	}
	if !s.Locks.IsWriteLockedBy(scene.ID, userOf(c)) {
		return nil, nil, fmt.Errorf("addObjectToScene: caller does not hold a write lock on scene %s", scene.ID)
	}

	obj := types.SceneObject{ID: uuid.NewString(), Name: args.Name, Type: args.Type, Pose: args.Pose}
	if req.DryRun {
		return obj, nil, nil
	}

	scene, err = s.Session.MutateScene(func(sc types.Scene) (types.Scene, error) {
		sc.Objects = append(sc.Objects, obj)
		sc.Modified = time.Now()
		return sc, nil
	})
	if err != nil {
		return nil, nil, err
	}

	broadcastEvent(s, types.EventSceneObjectChanged, obj, types.ChangeAdd, c)
	_ = scene
	return obj, nil, nil
}
