package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/arcor2/arcor2-core/shared/types"
	"github.com/arcor2/arcor2-core/shared/wsrpc"
)

type startObjectFocusingArgs struct {
	ObjectID string `json:"objectId"`
	RobotID  string `json:"robotId"`
	Method   string `json:"method"`
}

// startObjectFocusing arms an object-aiming session for the calling user
// (spec.md §4.1 Object Aiming state machine: IDLE -> ARMED). Transitions
// require write locks on both the scene object and the robot
// (spec.md §4.1: "Transitions require that the caller holds write locks on
// both the scene object and the robot").
func startObjectFocusing(_ context.Context, s *Server, c *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	var args startObjectFocusingArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("startObjectFocusing: decode args: %w", err)
	}

	scene, err := s.Session.Scene()
	if err != nil {
		return nil, nil, fmt.Errorf("startObjectFocusing: %w", err)
	}
	obj := scene.FindObject(args.ObjectID)
	if obj == nil {
		return nil, nil, fmt.Errorf("startObjectFocusing: object %q not present in the open scene", args.ObjectID)
	}
	ot, ok := s.Graph.Get(obj.Type)
	if !ok {
		return nil, nil, fmt.Errorf("startObjectFocusing: unknown object type %q", obj.Type)
	}
	if len(ot.FocusPoints) == 0 {
		return nil, nil, fmt.Errorf("startObjectFocusing: object type %q has no mesh focus points", obj.Type)
	}

	user := userOf(c)
	if !s.Locks.IsWriteLockedBy(args.ObjectID, user) || !s.Locks.IsWriteLockedBy(args.RobotID, user) {
		return nil, nil, fmt.Errorf("startObjectFocusing: caller does not hold write locks on both %s and %s", args.ObjectID, args.RobotID)
	}

	if req.DryRun {
		return struct{}{}, nil, nil
	}

	session, err := s.Aiming.Start(args.ObjectID, args.RobotID, user, args.Method, len(ot.FocusPoints))
	if err != nil {
		return nil, nil, err
	}
	return struct {
		ObjectID string `json:"objectId"`
		State    string `json:"state"`
	}{ObjectID: session.ObjectID, State: string(session.State)}, nil, nil
}

type focusPointArgs struct {
	ObjectID string     `json:"objectId"`
	Index    int        `json:"index"`
	Pose     types.Pose `json:"pose"`
}

// addFocusPoint records the robot pose observed at index against an armed
// session (spec.md §4.1: "AddPoint(idx) is rejected if idx is out of the
// mesh's focusPoints range or already recorded"). ARServer does not itself
// talk to a robot driver (spec.md §1 Non-goals: "defining a robot-motion
// API"), so the caller — the UI, via whatever drives the physical robot —
// reports the observed pose as part of the RPC.
func addFocusPoint(_ context.Context, s *Server, c *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	var args focusPointArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("addFocusPoint: decode args: %w", err)
	}

	user := userOf(c)
	existing, ok := s.Aiming.Get(args.ObjectID, user)
	if !ok {
		return nil, nil, fmt.Errorf("addFocusPoint: no armed aiming session for %s", args.ObjectID)
	}
	if !s.Locks.IsWriteLockedBy(existing.ObjectID, user) || !s.Locks.IsWriteLockedBy(existing.RobotID, user) {
		return nil, nil, fmt.Errorf("addFocusPoint: caller does not hold write locks on both %s and %s", existing.ObjectID, existing.RobotID)
	}

	if req.DryRun {
		return struct{}{}, nil, nil
	}

	session, err := s.Aiming.AddPoint(args.ObjectID, user, args.Index, args.Pose)
	if err != nil {
		return nil, nil, err
	}
	return struct {
		Collected int `json:"collected"`
	}{Collected: len(session.Points)}, nil, nil
}

type objectIDArgs struct {
	ObjectID string `json:"objectId"`
}

// finishObjectFocusing completes the armed session (spec.md §4.1: "Done
// requires all indices filled; it calls the Scene service's focus
// endpoint and, on success, updates the object's pose in place"). The
// Scene-service HTTP call runs outside the aiming table's lock
// (spec.md §5), driven by the read-only snapshot CheckComplete returns;
// Finish only commits the ARMED -> IDLE transition once that call
// succeeds.
func finishObjectFocusing(ctx context.Context, s *Server, c *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	var args objectIDArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("finishObjectFocusing: decode args: %w", err)
	}

	user := userOf(c)
	snapshot, err := s.Aiming.CheckComplete(args.ObjectID, user)
	if err != nil {
		return nil, nil, fmt.Errorf("finishObjectFocusing: %w", err)
	}
	if !s.Locks.IsWriteLockedBy(snapshot.ObjectID, user) || !s.Locks.IsWriteLockedBy(snapshot.RobotID, user) {
		return nil, nil, fmt.Errorf("finishObjectFocusing: caller does not hold write locks on both %s and %s", snapshot.ObjectID, snapshot.RobotID)
	}

	scene, err := s.Session.Scene()
	if err != nil {
		return nil, nil, fmt.Errorf("finishObjectFocusing: %w", err)
	}
	obj := scene.FindObject(snapshot.ObjectID)
	if obj == nil {
		return nil, nil, fmt.Errorf("finishObjectFocusing: object %q not present in the open scene", snapshot.ObjectID)
	}
	ot, ok := s.Graph.Get(obj.Type)
	if !ok {
		return nil, nil, fmt.Errorf("finishObjectFocusing: unknown object type %q", obj.Type)
	}

	if req.DryRun {
		return struct{}{}, nil, nil
	}

	pose, err := s.Scene.Focus(ctx, snapshot.ObjectID, ot.FocusPoints, snapshot.OrderedPoints())
	if err != nil {
		return nil, nil, fmt.Errorf("finishObjectFocusing: %w", err)
	}
	if err := s.Aiming.Finish(args.ObjectID, user); err != nil {
		return nil, nil, fmt.Errorf("finishObjectFocusing: %w", err)
	}

	updatedScene, err := s.Session.MutateScene(func(sc types.Scene) (types.Scene, error) {
		target := sc.FindObject(snapshot.ObjectID)
		if target == nil {
			return sc, fmt.Errorf("object %q no longer present in scene", snapshot.ObjectID)
		}
		target.Pose = pose
		sc.Modified = time.Now()
		return sc, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("finishObjectFocusing: %w", err)
	}

	updatedObj := updatedScene.FindObject(snapshot.ObjectID)
	broadcastEvent(s, types.EventSceneObjectChanged, *updatedObj, types.ChangeUpdate, nil)

	return struct {
		ObjectID string `json:"objectId"`
		Points   int    `json:"points"`
	}{ObjectID: snapshot.ObjectID, Points: len(snapshot.Points)}, nil, nil
}

// cancelObjectFocusing discards an armed session without computing a pose.
func cancelObjectFocusing(_ context.Context, s *Server, c *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	var args objectIDArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("cancelObjectFocusing: decode args: %w", err)
	}

	user := userOf(c)
	existing, ok := s.Aiming.Get(args.ObjectID, user)
	if !ok {
		return nil, nil, fmt.Errorf("cancelObjectFocusing: no armed aiming session for %s", args.ObjectID)
	}
	if !s.Locks.IsWriteLockedBy(existing.ObjectID, user) || !s.Locks.IsWriteLockedBy(existing.RobotID, user) {
		return nil, nil, fmt.Errorf("cancelObjectFocusing: caller does not hold write locks on both %s and %s", existing.ObjectID, existing.RobotID)
	}

	if req.DryRun {
		return struct{}{}, nil, nil
	}
	if err := s.Aiming.Cancel(args.ObjectID, user); err != nil {
		return nil, nil, err
	}
	return struct{}{}, nil, nil
}
