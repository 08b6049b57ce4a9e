package rpc

import (
	"context"
	"fmt"

	"github.com/arcor2/arcor2-core/shared/types"
	"github.com/arcor2/arcor2-core/shared/wsrpc"
)

type lockIDArgs struct {
	ID string `json:"id"`
}

func readLock(_ context.Context, s *Server, c *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	var args lockIDArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("readLock: decode args: %w", err)
	}
	user := userOf(c)
	if req.DryRun {
		return struct{}{}, nil, nil
	}
	if err := s.Locks.ReadLock(args.ID, user); err != nil {
		return nil, nil, err
	}
	broadcastEvent(s, types.EventObjectsLocked, types.LockEventData{ObjectIDs: []string{args.ID}, Owner: user}, "", c)
	return struct{}{}, nil, nil
}

func readUnlock(_ context.Context, s *Server, c *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	var args lockIDArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("readUnlock: decode args: %w", err)
	}
	user := userOf(c)
	if req.DryRun {
		return struct{}{}, nil, nil
	}
	if err := s.Locks.ReadUnlock(args.ID, user); err != nil {
		return nil, nil, err
	}
	broadcastEvent(s, types.EventObjectsUnlocked, types.LockEventData{ObjectIDs: []string{args.ID}, Owner: user}, "", c)
	return struct{}{}, nil, nil
}

type writeLockArgs struct {
	ID   string `json:"id"`
	Tree bool   `json:"tree"`
}

func writeLock(_ context.Context, s *Server, c *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	var args writeLockArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("writeLock: decode args: %w", err)
	}
	user := userOf(c)
	if req.DryRun {
		return struct{}{}, nil, nil
	}
	if err := s.Locks.WriteLock(args.ID, user, args.Tree); err != nil {
		return nil, nil, err
	}
	broadcastEvent(s, types.EventObjectsLocked, types.LockEventData{ObjectIDs: []string{args.ID}, Owner: user}, "", c)
	return struct{}{}, nil, nil
}

func writeUnlock(_ context.Context, s *Server, c *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	var args lockIDArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("writeUnlock: decode args: %w", err)
	}
	user := userOf(c)
	if req.DryRun {
		return struct{}{}, nil, nil
	}
	if err := s.Locks.WriteUnlock(args.ID, user); err != nil {
		return nil, nil, err
	}
	broadcastEvent(s, types.EventObjectsUnlocked, types.LockEventData{ObjectIDs: []string{args.ID}, Owner: user}, "", c)
	return struct{}{}, nil, nil
}

type updateLockArgs struct {
	ID      string `json:"id"`
	NewTree bool   `json:"newTree"`
}

// updateLock upgrades/downgrades an existing write lock between object and
// tree scope (spec.md §4.1: "UpdateLock upgrades a single write lock to a
// tree-write lock or downgrades it").
func updateLock(_ context.Context, s *Server, c *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	var args updateLockArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("updateLock: decode args: %w", err)
	}
	user := userOf(c)
	if req.DryRun {
		return struct{}{}, nil, nil
	}
	if err := s.Locks.UpdateLock(args.ID, user, args.NewTree); err != nil {
		return nil, nil, err
	}
	return struct{}{}, nil, nil
}
