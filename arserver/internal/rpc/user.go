package rpc

import (
	"context"
	"fmt"

	"github.com/arcor2/arcor2-core/shared/types"
	"github.com/arcor2/arcor2-core/shared/wsrpc"
)

type registerUserArgs struct {
	Name string `json:"name"`
}

// registerUser implements the connection's mandatory first RPC
// (spec.md §4.1: "the client must issue RegisterUser{name} as its first
// RPC"). Re-registration under a name that already holds locks cancels any
// pending auto-release timer armed by a previous disconnect.
func registerUser(_ context.Context, s *Server, c *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	var args registerUserArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("registerUser: decode args: %w", err)
	}
	if args.Name == "" {
		return nil, nil, fmt.Errorf("registerUser: name must not be empty")
	}

	c.UserData = &connState{userName: args.Name}
	s.Locks.CancelAutoRelease(args.Name)
	s.Session.AddEditingUser(args.Name)

	return struct {
		Name string `json:"name"`
	}{Name: args.Name}, nil, nil
}
