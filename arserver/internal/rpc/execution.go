package rpc

import (
	"context"
	"fmt"

	"github.com/arcor2/arcor2-core/shared/types"
	"github.com/arcor2/arcor2-core/shared/wsrpc"
)

// proxyToManager forwards an execution RPC verbatim to the Manager over
// the persistent link and returns its response unchanged, implementing the
// spec.md §9 decision to proxy execution RPCs end-to-end rather than
// exposing a separate Manager-facing endpoint to UI clients.
func proxyToManager(ctx context.Context, s *Server, _ *wsrpc.Conn, req types.RequestEnvelope) (any, []string, error) {
	if s.Manager == nil || !s.Manager.Connected() {
		return nil, nil, fmt.Errorf("%s: Execution Manager is not connected", req.Request)
	}

	var args any
	if len(req.Args) > 0 {
		args = req.Args
	}

	resp, err := s.Manager.Forward(ctx, req.Request, args)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", req.Request, err)
	}
	if !resp.Result {
		return nil, resp.Messages, fmt.Errorf("%s: rejected by Manager", req.Request)
	}
	return rawData(resp.Data), resp.Messages, nil
}

// rawData wraps an already-encoded JSON payload so the outer dispatch loop
// re-marshals it unchanged instead of double-encoding.
type rawData []byte

// MarshalJSON implements json.Marshaler.
func (r rawData) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}
