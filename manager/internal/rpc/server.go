// Package rpc implements the Execution Manager's RPC dispatch table
// (spec.md §4.2 RPC surface), wired as a shared/wsrpc.Handler. Grounded on
// arserver/internal/rpc's dispatch-table shape (method type, methods map,
// HandleRequest/dispatch split), scaled down to the Manager's narrower
// RPC surface and its single-running-package constraint instead of
// ARServer's many-catalog-entity one.
package rpc

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/arcor2/arcor2-core/manager/internal/buildclient"
	"github.com/arcor2/arcor2-core/manager/internal/metrics"
	"github.com/arcor2/arcor2-core/manager/internal/packagestore"
	"github.com/arcor2/arcor2-core/manager/internal/runner"
	"github.com/arcor2/arcor2-core/shared/types"
	"github.com/arcor2/arcor2-core/shared/wsrpc"
)

// method is one dispatch table entry — decodes req.Args, runs domain logic,
// returns the result payload or a domain error.
type method func(ctx context.Context, s *Server, req types.RequestEnvelope) (data any, messages []string, err error)

// Server is the Manager's RPC Handler.
type Server struct {
	Hub          *wsrpc.Hub
	Runner       *runner.Runner
	Store        *packagestore.Store
	Build        *buildclient.Client
	Metrics      *metrics.Metrics
	ProjectPath  string // $ARCOR2_PROJECT_PATH, the canonical run directory
	Logger       *zap.Logger

	methods map[string]method
}

// NewServer wires the dispatch table.
func NewServer(hub *wsrpc.Hub, r *runner.Runner, store *packagestore.Store, build *buildclient.Client,
	m *metrics.Metrics, projectPath string, logger *zap.Logger) *Server {

	s := &Server{
		Hub: hub, Runner: r, Store: store, Build: build, Metrics: m,
		ProjectPath: projectPath, Logger: logger.Named("rpc"),
	}
	s.methods = map[string]method{
		"RunPackage":    runPackage,
		"StopPackage":   stopPackage,
		"PausePackage":  pausePackage,
		"ResumePackage": resumePackage,
		"PackageState":  packageState,
		"ListPackages":  listPackages,
		"UploadPackage": uploadPackage,
		"DeletePackage": deletePackage,
		"PackageInfo":   packageInfo,
	}
	return s
}

// HandleRequest implements wsrpc.Handler.
func (s *Server) HandleRequest(c *wsrpc.Conn, req types.RequestEnvelope) types.ResponseEnvelope {
	fn, ok := s.methods[req.Request]
	if !ok {
		return errorResponse("unknown request: " + req.Request)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	data, messages, err := fn(ctx, s, req)
	if err != nil {
		r := errorResponse(err.Error())
		r.Messages = append(r.Messages, messages...)
		s.Logger.Warn("rpc failed", zap.String("request", req.Request), zap.Error(err))
		return r
	}

	var raw json.RawMessage
	if data != nil {
		raw, err = json.Marshal(data)
		if err != nil {
			return errorResponse("encode response: " + err.Error())
		}
	}
	return types.ResponseEnvelope{Result: true, Messages: messages, Data: raw}
}

func errorResponse(msg string) types.ResponseEnvelope {
	return types.ResponseEnvelope{Result: false, Messages: []string{msg}}
}

func decodeArgs(req types.RequestEnvelope, out any) error {
	if len(req.Args) == 0 {
		return nil
	}
	return json.Unmarshal(req.Args, out)
}

// BroadcastScriptEvent is passed to runner.New as its EventFunc: every
// script event and state transition is re-broadcast to the controlling
// ARServer link (spec.md §6: "Same envelope as UI"). PackageState and
// ProjectException are never dropped on a full send buffer even though the
// underlying Hub.Broadcast policy drops slow peers entirely rather than
// selectively dropping frames — with exactly one controlling link expected
// (SPEC_FULL.md §3), the practical effect is the same guarantee spec.md §5
// asks for.
func (s *Server) BroadcastScriptEvent(kind types.ScriptEventKind, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.Logger.Error("broadcast script event: marshal", zap.String("event", string(kind)), zap.Error(err))
		return
	}
	if s.Metrics != nil && kind == types.ScriptEventPackageState {
		s.Metrics.SetState(string(s.Runner.State()))
	}
	s.Hub.Broadcast(types.EventEnvelope{Event: string(kind), Data: raw}, nil)
}
