// Package rpc implements ARServer's RPC dispatch table: the static mapping
// from RequestEnvelope.Request discriminators to handlers (spec.md §4.1),
// wired into shared/wsrpc as a Handler. Grounded on the teacher's
// websocket hub consumer pattern, generalized from single-purpose
// broadcast into full request/response dispatch.
package rpc

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/arcor2/arcor2-core/arserver/internal/aiming"
	"github.com/arcor2/arcor2-core/arserver/internal/catalog"
	"github.com/arcor2/arcor2-core/arserver/internal/lock"
	"github.com/arcor2/arcor2-core/arserver/internal/managerclient"
	"github.com/arcor2/arcor2-core/arserver/internal/metrics"
	"github.com/arcor2/arcor2-core/arserver/internal/objecttype"
	"github.com/arcor2/arcor2-core/arserver/internal/sceneclient"
	"github.com/arcor2/arcor2-core/arserver/internal/session"
	"github.com/arcor2/arcor2-core/shared/types"
	"github.com/arcor2/arcor2-core/shared/wsrpc"
)

// connState is attached to every Conn as Conn.UserData once RegisterUser
// succeeds (spec.md §4.1: "the client must issue RegisterUser{name} as its
// first RPC").
type connState struct {
	userName string
}

// method is one entry of the dispatch table: it decodes req.Args, runs
// domain logic, and returns the result payload or a domain error. Framing
// (request/response id correlation) is handled entirely by wsrpc; methods
// only ever see validated envelopes.
type method func(ctx context.Context, s *Server, c *wsrpc.Conn, req types.RequestEnvelope) (data any, messages []string, err error)

// Server is ARServer's RPC Handler: the dispatch table plus every
// subsystem a handler may need (spec.md §4.1/§4.3).
type Server struct {
	Hub       *wsrpc.Hub
	Session   *session.Manager
	Locks     *lock.Table
	Aiming    *aiming.Table
	Graph     *objecttype.Graph
	Scenes    *catalog.Store[types.Scene]
	Projects  *catalog.Store[types.Project]
	ObjTypes  *catalog.Store[types.ObjectType]
	Manager   *managerclient.Client
	Scene     *sceneclient.Client
	Metrics   *metrics.Metrics
	Logger    *zap.Logger

	methods map[string]method
}

// NewServer wires the dispatch table and returns a ready-to-use Server.
func NewServer(hub *wsrpc.Hub, sessionMgr *session.Manager, locks *lock.Table, aim *aiming.Table,
	graph *objecttype.Graph, scenes *catalog.Store[types.Scene], projects *catalog.Store[types.Project],
	objTypes *catalog.Store[types.ObjectType], mgr *managerclient.Client, sceneSvc *sceneclient.Client,
	m *metrics.Metrics, logger *zap.Logger) *Server {

	s := &Server{
		Hub: hub, Session: sessionMgr, Locks: locks, Aiming: aim, Graph: graph,
		Scenes: scenes, Projects: projects, ObjTypes: objTypes, Manager: mgr, Scene: sceneSvc,
		Metrics: m, Logger: logger.Named("rpc"),
	}
	s.methods = map[string]method{
		"RegisterUser": registerUser,

		"ListScenes":       listScenes,
		"NewScene":         newScene,
		"OpenScene":        openScene,
		"SaveScene":        saveScene,
		"CloseScene":       closeScene,
		"DeleteScene":      deleteScene,
		"AddObjectToScene": addObjectToScene,

		"ListProjects": listProjects,
		"NewProject":   newProject,
		"OpenProject":  openProject,
		"SaveProject":  saveProject,
		"CloseProject": closeProject,
		"DeleteProject": deleteProject,
		"AddActionPoint": addActionPoint,
		"AddAction":      addAction,
		"AddLogicItem":   addLogicItem,

		"ReadLock":   readLock,
		"ReadUnlock": readUnlock,
		"WriteLock":  writeLock,
		"WriteUnlock": writeUnlock,
		"UpdateLock": updateLock,

		"StartObjectFocusing":  startObjectFocusing,
		"AddFocusPoint":        addFocusPoint,
		"FinishObjectFocusing": finishObjectFocusing,
		"CancelObjectFocusing": cancelObjectFocusing,

		"RunPackage":     proxyToManager,
		"StopPackage":    proxyToManager,
		"PausePackage":   proxyToManager,
		"ResumePackage":  proxyToManager,
		"PackageState":   proxyToManager,
		"ListPackages":   proxyToManager,
		"UploadPackage":  proxyToManager,
		"DeletePackage":  proxyToManager,
		"PackageInfo":    proxyToManager,
		"BuildProject":   proxyToManager,
	}
	return s
}

// HandleRequest implements wsrpc.Handler.
func (s *Server) HandleRequest(c *wsrpc.Conn, req types.RequestEnvelope) types.ResponseEnvelope {
	start := time.Now()
	resp := s.dispatch(c, req)
	elapsed := time.Since(start)

	if s.Metrics != nil {
		s.Metrics.RPCDuration.WithLabelValues(req.Request).Observe(elapsed.Seconds())
		if !resp.Result {
			s.Metrics.RPCErrors.WithLabelValues(req.Request).Inc()
		}
	}

	s.Logger.Debug("rpc handled",
		zap.String("request", req.Request), zap.Uint64("id", req.ID),
		zap.Bool("result", resp.Result), zap.Duration("took", elapsed))
	return resp
}

func (s *Server) dispatch(c *wsrpc.Conn, req types.RequestEnvelope) types.ResponseEnvelope {
	if req.Request != "RegisterUser" {
		if _, ok := c.UserData.(*connState); !ok {
			return errorResponse("must RegisterUser before any other RPC")
		}
	}

	fn, ok := s.methods[req.Request]
	if !ok {
		return errorResponse("unknown request: " + req.Request)
	}

	// spec.md §8 property 5: "a request whose dryRun flag is set must not
	// persist any state change" — handlers that mutate state check
	// req.DryRun themselves before committing; read-only handlers ignore
	// it.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, messages, err := fn(ctx, s, c, req)
	if err != nil {
		r := errorResponse(err.Error())
		r.Messages = append(r.Messages, messages...)
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

// HandleDisconnect implements wsrpc.DisconnectHandler. It arms the lock
// auto-release timer and drops the aiming/editing-user bookkeeping for the
// user who owned c, per spec.md §4.1 ("on disconnect, any pending
// auto-release timer is armed for the locks held by that user").
func (s *Server) HandleDisconnect(c *wsrpc.Conn) {
	user := userOf(c)
	if user == "" {
		return
	}
	s.Locks.ArmAutoRelease(user)
	s.Aiming.PruneUser(user)
	s.Session.RemoveEditingUser(user)
	s.Logger.Debug("connection disconnected", zap.String("user", user))
}

func errorResponse(msg string) types.ResponseEnvelope {
	return types.ResponseEnvelope{Result: false, Messages: []string{msg}}
}

// userOf returns the registered user name for c, or "" if unregistered.
func userOf(c *wsrpc.Conn) string {
	if cs, ok := c.UserData.(*connState); ok {
		return cs.userName
	}
	return ""
}

// decodeArgs unmarshals req.Args into out, treating an empty/absent args
// field as a zero value rather than an error (many RPCs take no arguments).
func decodeArgs(req types.RequestEnvelope, out any) error {
	if len(req.Args) == 0 {
		return nil
	}
	return json.Unmarshal(req.Args, out)
}

// broadcastEvent marshals data and pushes it to every connection except
// exclude, matching spec.md §4.1's "never re-echo to the originator" rule.
// Pass excludeOriginator=false to include every connection (e.g. for
// ADD/REMOVE catalog deltas, which must reach the originator too).
func broadcastEvent(s *Server, event string, data any, changeType types.ChangeType, exclude *wsrpc.Conn) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.Logger.Error("broadcastEvent: marshal", zap.String("event", event), zap.Error(err))
		return
	}
	s.Hub.Broadcast(types.EventEnvelope{Event: event, Data: raw, ChangeType: changeType}, exclude)
}
