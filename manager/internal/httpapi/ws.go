package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/arcor2/arcor2-core/manager/internal/rpc"
	"github.com/arcor2/arcor2-core/shared/wsrpc"
)

// WSHandler upgrades the controlling ARServer's connection and hands it to
// the Manager's RPC dispatch table (spec.md §4.2 "Manager is a websocket
// endpoint", §6 "Same envelope as UI").
type WSHandler struct {
	hub    *wsrpc.Hub
	server *rpc.Server
	logger *zap.Logger
}

// NewWSHandler returns a WSHandler serving upgrades onto hub.
func NewWSHandler(hub *wsrpc.Hub, server *rpc.Server, logger *zap.Logger) *WSHandler {
	return &WSHandler{hub: hub, server: server, logger: logger.Named("ws")}
}

// ServeHTTP implements http.Handler.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, err := wsrpc.Accept(h.hub, w, r, h.server, h.logger); err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
	}
}
