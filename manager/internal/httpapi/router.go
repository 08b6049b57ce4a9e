// Package httpapi is the Execution Manager's narrow HTTP surface: health
// and metrics probes plus the websocket upgrade ARServer dials into
// (spec.md §6, §4.2 "Manager is a websocket endpoint"). Adapted from
// arserver/internal/httpapi's router, scaled down — the Manager has no
// UI-facing auth surface of its own.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arcor2/arcor2-core/manager/internal/rpc"
	"github.com/arcor2/arcor2-core/shared/wsrpc"
)

// RouterConfig holds every dependency NewRouter needs.
type RouterConfig struct {
	Hub       *wsrpc.Hub
	RPCServer *rpc.Server
	Logger    *zap.Logger
}

// NewRouter builds the Manager's chi router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		JSON(w, http.StatusOK, struct {
			Status          string `json:"status"`
			ConnectedLinks  int    `json:"connectedLinks"`
			RunState        string `json:"runState"`
		}{
			Status:         "ok",
			ConnectedLinks: cfg.Hub.Count(),
			RunState:       string(cfg.RPCServer.Runner.State()),
		})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/ws", NewWSHandler(cfg.Hub, cfg.RPCServer, cfg.Logger))

	return r
}
