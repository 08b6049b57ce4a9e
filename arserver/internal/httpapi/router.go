package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arcor2/arcor2-core/arserver/internal/auth"
	"github.com/arcor2/arcor2-core/arserver/internal/rpc"
	"github.com/arcor2/arcor2-core/shared/wsrpc"
)

// RouterConfig holds every dependency NewRouter needs to build ARServer's
// HTTP surface (spec.md §6).
type RouterConfig struct {
	Hub         *wsrpc.Hub
	RPCServer   *rpc.Server
	AuthService *auth.AuthService // nil disables the /auth/* routes entirely
	Logger      *zap.Logger
	Secure      bool
}

// NewRouter builds ARServer's chi router: health/metrics probes, the RPC
// websocket upgrade, and (if AuthService is configured) the login/refresh
// HTTP endpoints consumed by the UI before it opens the websocket.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		Ok(w, struct {
			Status  string `json:"status"`
			Clients int    `json:"connectedClients"`
		}{Status: "ok", Clients: cfg.Hub.Count()})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/ws", NewWSHandler(cfg.Hub, cfg.RPCServer, cfg.Logger))

	if cfg.AuthService != nil {
		authHandler := NewAuthHandler(cfg.AuthService, cfg.Logger, cfg.Secure)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)
		})
	}

	return r
}
