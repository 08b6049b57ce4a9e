package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/arcor2/arcor2-core/arserver/internal/aiming"
	"github.com/arcor2/arcor2-core/arserver/internal/auth"
	"github.com/arcor2/arcor2-core/arserver/internal/catalog"
	"github.com/arcor2/arcor2-core/arserver/internal/db"
	"github.com/arcor2/arcor2-core/arserver/internal/httpapi"
	"github.com/arcor2/arcor2-core/arserver/internal/lock"
	"github.com/arcor2/arcor2-core/arserver/internal/managerclient"
	"github.com/arcor2/arcor2-core/arserver/internal/metrics"
	"github.com/arcor2/arcor2-core/arserver/internal/objecttype"
	"github.com/arcor2/arcor2-core/arserver/internal/repository"
	"github.com/arcor2/arcor2-core/arserver/internal/rpc"
	"github.com/arcor2/arcor2-core/arserver/internal/sceneclient"
	"github.com/arcor2/arcor2-core/arserver/internal/scheduler"
	"github.com/arcor2/arcor2-core/arserver/internal/session"
	"github.com/arcor2/arcor2-core/shared/types"
	"github.com/arcor2/arcor2-core/shared/wsrpc"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	httpAddr       string
	managerURL     string
	storageURL     string
	sceneURL       string
	dbDriver       string
	dbDSN          string
	secretKey      string
	logLevel       string
	dataDir        string
	secureCookies  bool
	authEnabled    bool
	catalogTTL     time.Duration
	catalogLRUSize int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "arserver",
		Short: "ARServer — the ARCOR2 workcell control plane UI hub",
		Long: `ARServer owns the websocket hub that UI clients and the Execution
Manager connect to, the catalog cache over the Project/Storage service, the
per-object lock table, and the object-aiming state machine.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.httpAddr, "http-addr", envOrDefault("ARCOR2_HTTP_ADDR", ":6789"), "HTTP/websocket listen address (spec.md §6 default 6789)")
	root.PersistentFlags().StringVar(&cfg.managerURL, "manager-url", envOrDefault("ARCOR2_MANAGER_URL", "ws://localhost:6790/ws"), "Execution Manager websocket URL")
	root.PersistentFlags().StringVar(&cfg.storageURL, "storage-url", envOrDefault("ARCOR2_PROJECT_STORAGE_URL", "http://localhost:11000"), "Project/Storage service base URL")
	root.PersistentFlags().StringVar(&cfg.sceneURL, "scene-service-url", envOrDefault("ARCOR2_SCENE_SERVICE_URL", "http://localhost:5013"), "Scene service base URL (collision/focus/line-check)")
	root.PersistentFlags().StringVar(&cfg.dbDriver, "db-driver", envOrDefault("ARCOR2_DB_DRIVER", "sqlite"), "Database driver (sqlite or postgres)")
	root.PersistentFlags().StringVar(&cfg.dbDSN, "db-dsn", envOrDefault("ARCOR2_DB_DSN", "./arserver.db"), "Database DSN or file path for SQLite")
	root.PersistentFlags().StringVar(&cfg.secretKey, "secret-key", envOrDefault("ARCOR2_SECRET_KEY", ""), "Master secret key for encrypting OIDC client secrets at rest")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("ARCOR2_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.dataDir, "data-dir", envOrDefault("ARCOR2_DATA_DIR", "./data"), "Directory for server data (JWT keys, etc.)")
	root.PersistentFlags().BoolVar(&cfg.secureCookies, "secure-cookies", envOrDefault("ARCOR2_SECURE_COOKIES", "false") == "true", "Set Secure flag on auth cookies")
	root.PersistentFlags().BoolVar(&cfg.authEnabled, "auth-enabled", envOrDefault("ARCOR2_AUTH_ENABLED", "false") == "true", "Require a JWT on the HTTP auth endpoints (the RPC layer always requires RegisterUser)")
	root.PersistentFlags().DurationVar(&cfg.catalogTTL, "catalog-ttl", 5*time.Second, "TTL before a catalog listing is considered stale (spec.md §4.3)")
	root.PersistentFlags().IntVar(&cfg.catalogLRUSize, "catalog-lru-size", 256, "Per-kind catalog entity LRU capacity")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("arserver %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting arserver",
		zap.String("version", version),
		zap.String("http_addr", cfg.httpAddr),
		zap.String("manager_url", cfg.managerURL),
		zap.String("storage_url", cfg.storageURL),
		zap.String("scene_url", cfg.sceneURL),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- Database (auth domain only: users, tokens, OIDC providers, audit) ---
	if cfg.secretKey != "" {
		keyBytes := make([]byte, 32)
		copy(keyBytes, []byte(cfg.secretKey))
		if err := db.InitEncryption(keyBytes); err != nil {
			return fmt.Errorf("failed to initialize encryption: %w", err)
		}
	}

	gormDB, err := db.New(db.Config{
		Driver:   cfg.dbDriver,
		DSN:      cfg.dbDSN,
		Logger:   logger,
		LogLevel: gormLogLevel(cfg.logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	userRepo := repository.NewUserRepository(gormDB)
	refreshTokenRepo := repository.NewRefreshTokenRepository(gormDB)
	oidcProviderRepo := repository.NewOIDCProviderRepository(gormDB)

	var authService *auth.AuthService
	if cfg.authEnabled {
		jwtManager, err := buildJWTManager(cfg.dataDir, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize JWT manager: %w", err)
		}
		localProvider := auth.NewLocalAuthProvider(userRepo, refreshTokenRepo, jwtManager)
		oidcProvider := auth.NewOIDCAuthProvider(oidcProviderRepo, userRepo, refreshTokenRepo, jwtManager)
		authService = auth.NewAuthService(localProvider, oidcProvider, refreshTokenRepo, jwtManager)
	}

	// --- Metrics ---
	m := metrics.New(prometheus.DefaultRegisterer)

	// --- Hub + session + lock table + aiming table ---
	hub := wsrpc.NewHub()
	go hub.Run(ctx)

	sessionMgr := session.NewManager()
	locks := lock.NewTable(sessionMgr, lock.WithChangeHandler(func(ev lock.Event) {
		event := types.EventObjectsLocked
		if !ev.Locked {
			event = types.EventObjectsUnlocked
		}
		raw, err := json.Marshal(types.LockEventData{ObjectIDs: ev.IDs, Owner: ev.Owner})
		if err == nil {
			hub.Broadcast(types.EventEnvelope{Event: event, Data: raw}, nil)
		}
	}))
	aimingTable := aiming.NewTable()

	// --- Catalog stores over the Project/Storage service ---
	sceneStore := catalog.NewStore[types.Scene](catalog.NewSceneBackend(cfg.storageURL, logger), cfg.catalogTTL, cfg.catalogLRUSize)
	projectStore := catalog.NewStore[types.Project](catalog.NewProjectBackend(cfg.storageURL, logger), cfg.catalogTTL, cfg.catalogLRUSize)
	objectTypeBackend := catalog.NewObjectTypeBackend(cfg.storageURL, logger)
	objectTypeStore := catalog.NewStore[types.ObjectType](objectTypeBackend, cfg.catalogTTL, cfg.catalogLRUSize)

	graph := objecttype.NewGraph(objectTypeBackend)
	if _, err := graph.Refresh(ctx); err != nil {
		logger.Warn("initial object type catalog refresh failed", zap.Error(err))
	}

	// --- Execution Manager link ---
	mgrClient := managerclient.NewClient(cfg.managerURL, hub, logger)
	go mgrClient.Run(ctx)

	// --- Scene service link (collision, mesh focus, line-check) ---
	sceneSvc := sceneclient.NewClient(cfg.sceneURL, logger)

	// --- Scheduler ---
	sched, err := scheduler.New(graph, aimingTable, locks, logger,
		scheduler.WithCatalogRefreshHandler(func(delta objecttype.Delta) {
			broadcastObjectTypeDelta(hub, delta)
		}))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			logger.Warn("scheduler shutdown error", zap.Error(err))
		}
	}()

	// --- RPC dispatch + HTTP ---
	rpcServer := rpc.NewServer(hub, sessionMgr, locks, aimingTable, graph, sceneStore, projectStore, objectTypeStore, mgrClient, sceneSvc, m, logger)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Hub: hub, RPCServer: rpcServer, AuthService: authService, Logger: logger, Secure: cfg.secureCookies,
	})

	httpSrv := &http.Server{
		Addr:         cfg.httpAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down arserver")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("arserver stopped")
	return nil
}

// broadcastObjectTypeDelta emits the ADD/UPDATE/REMOVE events for one
// catalog refresh delta (spec.md §4.1: "three ChangedObjectTypes events").
func broadcastObjectTypeDelta(hub *wsrpc.Hub, delta objecttype.Delta) {
	for _, ot := range delta.Added {
		if raw, err := json.Marshal(ot); err == nil {
			hub.Broadcast(types.EventEnvelope{Event: types.EventChangedObjectTypes, Data: raw, ChangeType: types.ChangeAdd}, nil)
		}
	}
	for _, ot := range delta.Updated {
		if raw, err := json.Marshal(ot); err == nil {
			hub.Broadcast(types.EventEnvelope{Event: types.EventChangedObjectTypes, Data: raw, ChangeType: types.ChangeUpdate}, nil)
		}
	}
	for _, id := range delta.Removed {
		if raw, err := json.Marshal(struct {
			ID string `json:"id"`
		}{ID: id}); err == nil {
			hub.Broadcast(types.EventEnvelope{Event: types.EventChangedObjectTypes, Data: raw, ChangeType: types.ChangeRemove}, nil)
		}
	}
}

// buildJWTManager loads RSA keys from the data directory if available, or
// generates ephemeral in-memory keys for development.
func buildJWTManager(dataDir string, logger *zap.Logger) (*auth.JWTManager, error) {
	privPath := filepath.Join(dataDir, "jwt_private.pem")
	pubPath := filepath.Join(dataDir, "jwt_public.pem")

	if _, err := os.Stat(privPath); err == nil {
		logger.Info("loading JWT keys from disk", zap.String("private", privPath))
		return auth.NewJWTManagerFromFiles(privPath, pubPath, "arserver")
	}

	logger.Warn("JWT key files not found — using ephemeral in-memory keys (tokens will be invalidated on restart)",
		zap.String("expected_private", privPath))
	return auth.NewJWTManagerGenerated("arserver")
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "info":
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
