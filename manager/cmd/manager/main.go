// Package main is the entry point for the Execution Manager binary
// (spec.md §4.2). Grounded on arserver/cmd/arserver's cobra+zap wiring
// idiom, scaled to the Manager's narrower set of subsystems: no database,
// no auth, a single Runner instead of a session/lock/aiming cluster.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arcor2/arcor2-core/manager/internal/buildclient"
	"github.com/arcor2/arcor2-core/manager/internal/httpapi"
	"github.com/arcor2/arcor2-core/manager/internal/metrics"
	"github.com/arcor2/arcor2-core/manager/internal/packagestore"
	"github.com/arcor2/arcor2-core/manager/internal/rpc"
	"github.com/arcor2/arcor2-core/manager/internal/runner"
	"github.com/arcor2/arcor2-core/shared/types"
	"github.com/arcor2/arcor2-core/shared/wsrpc"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	httpAddr    string
	buildURL    string
	projectPath string
	storeDir    string
	logLevel    string
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
		Use:   "arcor2-manager",
		Short: "Execution Manager — runs exactly one ARCOR2 execution package at a time",
		Long: `The Execution Manager brokers between the controlling ARServer and the
generated script's child process: it fetches and unpacks execution
packages, spawns and supervises the script, relays its NDJSON events, and
injects pause/resume control bytes and SIGTERM/SIGKILL on stop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.httpAddr, "http-addr", envOrDefault("ARCOR2_MANAGER_ADDR", ":6790"), "HTTP/websocket listen address (spec.md §6 default 6790)")
	root.PersistentFlags().StringVar(&cfg.buildURL, "build-url", envOrDefault("ARCOR2_BUILD_SERVICE_URL", "http://localhost:5008"), "Build service base URL")
	root.PersistentFlags().StringVar(&cfg.projectPath, "project-path", os.Getenv("ARCOR2_PROJECT_PATH"), "Canonical project directory the script reads from (required, spec.md §6)")
	root.PersistentFlags().StringVar(&cfg.storeDir, "package-store", envOrDefault("ARCOR2_PACKAGE_STORE", "./packages"), "Directory holding extracted execution packages")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("ARCOR2_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("arcor2-manager %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	// spec.md §6: "Canonical project path $ARCOR2_PROJECT_PATH (set at
	// process start; absent -> fatal)."
	if cfg.projectPath == "" {
		return errors.New("ARCOR2_PROJECT_PATH (or --project-path) is required and was not set")
	}

	logger.Info("starting arcor2-manager",
		zap.String("version", version),
		zap.String("http_addr", cfg.httpAddr),
		zap.String("build_url", cfg.buildURL),
		zap.String("project_path", cfg.projectPath),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.New(prometheus.DefaultRegisterer)

	hub := wsrpc.NewHub()
	go hub.Run(ctx)

	store, err := packagestore.New(cfg.storeDir, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize package store: %w", err)
	}
	build := buildclient.New(cfg.buildURL, logger)

	var rpcServer *rpc.Server
	r := runner.New(func(kind types.ScriptEventKind, data any) {
		if rpcServer != nil {
			rpcServer.BroadcastScriptEvent(kind, data)
		}
	}, logger)
	rpcServer = rpc.NewServer(hub, r, store, build, m, cfg.projectPath, logger)

	router := httpapi.NewRouter(httpapi.RouterConfig{Hub: hub, RPCServer: rpcServer, Logger: logger})

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
	logger.Info("shutting down arcor2-manager")

	if r.IsRunning() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := r.Stop(stopCtx); err != nil {
			logger.Warn("error stopping running package during shutdown", zap.Error(err))
		}
		stopCancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("arcor2-manager stopped")
	return nil
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
