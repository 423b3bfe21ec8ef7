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

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yousuf/scopemap-mcp/internal/config"
	"github.com/yousuf/scopemap-mcp/internal/eval"
	"github.com/yousuf/scopemap-mcp/internal/logger"
	"github.com/yousuf/scopemap-mcp/internal/sandbox"
	"github.com/yousuf/scopemap-mcp/internal/scopes"
	"github.com/yousuf/scopemap-mcp/internal/server"
	"github.com/yousuf/scopemap-mcp/internal/session"
	"github.com/yousuf/scopemap-mcp/internal/storage/sqlite"
	"github.com/yousuf/scopemap-mcp/internal/store"
)

const (
	idleTimeout   = 30 * time.Minute
	janitorPeriod = time.Minute
)

var (
	rootCmd = &cobra.Command{
		Use:   "scopemap",
		Short: "Source-mapped debugger state over MCP",
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server.

By default the server communicates over stdio. Use --port (or server.port in
the config file) to serve streamable HTTP instead.

Examples:
  # Stdio mode
  scopemap serve

  # HTTP mode with a config file
  scopemap serve --config scopemap.yaml --port 3000`,
		RunE: runServe,
	}

	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "Path to a .json, .yaml or .toml config file")
	serveCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		if cfg.Server.Port, err = cmd.Flags().GetInt("port"); err != nil {
			return fmt.Errorf("getting port flag: %w", err)
		}
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := store.Options{Features: cfg.Features, Logger: log}

	evaluator, closeEvaluator, err := newEvaluator(ctx, cfg.Evaluator, log)
	if err != nil {
		return err
	}
	defer closeEvaluator()
	opts.Evaluator = evaluator

	if cfg.Storage.DBPath != "" {
		pending, err := sqlite.NewStore(cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		defer func() { _ = pending.Close() }()
		opts.Pending = pending
		log.Info("Pending breakpoints enabled", zap.String("db", pending.Path()))
	}

	sessionMgr := session.NewManager(ctx, opts)
	defer sessionMgr.CloseAll()

	if cfg.Server.Port == 0 {
		log.Info("Serving over stdio")
		return server.NewMCPServer(sessionMgr, log).Run(ctx, &mcp.StdioTransport{})
	}
	return serveHTTP(ctx, cfg.Server.Addr(), sessionMgr, log)
}

// newEvaluator builds the frame evaluator selected by cfg. The returned
// evaluator is nil for EvaluatorNone.
func newEvaluator(ctx context.Context, cfg config.EvaluatorConfig, log *zap.Logger) (scopes.Evaluator, func(), error) {
	switch cfg.Kind {
	case config.EvaluatorGoja:
		return eval.New(cfg.Timeout(), log), func() {}, nil
	case config.EvaluatorWasm:
		sb, err := sandbox.NewSandbox(ctx, cfg.WasmPath, log)
		if err != nil {
			return nil, nil, err
		}
		return sb, func() { sb.Close(context.Background()) }, nil
	default:
		return nil, func() {}, nil
	}
}

func serveHTTP(ctx context.Context, addr string, sessionMgr *session.Manager, log *zap.Logger) error {
	handler := mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		return server.NewMCPServer(sessionMgr, log)
	}, &mcp.StreamableHTTPOptions{})

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go janitor(ctx, sessionMgr, log)

	errCh := make(chan error, 1)
	go func() {
		log.Info("MCP server listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// janitor closes sessions that have been idle for too long
func janitor(ctx context.Context, sessionMgr *session.Manager, log *zap.Logger) {
	ticker := time.NewTicker(janitorPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessionMgr.CloseIdle(idleTimeout); n > 0 {
				log.Info("Closed idle sessions", zap.Int("count", n))
			}
		}
	}
}
