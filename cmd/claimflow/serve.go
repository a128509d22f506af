package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/clearway/claimflow/config"
	"github.com/clearway/claimflow/httpapi"
	"github.com/clearway/claimflow/mcpserver"
	"github.com/clearway/claimflow/pkg/logging"
	"github.com/clearway/claimflow/pkg/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the claim processing API server",
	Long: `Start the REST API, the Prometheus metrics endpoint, and the MCP
streamable HTTP endpoint. Shuts down gracefully on SIGINT/SIGTERM, waiting
for in-flight claim runs and guardrails scans to finish.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		return runServe(cmd.Context(), cfg)
	},
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := logging.WithComponent("serve")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceVersion: version,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	st, err := buildStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	handler := httpapi.New(st.engine, st.stores)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Server.MCPAddr != "" {
		mcpSrv, err := mcpserver.NewServer(st.deps)
		if err != nil {
			return err
		}
		g.Go(func() error {
			logger.Info("mcp server listening", "addr", cfg.Server.MCPAddr)
			return mcpSrv.RunHTTP(gctx, cfg.Server.MCPAddr)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	// Let in-flight claim runs and guardrails scans settle before closing
	// the stores.
	handler.Wait()
	st.engine.Drain()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if terr := shutdownTracing(shutdownCtx); terr != nil {
		logger.Warn("tracing shutdown failed", "error", terr)
	}
	return err
}
