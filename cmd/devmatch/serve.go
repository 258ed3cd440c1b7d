package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/devmatch-mcp/internal/indexer"
	"github.com/dshills/devmatch-mcp/internal/mcp"
	"github.com/dshills/devmatch-mcp/internal/metrics"
	"github.com/dshills/devmatch-mcp/internal/storage"
)

var metricsAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	RunE: func(_ *cobra.Command, _ []string) error {
		// stdout is reserved for the MCP protocol; the logger writes to stderr
		zlog.Info("devmatch MCP server starting",
			zap.String("version", version),
			zap.String("build_mode", storage.BuildMode),
			zap.String("driver", storage.DriverName),
			zap.Bool("vector_extension", storage.VectorExtensionAvailable))

		// Set up graceful shutdown
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		rec := metrics.New(metrics.DefaultConfig())
		eng, err := openEngine(ctx, rec)
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		server, err := mcp.NewServer(eng, indexer.New(eng, zlog), zlog)
		if err != nil {
			return err
		}

		if metricsAddr != "" {
			srv := &http.Server{
				Addr:              metricsAddr,
				Handler:           rec.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				zlog.Info("serving metrics", zap.String("addr", metricsAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					zlog.Error("metrics server failed", zap.Error(err))
				}
			}()
			defer func() {
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		// Handle shutdown signals
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		// Start server in a goroutine
		errChan := make(chan error, 1)
		go func() {
			zlog.Info("MCP server ready, listening on stdio")
			errChan <- server.Serve(ctx)
		}()

		// Wait for shutdown signal or error
		select {
		case sig := <-sigChan:
			zlog.Info("shutting down gracefully", zap.String("signal", sig.String()))
			cancel()
		case err := <-errChan:
			if err != nil {
				return err
			}
		}

		zlog.Info("server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address for the Prometheus /metrics endpoint (disabled when empty)")
}
