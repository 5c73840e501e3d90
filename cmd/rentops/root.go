package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hyperengineering/rentops/internal/api"
	"github.com/hyperengineering/rentops/internal/config"
	"github.com/hyperengineering/rentops/internal/service"
	"github.com/hyperengineering/rentops/internal/worker"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:           "rentops",
	Short:         "rentops - property rental operations server",
	Long:          "Runs the rental operations API. Subcommands export the board, print the workflow schema and migrate the database.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(migrateCmd)
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("configuration loaded")

	// 3. Initialize logger
	slog.SetDefault(newLogger(os.Stdout, cfg.Log))
	slog.Info("logger initialized", "level", cfg.Log.Level)

	// 4. Initialize store, event bus, document storage and services
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}

	delay := time.Duration(cfg.Workflow.AutosaveDelay)
	if delay == 0 {
		delay = service.DefaultAutosaveDelay
	}
	autosaver := service.NewAutosaver(a.properties, delay, slog.Default())

	// 5. Initialize HTTP router
	handler := api.NewHandler(api.Deps{
		Properties: a.properties,
		Leads:      a.leads,
		Documents:  a.documents,
		Autosaver:  autosaver,
		Bus:        a.bus,
		Reports:    a.reports,
		Stats:      a.store,
		APIKey:     cfg.Auth.APIKey,
		Version:    Version,
	})
	router := api.NewRouter(handler)
	slog.Info("router initialized")

	// 6. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}
	srv.RegisterOnShutdown(handler.CloseStreams)

	// 7. Background workers
	var wg sync.WaitGroup
	reports := worker.NewReportCoordinator(a.reports, a.storage, time.Duration(cfg.Worker.ReportInterval))
	startWorker(ctx, &wg, "report-coordinator", reports.Run)

	// 8. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called gracefully.
		// Any other error indicates an actual server failure that should trigger shutdown.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel() // Trigger shutdown on server failure
		}
	}()

	// 9. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 10. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 10a. Stop HTTP server (drains in-flight requests, ends event streams)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 10b. Write drafts that were still waiting for their autosave delay
	if err := autosaver.Close(); err != nil {
		slog.Error("autosave flush error", "error", err)
	}

	// 10c. Wait for workers to complete
	wg.Wait()

	// 10d. Close event bus and store
	if err := a.Close(); err != nil {
		slog.Error("close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
