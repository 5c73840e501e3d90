package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/hyperengineering/rentops/internal/config"
	"github.com/hyperengineering/rentops/internal/documents"
	"github.com/hyperengineering/rentops/internal/events"
	"github.com/hyperengineering/rentops/internal/report"
	"github.com/hyperengineering/rentops/internal/service"
	"github.com/hyperengineering/rentops/internal/store"
)

// app holds the collaborators shared by the serve and export commands.
type app struct {
	store      *store.SQLStore
	bus        events.Bus
	storage    documents.Storage
	properties *service.PropertyService
	leads      *service.LeadService
	documents  *service.DocumentService
	reports    *report.Generator
}

// openApp opens the store, event bus and document storage and wires the
// services over them. Close releases everything in reverse order.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	slog.Info("store initialized", "driver", cfg.Database.Driver)

	bus, err := newBus(ctx, cfg.Events)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("event bus initialized", "backend", cfg.Events.Backend)

	storage, err := documents.NewStorage(cfg.Documents)
	if err != nil {
		bus.Close()
		db.Close()
		return nil, fmt.Errorf("init document storage: %w", err)
	}
	slog.Info("document storage initialized", "backend", cfg.Documents.Backend)

	logger := slog.Default()
	props := service.NewPropertyService(db, bus, storage, logger, service.PropertyOptions{
		AutoAdvance: cfg.Workflow.AutoAdvance,
	})
	leads := service.NewLeadService(db, props, bus, logger)

	return &app{
		store:      db,
		bus:        bus,
		storage:    storage,
		properties: props,
		leads:      leads,
		documents:  service.NewDocumentService(db, props, storage, logger, cfg.Documents.MaxUploadBytes),
		reports:    report.NewGenerator(props, leads),
	}, nil
}

// Close releases the bus and the store.
func (a *app) Close() error {
	var errs []error
	if err := a.bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close event bus: %w", err))
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

func newBus(ctx context.Context, cfg config.EventsConfig) (events.Bus, error) {
	switch cfg.Backend {
	case "redis":
		bus, err := events.NewRedisBus(ctx, events.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		})
		if err != nil {
			return nil, fmt.Errorf("init redis event bus: %w", err)
		}
		return bus, nil
	default:
		return events.NewMemoryBus(), nil
	}
}

// newLogger builds the process logger from the log config.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadConfig loads configuration and installs the configured logger.
// Command output goes to stdout, so logs go to stderr.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(newLogger(os.Stderr, cfg.Log))
	return cfg, nil
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}
