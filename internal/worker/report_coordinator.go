package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hyperengineering/rentops/internal/documents"
	"github.com/hyperengineering/rentops/internal/report"
)

// ReportPrefix is the storage key prefix of generated board reports.
const ReportPrefix = "reports/"

// ReportWriter renders a report.
type ReportWriter interface {
	Write(ctx context.Context, w io.Writer) error
}

// ReportCoordinator periodically writes the board workbook into document
// storage.
type ReportCoordinator struct {
	reports  ReportWriter
	storage  documents.Storage
	interval time.Duration
	now      func() time.Time
}

// NewReportCoordinator creates a coordinator. An interval of zero disables it.
func NewReportCoordinator(reports ReportWriter, storage documents.Storage, interval time.Duration) *ReportCoordinator {
	return &ReportCoordinator{
		reports:  reports,
		storage:  storage,
		interval: interval,
		now:      time.Now,
	}
}

// ReportKey returns the storage key of a report generated at t.
func ReportKey(t time.Time) string {
	return ReportPrefix + "board-" + t.UTC().Format("20060102T150405Z") + ".xlsx"
}

// Run starts the coordinator loop. Blocks until ctx is cancelled.
//
// The first report is written after one interval, not at startup.
func (c *ReportCoordinator) Run(ctx context.Context) {
	if c.interval <= 0 {
		slog.Info("report coordinator disabled",
			"component", "worker",
			"worker", "report-coordinator",
		)
		return
	}

	slog.Info("worker started",
		"component", "worker",
		"worker", "report-coordinator",
		"action", "worker_started",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "report-coordinator",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.generate(ctx)
		}
	}
}

// Generate writes one report and returns its storage key.
func (c *ReportCoordinator) Generate(ctx context.Context) (string, error) {
	var buf bytes.Buffer
	if err := c.reports.Write(ctx, &buf); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}

	key := ReportKey(c.now())
	if err := c.storage.Save(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), report.ContentType); err != nil {
		return "", fmt.Errorf("store report: %w", err)
	}
	return key, nil
}

func (c *ReportCoordinator) generate(ctx context.Context) {
	start := time.Now()
	key, err := c.Generate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return // Graceful shutdown, don't log as error
		}
		slog.Warn("report generation failed",
			"component", "worker",
			"worker", "report-coordinator",
			"action", "report_failed",
			"error", err,
		)
		return
	}

	slog.Info("report generated",
		"component", "worker",
		"worker", "report-coordinator",
		"action", "report_generated",
		"key", key,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
