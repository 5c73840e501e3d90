package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/hyperengineering/rentops/internal/events"
	"github.com/hyperengineering/rentops/internal/report"
	"github.com/hyperengineering/rentops/internal/service"
	"github.com/hyperengineering/rentops/internal/types"
	"github.com/hyperengineering/rentops/internal/workflow"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// StatsReader reports aggregate counts for the health endpoint.
type StatsReader interface {
	GetStats(ctx context.Context) (*types.StoreStats, error)
}

// Deps are the collaborators of the HTTP handlers.
type Deps struct {
	Properties *service.PropertyService
	Leads      *service.LeadService
	Documents  *service.DocumentService
	Autosaver  *service.Autosaver
	Bus        events.Bus
	Reports    *report.Generator
	Stats      StatsReader
	APIKey     string
	Version    string
}

// Handler implements the API handlers
type Handler struct {
	properties *service.PropertyService
	leads      *service.LeadService
	documents  *service.DocumentService
	autosaver  *service.Autosaver
	bus        events.Bus
	reports    *report.Generator
	stats      StatsReader
	apiKey     string
	version    string

	streamsDone chan struct{}
	closeOnce   sync.Once
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		properties: d.Properties,
		leads:      d.Leads,
		documents:  d.Documents,
		autosaver:  d.Autosaver,
		bus:        d.Bus,
		reports:    d.Reports,
		stats:      d.Stats,
		apiKey:     d.APIKey,
		version:    d.Version,

		streamsDone: make(chan struct{}),
	}
}

// CloseStreams ends every open event stream. http.Server.Shutdown does not
// cancel long-lived requests, so it is registered with RegisterOnShutdown.
func (h *Handler) CloseStreams() {
	h.closeOnce.Do(func() { close(h.streamsDone) })
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.GetStats(r.Context())
	if err != nil {
		slog.Error("health check failed", "component", "api", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:        "healthy",
		Version:       h.version,
		PropertyCount: stats.PropertyCount,
		LeadCount:     stats.LeadCount,
	})
}

// Schema handles GET /api/v1/schema
func (h *Handler) Schema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"phases": workflow.Phases()})
}

// Board handles GET /api/v1/board
func (h *Handler) Board(w http.ResponseWriter, r *http.Request) {
	board, err := h.properties.Board(r.Context())
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// ExportBoard handles GET /api/v1/board/export.xlsx
func (h *Handler) ExportBoard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="rentops-board.xlsx"`)
	// The workbook is rendered in memory before the first byte is written,
	// so a failure can still become a problem response.
	var buf bytes.Buffer
	if err := h.reports.Write(r.Context(), &buf); err != nil {
		w.Header().Del("Content-Disposition")
		MapError(w, r, err)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("export write failed", "component", "api", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "component", "api", "error", err)
	}
}

// decodeJSON reads one JSON document into dst. It writes a 400 problem and
// returns false when the body is malformed.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			WriteProblem(w, r, http.StatusBadRequest, "Request body is empty")
			return false
		}
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return false
	}
	return true
}

func queryInt(r *http.Request, name string, def, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	if n > max {
		n = max
	}
	return n, nil
}
