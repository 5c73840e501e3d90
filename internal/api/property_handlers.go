package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hyperengineering/rentops/internal/types"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
	maxListLimit         = 1000
)

// phaseRequest is the body of the phase move endpoints.
type phaseRequest struct {
	Phase string `json:"phase"`
}

type checklistRequest struct {
	Checked *bool `json:"checked"`
}

type draftResponse struct {
	PropertyID string `json:"property_id"`
	Pending    int    `json:"pending"`
}

// CreateProperty handles POST /api/v1/properties
func (h *Handler) CreateProperty(w http.ResponseWriter, r *http.Request) {
	var req types.NewProperty
	if !decodeJSON(w, r, &req) {
		return
	}
	detail, err := h.properties.Create(r.Context(), req)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

// ListProperties handles GET /api/v1/properties
func (h *Handler) ListProperties(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0, maxListLimit)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	props, err := h.properties.List(r.Context(), types.PropertyFilter{
		Phase: types.Phase(q.Get("phase")),
		Query: q.Get("q"),
		Limit: limit,
	})
	if err != nil {
		MapError(w, r, err)
		return
	}
	if props == nil {
		props = []types.Property{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"properties": props})
}

// GetProperty handles GET /api/v1/properties/{id}
func (h *Handler) GetProperty(w http.ResponseWriter, r *http.Request) {
	detail, err := h.properties.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// UpdateProperty handles PATCH /api/v1/properties/{id}
func (h *Handler) UpdateProperty(w http.ResponseWriter, r *http.Request) {
	var patch types.PropertyPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	p, err := h.properties.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteProperty handles DELETE /api/v1/properties/{id}
func (h *Handler) DeleteProperty(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// Settle any queued draft so no timer fires after the delete.
	if err := h.autosaver.Flush(r.Context(), id); err != nil {
		logFlushFailure(r, id, err)
	}
	if err := h.properties.Delete(r.Context(), id); err != nil {
		MapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PatchFields handles PATCH /api/v1/properties/{id}/fields
//
// The body is a flat object of field keys; a JSON null removes the key.
func (h *Handler) PatchFields(w http.ResponseWriter, r *http.Request) {
	var patch types.Fields
	if !decodeJSON(w, r, &patch) {
		return
	}
	id := chi.URLParam(r, "id")
	// A direct write supersedes older queued keystrokes.
	if err := h.autosaver.Flush(r.Context(), id); err != nil {
		logFlushFailure(r, id, err)
	}
	detail, err := h.properties.PatchFields(r.Context(), id, patch)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// SaveDraft handles PATCH /api/v1/properties/{id}/draft
//
// The patch is validated now and written after the autosave delay.
func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	var patch types.Fields
	if !decodeJSON(w, r, &patch) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.autosaver.Queue(r.Context(), id, patch); err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, draftResponse{PropertyID: id, Pending: h.autosaver.Pending()})
}

// Progress handles GET /api/v1/properties/{id}/progress
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.properties.Progress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"phases": progress})
}

// Advance handles POST /api/v1/properties/{id}/advance
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	detail, err := h.properties.Advance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// MovePhase handles PUT /api/v1/properties/{id}/phase
func (h *Handler) MovePhase(w http.ResponseWriter, r *http.Request) {
	var req phaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Phase == "" {
		WriteProblem(w, r, http.StatusBadRequest, "phase is required")
		return
	}
	detail, err := h.properties.MovePhase(r.Context(), chi.URLParam(r, "id"), types.Phase(req.Phase))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// SetChecklistItem handles PUT /api/v1/properties/{id}/checklists/{phase}/{section}/{item}
func (h *Handler) SetChecklistItem(w http.ResponseWriter, r *http.Request) {
	var req checklistRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Checked == nil {
		WriteProblem(w, r, http.StatusBadRequest, "checked is required")
		return
	}
	detail, err := h.properties.SetChecklistItem(r.Context(),
		chi.URLParam(r, "id"),
		types.Phase(chi.URLParam(r, "phase")),
		chi.URLParam(r, "section"),
		chi.URLParam(r, "item"),
		*req.Checked,
	)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// GetInspection handles GET /api/v1/properties/{id}/inspection
func (h *Handler) GetInspection(w http.ResponseWriter, r *http.Request) {
	report, err := h.properties.GetInspection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// SaveInspection handles PUT /api/v1/properties/{id}/inspection
func (h *Handler) SaveInspection(w http.ResponseWriter, r *http.Request) {
	var report types.InspectionReport
	if !decodeJSON(w, r, &report) {
		return
	}
	detail, err := h.properties.SaveInspection(r.Context(), chi.URLParam(r, "id"), &report)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// UpdateRoom handles PATCH /api/v1/properties/{id}/inspection/rooms/{room}
func (h *Handler) UpdateRoom(w http.ResponseWriter, r *http.Request) {
	var patch types.RoomPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	detail, err := h.properties.UpdateRoom(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "room"), patch)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// Activity handles GET /api/v1/properties/{id}/activity
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultActivityLimit, maxActivityLimit)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := h.properties.Activity(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		MapError(w, r, err)
		return
	}
	if entries == nil {
		entries = []types.Activity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": entries})
}

// ListDocuments handles GET /api/v1/properties/{id}/documents
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.documents.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	if docs == nil {
		docs = []types.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func logFlushFailure(r *http.Request, propertyID string, err error) {
	slog.Warn("draft flush failed",
		"component", "api",
		"action", "flush_draft",
		"property_id", propertyID,
		"request_id", GetRequestID(r.Context()),
		"error", err,
	)
}
