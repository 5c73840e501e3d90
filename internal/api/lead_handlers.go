package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hyperengineering/rentops/internal/types"
)

// CreateLead handles POST /api/v1/leads
func (h *Handler) CreateLead(w http.ResponseWriter, r *http.Request) {
	var req types.NewLead
	if !decodeJSON(w, r, &req) {
		return
	}
	lead, err := h.leads.Create(r.Context(), req)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lead)
}

// ListLeads handles GET /api/v1/leads
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	leads, err := h.leads.List(r.Context(), types.LeadFilter{
		Phase:      types.LeadPhase(q.Get("phase")),
		PropertyID: q.Get("property_id"),
	})
	if err != nil {
		MapError(w, r, err)
		return
	}
	if leads == nil {
		leads = []types.Lead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads})
}

// GetLead handles GET /api/v1/leads/{id}
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.leads.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

// UpdateLead handles PATCH /api/v1/leads/{id}
func (h *Handler) UpdateLead(w http.ResponseWriter, r *http.Request) {
	var patch types.LeadPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	lead, err := h.leads.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

// MoveLeadPhase handles PUT /api/v1/leads/{id}/phase
func (h *Handler) MoveLeadPhase(w http.ResponseWriter, r *http.Request) {
	var req phaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Phase == "" {
		WriteProblem(w, r, http.StatusBadRequest, "phase is required")
		return
	}
	lead, err := h.leads.MovePhase(r.Context(), chi.URLParam(r, "id"), types.LeadPhase(req.Phase))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

// DeleteLead handles DELETE /api/v1/leads/{id}
func (h *Handler) DeleteLead(w http.ResponseWriter, r *http.Request) {
	if err := h.leads.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		MapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
