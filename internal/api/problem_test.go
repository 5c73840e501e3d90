package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperengineering/rentops/internal/documents"
	"github.com/hyperengineering/rentops/internal/events"
	"github.com/hyperengineering/rentops/internal/service"
	"github.com/hyperengineering/rentops/internal/store"
	"github.com/hyperengineering/rentops/internal/types"
	"github.com/hyperengineering/rentops/internal/validation"
)

func TestWriteProblem_ContentType(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/properties", nil)

	WriteProblem(w, r, http.StatusUnauthorized, "Missing or invalid API key")

	contentType := w.Header().Get("Content-Type")
	if contentType != "application/problem+json" {
		t.Errorf("Content-Type = %v, want application/problem+json", contentType)
	}
}

func TestWriteProblem_BodyFormat(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/properties", nil)

	WriteProblem(w, r, http.StatusUnauthorized, "Missing or invalid API key")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to unmarshal response body: %v", err)
	}
	if p.Type != "https://rentops.dev/errors/unauthorized" {
		t.Errorf("type = %v, want https://rentops.dev/errors/unauthorized", p.Type)
	}
	if p.Title != "Unauthorized" {
		t.Errorf("title = %v, want Unauthorized", p.Title)
	}
	if p.Status != 401 {
		t.Errorf("status = %d, want 401", p.Status)
	}
	if p.Detail != "Missing or invalid API key" {
		t.Errorf("detail = %v, want 'Missing or invalid API key'", p.Detail)
	}
	if p.Instance != "/api/v1/properties" {
		t.Errorf("instance = %v, want /api/v1/properties", p.Instance)
	}
}

func TestWriteProblem_UnknownStatus(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/board", nil)

	WriteProblem(w, r, http.StatusTeapot, "short and stout")

	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to unmarshal response body: %v", err)
	}
	if p.Type != "https://rentops.dev/errors/unknown" {
		t.Errorf("type = %v, want unknown type", p.Type)
	}
	if p.Title != http.StatusText(http.StatusTeapot) {
		t.Errorf("title = %v", p.Title)
	}
}

func TestWriteProblemWithErrors_422(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPatch, "/api/v1/properties/p1/fields", nil)

	errs := []validation.ValidationError{
		{Field: "area_m2", Message: "must be greater than 0"},
		{Field: "owner_email", Message: "must be a valid email"},
	}
	WriteProblemWithErrors(w, r, "Request validation failed", errs)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}

	var p ProblemWithErrors
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if p.Type != "https://rentops.dev/errors/validation-error" {
		t.Errorf("type = %v", p.Type)
	}
	if len(p.Errors) != 2 {
		t.Fatalf("len(errors) = %d, want 2", len(p.Errors))
	}
	if p.Errors[0].Field != "area_m2" {
		t.Errorf("errors[0].field = %v, want area_m2", p.Errors[0].Field)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{
			name:       "not found",
			err:        fmt.Errorf("failed to get property: %w", store.ErrNotFound),
			wantStatus: http.StatusNotFound,
			wantType:   "https://rentops.dev/errors/not-found",
		},
		{
			name:       "conflict",
			err:        fmt.Errorf("accept lead: %w", store.ErrConflict),
			wantStatus: http.StatusConflict,
			wantType:   "https://rentops.dev/errors/conflict",
		},
		{
			name:       "invalid transition",
			err:        service.ErrInvalidTransition,
			wantStatus: http.StatusConflict,
			wantType:   "https://rentops.dev/errors/conflict",
		},
		{
			name:       "phase incomplete",
			err:        &service.IncompleteError{Phase: types.PhaseProphero, Sections: []string{"owner_data"}},
			wantStatus: http.StatusConflict,
			wantType:   phaseIncompleteType,
		},
		{
			name:       "too large",
			err:        fmt.Errorf("upload: %w", service.ErrTooLarge),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantType:   "https://rentops.dev/errors/too-large",
		},
		{
			name:       "presign unsupported",
			err:        documents.ErrNotConfigured,
			wantStatus: http.StatusNotImplemented,
			wantType:   "https://rentops.dev/errors/not-implemented",
		},
		{
			name:       "bus closed",
			err:        events.ErrClosed,
			wantStatus: http.StatusServiceUnavailable,
			wantType:   "https://rentops.dev/errors/service-unavailable",
		},
		{
			name:       "autosaver closed",
			err:        service.ErrAutosaverClosed,
			wantStatus: http.StatusServiceUnavailable,
			wantType:   "https://rentops.dev/errors/service-unavailable",
		},
		{
			name:       "unexpected",
			err:        errors.New("disk on fire"),
			wantStatus: http.StatusInternalServerError,
			wantType:   "https://rentops.dev/errors/internal-error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/v1/properties/p1", nil)

			MapError(w, r, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var p Problem
			if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
				t.Fatalf("failed to unmarshal: %v", err)
			}
			if p.Type != tt.wantType {
				t.Errorf("type = %v, want %v", p.Type, tt.wantType)
			}
		})
	}
}

func TestMapError_ValidationErrorCarriesFields(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/leads", nil)

	err := fmt.Errorf("create lead: %w", &service.ValidationError{Errors: []validation.ValidationError{
		{Field: "full_name", Message: "is required"},
	}})
	MapError(w, r, err)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	var p ProblemWithErrors
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if len(p.Errors) != 1 || p.Errors[0].Field != "full_name" {
		t.Errorf("errors = %+v, want full_name", p.Errors)
	}
}

func TestMapError_IncompleteListsSections(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/properties/p1/advance", nil)

	MapError(w, r, &service.IncompleteError{
		Phase:    types.PhaseProphero,
		Sections: []string{"owner_data", "legal_documents"},
	})

	var p ProblemWithSections
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if p.Phase != "prophero" {
		t.Errorf("phase = %q, want prophero", p.Phase)
	}
	if len(p.Sections) != 2 || p.Sections[1] != "legal_documents" {
		t.Errorf("incomplete_sections = %v", p.Sections)
	}
}

func TestMapError_InternalDetailsNotLeaked(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/board", nil)

	MapError(w, r, errors.New("pq: password authentication failed for user rentops"))

	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if p.Detail != "Internal Server Error" {
		t.Errorf("detail = %q, internal error leaked", p.Detail)
	}
}
