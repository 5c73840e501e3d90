package api

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperengineering/rentops/internal/documents"
	"github.com/hyperengineering/rentops/internal/service"
	"github.com/hyperengineering/rentops/internal/types"
)

const (
	// multipartOverhead covers form fields and part headers on top of the
	// file itself.
	multipartOverhead = 1 << 20
	multipartMemory   = 8 << 20
)

type uploadResponse struct {
	Document *types.Document        `json:"document"`
	Property *service.PropertyDetail `json:"property"`
}

type deleteDocumentRequest struct {
	ID string `json:"id"`
}

// UploadDocument handles POST /api/v1/documents/upload
//
// Multipart form fields: property_id, field_key or room_key, and file.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.documents.MaxBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			MapError(w, r, service.ErrTooLarge)
			return
		}
		WriteProblem(w, r, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			slog.Warn("failed to remove multipart temp files", "component", "api", "error", err)
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	doc, detail, err := h.documents.Upload(r.Context(), service.Upload{
		PropertyID: r.FormValue("property_id"),
		FieldKey:   r.FormValue("field_key"),
		RoomKey:    r.FormValue("room_key"),
		Filename:   header.Filename,
		MimeType:   header.Header.Get("Content-Type"),
		Size:       header.Size,
		Body:       file,
	})
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{Document: doc, Property: detail})
}

// DeleteDocument handles POST /api/v1/documents/delete
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	var req deleteDocumentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID == "" {
		WriteProblem(w, r, http.StatusBadRequest, "id is required")
		return
	}
	detail, err := h.documents.Delete(r.Context(), req.ID)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"property": detail})
}

// GetDocument handles GET /api/v1/documents/{id}
//
// Object storage backends answer with a redirect to a short-lived signed
// URL; the local backend streams the file.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	url, _, err := h.documents.DownloadURL(r.Context(), id)
	switch {
	case err == nil:
		http.Redirect(w, r, url, http.StatusFound)
		return
	case !errors.Is(err, documents.ErrNotConfigured):
		MapError(w, r, err)
		return
	}

	doc, rc, err := h.documents.Open(r.Context(), id)
	if err != nil {
		MapError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", doc.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": doc.Filename}))
	w.Header().Set("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("document stream interrupted",
			"component", "api",
			"document_id", id,
			"error", err,
		)
	}
}
