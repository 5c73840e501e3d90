package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	// Rate limiter for destructive operations: 100 deletes max, refill 1 per 100ms
	// This allows burst of 100 deletes, then sustained rate of 10/second
	deleteRateLimiter := NewDeleteRateLimiter(100, 100*time.Millisecond)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/health", h.Health)

		// Protected routes (auth required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))
			r.Use(ActorMiddleware)

			r.Get("/schema", h.Schema)
			r.Get("/board", h.Board)
			r.Get("/board/export.xlsx", h.ExportBoard)
			r.Get("/events", h.Events)

			r.Route("/properties", func(r chi.Router) {
				r.Post("/", h.CreateProperty)
				r.Get("/", h.ListProperties)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.GetProperty)
					r.Patch("/", h.UpdateProperty)
					r.With(deleteRateLimiter.Middleware).Delete("/", h.DeleteProperty)
					r.Patch("/fields", h.PatchFields)
					r.Patch("/draft", h.SaveDraft)
					r.Get("/progress", h.Progress)
					r.Post("/advance", h.Advance)
					r.Put("/phase", h.MovePhase)
					r.Put("/checklists/{phase}/{section}/{item}", h.SetChecklistItem)
					r.Get("/inspection", h.GetInspection)
					r.Put("/inspection", h.SaveInspection)
					r.Patch("/inspection/rooms/{room}", h.UpdateRoom)
					r.Get("/activity", h.Activity)
					r.Get("/documents", h.ListDocuments)
				})
			})

			r.Route("/leads", func(r chi.Router) {
				r.Post("/", h.CreateLead)
				r.Get("/", h.ListLeads)
				r.Get("/{id}", h.GetLead)
				r.Patch("/{id}", h.UpdateLead)
				r.Put("/{id}/phase", h.MoveLeadPhase)
				r.With(deleteRateLimiter.Middleware).Delete("/{id}", h.DeleteLead)
			})

			r.Post("/documents/upload", h.UploadDocument)
			r.With(deleteRateLimiter.Middleware).Post("/documents/delete", h.DeleteDocument)
			r.Get("/documents/{id}", h.GetDocument)
		})
	})

	return r
}
