package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/rentops/internal/documents"
	"github.com/hyperengineering/rentops/internal/events"
	"github.com/hyperengineering/rentops/internal/service"
	"github.com/hyperengineering/rentops/internal/store"
	"github.com/hyperengineering/rentops/internal/validation"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

type problemType struct {
	typeURI string
	title   string
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]problemType{
	http.StatusUnauthorized: {
		typeURI: "https://rentops.dev/errors/unauthorized",
		title:   "Unauthorized",
	},
	http.StatusBadRequest: {
		typeURI: "https://rentops.dev/errors/bad-request",
		title:   "Bad Request",
	},
	http.StatusNotFound: {
		typeURI: "https://rentops.dev/errors/not-found",
		title:   "Not Found",
	},
	http.StatusInternalServerError: {
		typeURI: "https://rentops.dev/errors/internal-error",
		title:   "Internal Server Error",
	},
	http.StatusUnprocessableEntity: {
		typeURI: "https://rentops.dev/errors/validation-error",
		title:   "Validation Error",
	},
	http.StatusServiceUnavailable: {
		typeURI: "https://rentops.dev/errors/service-unavailable",
		title:   "Service Unavailable",
	},
	http.StatusConflict: {
		typeURI: "https://rentops.dev/errors/conflict",
		title:   "Conflict",
	},
	http.StatusRequestEntityTooLarge: {
		typeURI: "https://rentops.dev/errors/too-large",
		title:   "Payload Too Large",
	},
	http.StatusNotImplemented: {
		typeURI: "https://rentops.dev/errors/not-implemented",
		title:   "Not Implemented",
	},
	http.StatusTooManyRequests: {
		typeURI: "https://rentops.dev/errors/rate-limit",
		title:   "Too Many Requests",
	},
}

// phaseIncompleteType distinguishes blocked phase moves from other conflicts.
const phaseIncompleteType = "https://rentops.dev/errors/phase-incomplete"

func lookupProblemType(status int) problemType {
	pt, ok := problemTypes[status]
	if !ok {
		return problemType{typeURI: "https://rentops.dev/errors/unknown", title: http.StatusText(status)}
	}
	return pt
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	pt := lookupProblemType(status)
	writeProblemBody(w, status, Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	})
}

// ProblemWithErrors extends Problem with validation error details.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

// WriteProblemWithErrors writes a 422 Problem Details response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	pt := problemTypes[http.StatusUnprocessableEntity]
	writeProblemBody(w, http.StatusUnprocessableEntity, ProblemWithErrors{
		Problem: Problem{
			Type:     pt.typeURI,
			Title:    pt.title,
			Status:   http.StatusUnprocessableEntity,
			Detail:   detail,
			Instance: r.URL.Path,
		},
		Errors: errs,
	})
}

// ProblemWithSections is returned when a phase cannot be left yet.
type ProblemWithSections struct {
	Problem
	Phase    string   `json:"phase"`
	Sections []string `json:"incomplete_sections"`
}

func writeIncomplete(w http.ResponseWriter, r *http.Request, e *service.IncompleteError) {
	writeProblemBody(w, http.StatusConflict, ProblemWithSections{
		Problem: Problem{
			Type:     phaseIncompleteType,
			Title:    "Phase Incomplete",
			Status:   http.StatusConflict,
			Detail:   "The current phase has incomplete sections",
			Instance: r.URL.Path,
		},
		Phase:    string(e.Phase),
		Sections: e.Sections,
	})
}

func writeProblemBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// MapError converts domain errors to Problem Details responses.
func MapError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	var incomplete *service.IncompleteError
	switch {
	case errors.As(err, &verr):
		WriteProblemWithErrors(w, r, "Request validation failed", verr.Errors)
	case errors.As(err, &incomplete):
		writeIncomplete(w, r, incomplete)
	case errors.Is(err, store.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Resource not found")
	case errors.Is(err, store.ErrConflict):
		WriteProblem(w, r, http.StatusConflict, "Conflicts with the current state of the resource")
	case errors.Is(err, service.ErrInvalidTransition):
		WriteProblem(w, r, http.StatusConflict, "Phase transition not allowed")
	case errors.Is(err, service.ErrTooLarge):
		WriteProblem(w, r, http.StatusRequestEntityTooLarge, "Document exceeds the upload limit")
	case errors.Is(err, documents.ErrNotConfigured):
		WriteProblem(w, r, http.StatusNotImplemented, "Direct download links are not available")
	case errors.Is(err, events.ErrClosed), errors.Is(err, service.ErrAutosaverClosed):
		WriteProblem(w, r, http.StatusServiceUnavailable, "Server is shutting down")
	default:
		// Never expose internal error details to client
		slog.Error("request failed",
			"component", "api",
			"path", r.URL.Path,
			"request_id", GetRequestID(r.Context()),
			"error", err,
		)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
