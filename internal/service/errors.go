package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hyperengineering/rentops/internal/types"
	"github.com/hyperengineering/rentops/internal/validation"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrPhaseIncomplete is matched by every *IncompleteError.
	ErrPhaseIncomplete = errors.New("current phase is incomplete")
	// ErrInvalidTransition is returned for phase moves the workflow forbids.
	ErrInvalidTransition = errors.New("invalid phase transition")
)

// ValidationError carries per-field validation failures.
type ValidationError struct {
	Errors []validation.ValidationError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		if fe.Field == "" {
			parts = append(parts, fe.Message)
			continue
		}
		parts = append(parts, fe.Field+" "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, message string) *ValidationError {
	return &ValidationError{Errors: []validation.ValidationError{{Field: field, Message: message}}}
}

func invalidAll(errs []validation.ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: errs}
}

// IncompleteError reports which required sections block leaving a phase.
type IncompleteError struct {
	Phase    types.Phase
	Sections []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("phase %s is incomplete: %s", e.Phase, strings.Join(e.Sections, ", "))
}

func (e *IncompleteError) Unwrap() error { return ErrPhaseIncomplete }
