package domain

import (
	"fmt"
	"strings"
)

// ValidationError means a required field is missing or invalid. It blocks step
// advancement only; the session keeps everything entered so far.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("validation failed: %s is required", e.Field)
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// Missing builds a ValidationError for an absent required field.
func Missing(field string) *ValidationError {
	return &ValidationError{Field: field}
}

// Invalid builds a ValidationError for a present but unacceptable value.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// SafetyGateError blocks advancement until healthcare approval has been acknowledged.
type SafetyGateError struct {
	Assessment SafetyAssessment
}

func (e *SafetyGateError) Error() string {
	codes := make([]string, 0, len(e.Assessment.Warnings))
	for _, w := range e.Assessment.Warnings {
		codes = append(codes, w.Code)
	}
	if len(codes) == 0 {
		return "healthcare provider approval must be acknowledged"
	}
	return fmt.Sprintf("healthcare provider approval must be acknowledged (%s)", strings.Join(codes, ", "))
}

// GenerationError is a failed call to the AI generation collaborator.
type GenerationError struct {
	Err               error
	FallbackAvailable bool
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return "protocol generation failed"
	}
	return "protocol generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

// PersistenceError means the storage collaborator rejected a write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("persistence failed during %s", e.Op)
	}
	return fmt.Sprintf("persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NotFoundError is returned for unknown template, protocol, version or session ids.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}
