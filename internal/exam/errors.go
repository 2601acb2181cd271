package exam

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrValidationFailed   = errors.New("validation failed")
	ErrPersistence        = errors.New("persistence failure")
	ErrAccessDenied       = errors.New("access denied")
	ErrResultsUnavailable = errors.New("results not yet available")

	// errActiveAttempt is returned by CreateAttempt when (exam, user) already
	// has an in_progress attempt.
	errActiveAttempt = errors.New("attempt already in progress")
)

// FieldError points a validation failure at one input field, usually a question id.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

func invalid(fields ...FieldError) error { return &ValidationError{Fields: fields} }

// DeniedError is the Access Gate's refusal.
type DeniedError struct {
	Reason DenyReason
}

func (e *DeniedError) Error() string { return "access denied: " + string(e.Reason) }

func (e *DeniedError) Unwrap() error { return ErrAccessDenied }

func notFound(what, id string) error {
	return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
}

func unauthorized(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrUnauthorized)
}

func badTransition(a Attempt, to AttemptStatus) error {
	return fmt.Errorf("attempt %q %s -> %s: %w", a.ID, a.Status, to, ErrInvalidTransition)
}

// storeErr tags a storage failure unless it already carries a domain kind.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, errActiveAttempt) || errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
