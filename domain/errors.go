package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrExpired          = errors.New("expired")
	ErrAlreadyConsumed  = errors.New("already consumed")
	ErrTransientWrite   = errors.New("transient write failure")
	ErrNotification     = errors.New("notification failed")
	ErrCurrencyMismatch = errors.New("currency mismatch")
)

type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError collects every bad field of a request so the shopper can
// fix them in one go. It unwraps to ErrValidation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// OrNil returns nil when no field was rejected.
func (e *ValidationError) OrNil() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Reason)
	}
	return fmt.Sprintf("%v: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func NewValidationError(field, reason string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, reason)
	return v
}
