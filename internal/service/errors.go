package service

import (
	"errors"
	"fmt"
	"strings"

	"timeblocker/internal/repository"
)

// Error kinds. Callers classify with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = repository.ErrNotFound
	ErrUnauthorized = errors.New("unauthorized")
	ErrOverlap      = repository.ErrOverlap
)

// FieldError is one rejected input field.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

// ValidationError collects field errors. It matches ErrValidation.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Msg)
	}
	return e.Message + ": " + strings.Join(parts, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func invalidField(field, msg string) error {
	return &ValidationError{Message: ErrValidation.Error(), Fields: []FieldError{{Field: field, Msg: msg}}}
}

// notFound replaces the repository error text with a caller-facing message.
func notFound(err error, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &kindError{kind: ErrNotFound, msg: msg}
	}
	return err
}

// kindError carries a user-facing message for one of the error kinds.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func unauthorized(msg string) error {
	return &kindError{kind: ErrUnauthorized, msg: msg}
}
