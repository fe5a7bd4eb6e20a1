// Package dberr defines the error kinds surfaced by the flindoc engine.
//
// Callers classify errors with errors.Is against the sentinels:
//
//	ErrValidation       malformed filter, update, projection, sort or pipeline
//	ErrOperation        a per-document failure (for example $inc on a string)
//	ErrStoreUnavailable the persistence collaborator failed; never retried here
//	ErrDuplicateKey     an insert reused an existing identifier
package dberr

import (
	"errors"
	"fmt"

	"github.com/skshohagmiah/flindoc/pkg/document"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrOperation         = errors.New("operation failed")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrDuplicateKey      = errors.New("duplicate key")
	ErrInvalidCollection = errors.New("invalid collection name")
)

// ValidationError describes a malformed expression.
type ValidationError struct {
	Op     string // what was being parsed: "filter", "update", "$group", ...
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Op, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(op, format string, args ...any) error {
	return &ValidationError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// OperationError is a failure confined to a single document.
type OperationError struct {
	ID  document.Value
	Op  string
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed for document %s: %v", e.Op, e.ID, e.Err)
}

func (e *OperationError) Unwrap() []error { return []error{ErrOperation, e.Err} }

// Unavailable marks a store failure.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// Code maps an error to the short code used on the wire.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrDuplicateKey):
		return "duplicate_key"
	case errors.Is(err, ErrOperation):
		return "operation"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrInvalidCollection):
		return "invalid_collection"
	}
	return "internal"
}

// FromCode returns the sentinel for a wire code, nil when the code is unknown.
func FromCode(code string) error {
	switch code {
	case "validation":
		return ErrValidation
	case "duplicate_key":
		return ErrDuplicateKey
	case "operation":
		return ErrOperation
	case "store_unavailable":
		return ErrStoreUnavailable
	case "invalid_collection":
		return ErrInvalidCollection
	}
	return nil
}
