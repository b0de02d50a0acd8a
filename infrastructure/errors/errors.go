// Package errors provides the core's error taxonomy: five named kinds
// (spec §7), not five hundred codes. Adapted from the teacher's
// ServiceError, trimmed from ~20 domain-specific codes (auth, crypto,
// TEE) down to the kinds this domain's invariants actually distinguish.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the five error kinds named in spec §7.
type Kind string

const (
	// BadRequest: caller-supplied data violates a contract.
	BadRequest Kind = "BadRequest"
	// NotFound: referenced entity absent.
	NotFound Kind = "NotFound"
	// Forbidden: permission check failed.
	Forbidden Kind = "Forbidden"
	// Conflict: optimistic-concurrency mismatch, or a duplicate.
	Conflict Kind = "Conflict"
	// Internal: invariant violation or infrastructure failure.
	Internal Kind = "Internal"
)

// ServiceError is the typed error value returned by fallible core
// operations (spec §9 "replacing exception control flow": a two-variant
// outcome, success value or typed error kind).
type ServiceError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the kind to the status code a caller sitting behind a
// REST boundary would use; the core itself never serves HTTP (routing is
// out of scope per spec §1), but callers need a stable mapping.
func (e *ServiceError) HTTPStatus() int {
	switch e.Kind {
	case BadRequest:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, message string) *ServiceError {
	return &ServiceError{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *ServiceError {
	return &ServiceError{Kind: kind, Message: message, Err: err}
}

// NewBadRequest builds a BadRequest error, e.g. an invalid status
// transition or a malformed duration literal.
func NewBadRequest(format string, args ...any) *ServiceError {
	return New(BadRequest, fmt.Sprintf(format, args...))
}

// NewNotFound builds a NotFound error for a missing resource.
func NewNotFound(resource, id string) *ServiceError {
	return New(NotFound, fmt.Sprintf("%s not found: %s", resource, id))
}

// NewForbidden builds a Forbidden error for a failed permission check.
func NewForbidden(message string) *ServiceError {
	return New(Forbidden, message)
}

// NewConflict builds a Conflict error, e.g. a version mismatch or a
// duplicate SLA application.
func NewConflict(message string) *ServiceError {
	return New(Conflict, message)
}

// NewInternal wraps an infrastructure failure or invariant violation.
func NewInternal(message string, err error) *ServiceError {
	return Wrap(Internal, message, err)
}

// Is reports whether err is a *ServiceError of the given kind.
func Is(err error, kind Kind) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err isn't a *ServiceError.
func KindOf(err error) Kind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
