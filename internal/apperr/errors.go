// Package apperr defines the gateway's error taxonomy and its HTTP mapping.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and status mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindQuotaExceeded
	KindNotFound
	KindConflict
	KindConnection
	KindStore
	KindRateLimited
)

var kindNames = map[Kind]string{
	KindInternal:        "INTERNAL_ERROR",
	KindValidation:      "VALIDATION_ERROR",
	KindUnauthenticated: "UNAUTHENTICATED",
	KindForbidden:       "FORBIDDEN",
	KindQuotaExceeded:   "QUOTA_EXCEEDED",
	KindNotFound:        "NOT_FOUND",
	KindConflict:        "CONFLICT",
	KindConnection:      "CONNECTION_ERROR",
	KindStore:           "STORE_ERROR",
	KindRateLimited:     "RATE_LIMITED",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// FieldError is one payload constraint violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a classified error. Message is safe to show to callers; Cause is
// attached for diagnostics only.
type Error struct {
	Kind    Kind
	Message string
	Details []FieldError
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind, so errors.Is(err, &Error{Kind: KindNotFound})
// works without comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func Validation(message string, details []FieldError) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

func Unauthenticated(message string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func QuotaExceeded(message string) *Error {
	return &Error{Kind: KindQuotaExceeded, Message: message}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func RateLimited(message string) *Error {
	return &Error{Kind: KindRateLimited, Message: message}
}

// Connection reports that the store described by the caller's URI could not be reached.
func Connection(cause error) *Error {
	return &Error{Kind: KindConnection, Message: "Failed to connect to the database.", Cause: cause}
}

// Store reports that the external store rejected or failed an operation.
func Store(message string, cause error) *Error {
	return &Error{Kind: KindStore, Message: message, Cause: cause}
}

func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Cause: cause}
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to the response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden, KindQuotaExceeded:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
