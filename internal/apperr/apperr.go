// Package apperr defines the error taxonomy shared by services and
// handlers. Every error that reaches a client carries a Kind (which picks
// the HTTP status), a stable machine-readable Code, a human message and
// optional structured details.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUpstream Kind = iota
	KindInvalidInput
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "InvalidInput"
	case KindUnauthenticated:
		return "Unauthenticated"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindRateLimited:
		return "RateLimited"
	default:
		return "Upstream"
	}
}

// HTTPStatus maps a kind to its response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Machine-readable codes.
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	CodeUpstream         = "UPSTREAM_ERROR"
	CodeNoFile           = "NO_FILE"
	CodeFileTooLarge     = "FILE_TOO_LARGE"
	CodeInvalidType      = "INVALID_FILE_TYPE"
	CodeInvalidExtension = "INVALID_FILE_EXTENSION"
	CodeContentMismatch  = "INVALID_FILE_CONTENT"
	CodeTooManyFiles     = "TOO_MANY_FILES"
	CodeInvalidField     = "INVALID_FIELD_NAME"
	CodeMissingRequired  = "MISSING_REQUIRED"
	CodeNothingToUpdate  = "NOTHING_TO_UPDATE"
	CodeVersionMismatch  = "VERSION_MISMATCH"
)

// Details enumerates offending values for multi-field failures.
type Details map[string]any

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details Details
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails returns e with details attached.
func (e *Error) WithDetails(d Details) *Error {
	e.Details = d
	return e
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func InvalidInput(message string) *Error {
	return New(KindInvalidInput, CodeInvalidInput, message)
}

func Unauthenticated(message string) *Error {
	return New(KindUnauthenticated, CodeUnauthenticated, message)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, CodeForbidden, message)
}

func NotFound(message string) *Error {
	return New(KindNotFound, CodeNotFound, message)
}

func Conflict(message string) *Error {
	return New(KindConflict, CodeConflict, message)
}

// Upstream wraps a store or gateway failure that is not a domain rejection.
func Upstream(message string, err error) *Error {
	return &Error{Kind: KindUpstream, Code: CodeUpstream, Message: message, Err: err}
}

// From extracts an *Error from err. Anything else is reported as Upstream.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Upstream("internal error", err)
}

// KindOf returns the kind of err, KindUpstream when unclassified.
func KindOf(err error) Kind {
	return From(err).Kind
}
