package oxidb

import (
	"errors"
	"fmt"
	"strings"
)

// Error is returned when the OxiDB server returns an error response.
type Error struct {
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("oxidb: %s", e.Msg)
}

// TransactionConflictError is returned on OCC version conflict during commit.
type TransactionConflictError struct {
	Msg string
}

func (e *TransactionConflictError) Error() string {
	return fmt.Sprintf("oxidb: transaction conflict: %s", e.Msg)
}

// IsNotFound reports whether err is a server error about a missing
// object, bucket or document.
func IsNotFound(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	msg := strings.ToLower(e.Msg)
	return strings.Contains(msg, "not found") || strings.Contains(msg, "no such")
}

// IsDuplicate reports whether err is a unique index violation.
func IsDuplicate(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	msg := strings.ToLower(e.Msg)
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}

// IsAlreadyExists reports whether err rejects creating something that is
// already there, such as a bucket.
func IsAlreadyExists(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return strings.Contains(strings.ToLower(e.Msg), "already exists")
}
