package core

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the transport layer can map it to a status
// code without inspecting message text.
type Kind int

const (
	// KindUnknown covers infrastructure failures that have no domain meaning.
	KindUnknown Kind = iota
	// KindNotFound marks an absent resource or a failed scoping check.
	KindNotFound
	// KindForbidden marks an insufficient permission level.
	KindForbidden
	// KindValidation marks a value, type, or config mismatch.
	KindValidation
	// KindConflict marks a uniqueness violation.
	KindConflict
	// KindFormula marks a user-facing formula evaluation failure.
	KindFormula
)

// Error is the typed outcome every service boundary returns. The code is an
// "operation.reason" pair, mirroring how failures are logged.
type Error struct {
	kind Kind
	code string
	err  error
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the "operation.reason" identifier.
func (e *Error) Code() string {
	return e.code
}

// Kind returns the failure classification.
func (e *Error) Kind() Kind {
	return e.kind
}

func newError(kind Kind, operation, reason string, cause error) error {
	return &Error{kind: kind, code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// NotFound wraps cause as a missing-resource failure.
func NotFound(operation, reason string, cause error) error {
	return newError(KindNotFound, operation, reason, cause)
}

// Forbidden wraps cause as a permission failure.
func Forbidden(operation, reason string, cause error) error {
	return newError(KindForbidden, operation, reason, cause)
}

// Validation wraps cause as an input-validation failure.
func Validation(operation, reason string, cause error) error {
	return newError(KindValidation, operation, reason, cause)
}

// Conflict wraps cause as a uniqueness violation.
func Conflict(operation, reason string, cause error) error {
	return newError(KindConflict, operation, reason, cause)
}

// Internal wraps cause as an unclassified infrastructure failure.
func Internal(operation, reason string, cause error) error {
	return newError(KindUnknown, operation, reason, cause)
}

// KindOf extracts the classification from err, or KindUnknown.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind()
	}
	return KindUnknown
}

// IsNotFound reports whether err is a missing-resource failure.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsForbidden reports whether err is a permission failure.
func IsForbidden(err error) bool { return KindOf(err) == KindForbidden }

// IsValidation reports whether err is an input-validation failure.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsConflict reports whether err is a uniqueness violation.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }
