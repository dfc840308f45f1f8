package docstore

import (
	"context"
	"errors"
	"fmt"
)

// Code is a store diagnostic code, surfaced to users in advisories.
type Code string

const (
	CodeNotFound         Code = "not-found"
	CodePermissionDenied Code = "permission-denied"
	CodeInvalidArgument  Code = "invalid-argument"
	CodeUnavailable      Code = "unavailable"
	CodeInternal         Code = "internal"
)

// Error is returned by every Store operation that fails.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode lets classifiers outside this package read the code.
func (e *Error) ErrorCode() string { return string(e.Code) }

func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// wrap attaches code to cause unless cause already carries one.
func wrap(code Code, cause error, message string) error {
	var se *Error
	if errors.As(cause, &se) {
		return cause
	}
	return &Error{Code: code, Message: message + ": " + cause.Error(), Err: cause}
}

// CodeOf extracts the store code from err. Context errors map to unavailable
// and anything unrecognised to internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CodeUnavailable
	}
	return CodeInternal
}

// MessageOf returns the human part of a store error.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}

func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}
