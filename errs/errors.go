// Package errs defines the error taxonomy shared by the analysis stages.
package errs

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeInvalidConfig    Code = "INVALID_CONFIG"
	CodeDegenerateWindow Code = "DEGENERATE_WINDOW"
	CodeClassification   Code = "CLASSIFICATION_FAILED"
	CodeExternalService  Code = "EXTERNAL_SERVICE"
	CodeStorage          Code = "STORAGE"
)

// Sentinels for errors.Is. Matching is by code only.
var (
	ErrInvalidConfig    = &Error{Code: CodeInvalidConfig}
	ErrDegenerateWindow = &Error{Code: CodeDegenerateWindow}
	ErrClassification   = &Error{Code: CodeClassification}
	ErrExternalService  = &Error{Code: CodeExternalService}
	ErrStorage          = &Error{Code: CodeStorage}
)

// Error is a pipeline failure with enough context to locate it.
type Error struct {
	Code    Code
	Stage   string
	Message string
	// Timestamp is the offending position in the recording (seconds), when known.
	Timestamp *float64
	Details   map[string]any
	Cause     error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Stage != "" {
		msg = e.Stage + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Timestamp != nil {
		msg += fmt.Sprintf(" (at %.3fs)", *e.Timestamp)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (cause: %v)", e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetail sets a single detail and returns the receiver.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause and returns the receiver.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// InvalidConfig reports a malformed configuration field.
func InvalidConfig(field, reason string) *Error {
	e := &Error{Code: CodeInvalidConfig, Stage: "config", Message: reason}
	if field != "" {
		e.Message = field + " " + reason
		e.WithDetail("field", field)
	}
	return e
}

// DegenerateWindow reports a window that cannot be analyzed.
func DegenerateWindow(at float64, reason string) *Error {
	return &Error{Code: CodeDegenerateWindow, Stage: "extract", Message: reason, Timestamp: &at}
}

// Classification reports a classifier failure for the event starting at `at`.
func Classification(at float64, cause error) *Error {
	return &Error{Code: CodeClassification, Stage: "classify", Message: "classifier failed", Timestamp: &at, Cause: cause}
}

// ExternalService reports a failed call to a collaborator service.
func ExternalService(service string, cause error) *Error {
	return &Error{Code: CodeExternalService, Stage: service, Message: service + " request failed", Cause: cause}
}

// Storage reports a persistence failure.
func Storage(op string, cause error) *Error {
	return &Error{Code: CodeStorage, Stage: "store", Message: op, Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
