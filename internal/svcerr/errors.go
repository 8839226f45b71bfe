// Package svcerr provides the structured error kinds the streamer core
// surfaces, modeled on the teacher's infrastructure/errors package.
package svcerr

import (
	"errors"
	"fmt"
)

// Code identifies a stable error kind, per spec §7.
type Code string

const (
	CodeConfigError            Code = "CONFIG_ERROR"
	CodeUnknownService         Code = "UNKNOWN_SERVICE"
	CodeServiceKindMismatch    Code = "SERVICE_KIND_MISMATCH"
	CodeDuplicateService       Code = "DUPLICATE_SERVICE"
	CodeUnsupportedService     Code = "UNSUPPORTED_SERVICE"
	CodeSchemaFetchError       Code = "SCHEMA_FETCH_ERROR"
	CodeSchemaValidationError  Code = "SCHEMA_VALIDATION_ERROR"
	CodeSourceTransient        Code = "SOURCE_TRANSIENT"
	CodeSourceFatal            Code = "SOURCE_FATAL"
	CodeSinkTransient          Code = "SINK_TRANSIENT"
	CodeSinkTerminal           Code = "SINK_TERMINAL"
	CodeUdfLimitExceeded       Code = "UDF_LIMIT_EXCEEDED"
	CodeShutdownTimeout        Code = "SHUTDOWN_TIMEOUT"
	CodeAllSinksFailing        Code = "ALL_SINKS_FAILING"
	CodeNameInUse              Code = "NAME_IN_USE"
)

// Error is a structured error carrying a stable code, a human message, and
// the wrapped cause, if any.
type Error struct {
	Code    Code
	Message string
	Step    string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Step != "":
		return fmt.Sprintf("[%s] %s (step=%s): %v", e.Code, e.Message, e.Step, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	case e.Step != "":
		return fmt.Sprintf("[%s] %s (step=%s)", e.Code, e.Message, e.Step)
	default:
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error that wraps err.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithStep attaches build-step context (spec §4.2: "any step failure aborts
// the whole build with the step name attached as context").
func (e *Error) WithStep(step string) *Error {
	e.Step = step
	return e
}

// Is reports whether err carries the given code anywhere in its chain,
// including on an *Error wrapped inside another *Error.
func Is(err error, code Code) bool {
	for err != nil {
		var svcErr *Error
		if !errors.As(err, &svcErr) {
			return false
		}
		if svcErr.Code == code {
			return true
		}
		err = svcErr.Err
	}
	return false
}

// As extracts the *Error from err's chain, if present.
func As(err error) (*Error, bool) {
	var svcErr *Error
	ok := errors.As(err, &svcErr)
	return svcErr, ok
}
