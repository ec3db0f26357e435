package errors

import (
	"errors"
	"fmt"
)

// Code represents an error code for categorizing errors
type Code string

const (
	// CodeUnknown indicates an unknown error
	CodeUnknown Code = "unknown"

	// CodeInvalidArgument indicates the caller specified an invalid argument
	CodeInvalidArgument Code = "invalid_argument"

	// CodeNotFound indicates a requested resource was not found
	CodeNotFound Code = "not_found"

	// CodeFailedPrecondition indicates the system is not in a state required for the operation
	CodeFailedPrecondition Code = "failed_precondition"

	// CodeResourceExhausted indicates a bounded resource (queue lane, buffer) is full
	CodeResourceExhausted Code = "resource_exhausted"

	// CodeInternal indicates internal system error
	CodeInternal Code = "internal"

	// CodeUnavailable indicates a dependency is currently unavailable
	CodeUnavailable Code = "unavailable"

	// CodePanic indicates a handler panicked
	CodePanic Code = "panic"
)

// Severity decides what the game loop does when a handler reports the error.
// The zero value means "not specified".
type Severity int

const (
	SeverityUnspecified Severity = iota
	// SeverityWarning does not indicate failure of any operation in progress
	SeverityWarning
	// SeverityRecoverable means one handler or action failed but the simulation continues
	SeverityRecoverable
	// SeverityFatal requires immediate loop shutdown
	SeverityFatal
)

// String returns the string representation of the severity
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityRecoverable:
		return "recoverable"
	case SeverityFatal:
		return "fatal"
	default:
		return "unspecified"
	}
}

// Error represents an application error with code, severity and metadata
type Error struct {
	// Code is the error code
	Code Code

	// Severity tells the loop how to react; unspecified is treated as recoverable
	Severity Severity

	// Message is the error message
	Message string

	// Cause is the wrapped error
	Cause error

	// Meta contains additional context
	Meta map[string]any
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithMeta adds metadata to the error (builder pattern)
func (e *Error) WithMeta(key string, value any) *Error {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[key] = value
	return e
}

// WithSeverity sets the severity (builder pattern)
func (e *Error) WithSeverity(severity Severity) *Error {
	e.Severity = severity
	return e
}

// New creates a new error with the given code and message
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new error with formatted message
func Newf(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}

	// If it's already our error type, preserve the code and severity
	var gemErr *Error
	if errors.As(err, &gemErr) {
		return &Error{
			Code:     gemErr.Code,
			Severity: gemErr.Severity,
			Message:  message,
			Cause:    err,
			Meta:     copyMeta(gemErr.Meta),
		}
	}

	// Otherwise, create unknown error
	return &Error{
		Code:    CodeUnknown,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error with a specific code
func WrapWithCode(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}

	wrapped := Wrap(err, message)
	wrapped.Code = code
	return wrapped
}

// Helper functions for common error types

// NotFound creates a not found error
func NotFound(message string) *Error {
	return New(CodeNotFound, message)
}

// NotFoundf creates a formatted not found error
func NotFoundf(format string, args ...any) *Error {
	return Newf(CodeNotFound, format, args...)
}

// InvalidArgument creates an invalid argument error
func InvalidArgument(message string) *Error {
	return New(CodeInvalidArgument, message)
}

// InvalidArgumentf creates a formatted invalid argument error
func InvalidArgumentf(format string, args ...any) *Error {
	return Newf(CodeInvalidArgument, format, args...)
}

// Internal creates an internal error
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// Internalf creates a formatted internal error
func Internalf(format string, args ...any) *Error {
	return Newf(CodeInternal, format, args...)
}

// Severity constructors

// Fatal creates an error that stops the game loop
func Fatal(code Code, message string) *Error {
	return New(code, message).WithSeverity(SeverityFatal)
}

// Fatalf creates a formatted error that stops the game loop
func Fatalf(code Code, format string, args ...any) *Error {
	return Newf(code, format, args...).WithSeverity(SeverityFatal)
}

// Recoverable creates an error reported to other components while the loop continues
func Recoverable(code Code, message string) *Error {
	return New(code, message).WithSeverity(SeverityRecoverable)
}

// Recoverablef creates a formatted recoverable error
func Recoverablef(code Code, format string, args ...any) *Error {
	return Newf(code, format, args...).WithSeverity(SeverityRecoverable)
}

// Warning creates an error that is only logged
func Warning(code Code, message string) *Error {
	return New(code, message).WithSeverity(SeverityWarning)
}

// Warningf creates a formatted warning
func Warningf(code Code, format string, args ...any) *Error {
	return Newf(code, format, args...).WithSeverity(SeverityWarning)
}

// Error checking functions

// Is checks if the error is of a specific code
func Is(err error, code Code) bool {
	var gemErr *Error
	if errors.As(err, &gemErr) {
		return gemErr.Code == code
	}
	return false
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return Is(err, CodeNotFound)
}

// IsInvalidArgument checks if the error is an invalid argument error
func IsInvalidArgument(err error) bool {
	return Is(err, CodeInvalidArgument)
}

// IsResourceExhausted checks if the error is a resource exhausted error
func IsResourceExhausted(err error) bool {
	return Is(err, CodeResourceExhausted)
}

// IsFatal checks if the error is classified fatal
func IsFatal(err error) bool {
	return SeverityOf(err) == SeverityFatal
}

// GetCode returns the error code
func GetCode(err error) Code {
	var gemErr *Error
	if errors.As(err, &gemErr) {
		return gemErr.Code
	}
	return CodeUnknown
}

// SeverityOf classifies err. Errors that carry no severity are recoverable:
// the failing handler is reported but the simulation keeps running.
// A nil error has no severity.
func SeverityOf(err error) Severity {
	if err == nil {
		return SeverityUnspecified
	}

	// The outermost explicit severity wins so callers can downgrade or escalate.
	for e := err; e != nil; e = errors.Unwrap(e) {
		if gemErr, ok := e.(*Error); ok && gemErr.Severity != SeverityUnspecified {
			return gemErr.Severity
		}
	}
	return SeverityRecoverable
}

// GetMeta returns the error metadata
func GetMeta(err error) map[string]any {
	var gemErr *Error
	if errors.As(err, &gemErr) {
		return gemErr.Meta
	}
	return nil
}

// copyMeta creates a copy of the metadata map
func copyMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}

	copied := make(map[string]any, len(meta))
	for k, v := range meta {
		copied[k] = v
	}
	return copied
}
