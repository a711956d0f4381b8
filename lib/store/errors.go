package store

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error Codes
// --------------------------------------------------------------------------

// Code classifies store errors so callers can make decisions based on the
// specific condition instead of string matching.
type Code uint8

const (
	CodeInternal           Code = iota // unexpected internal failure
	CodeValidation                     // malformed key, path or option
	CodeConflict                       // lock held by another holder
	CodePermission                     // operation without holding the lock
	CodeResourceExhausted              // memory/entry ceiling or pool exhausted
	CodeBackendUnavailable             // durable store unreachable
	CodeSerialization                  // value cannot be encoded/decoded
	CodeTimeout                        // lock or operation deadline exceeded
)

func (c Code) String() string {
	switch c {
	case CodeInternal:
		return "Internal"
	case CodeValidation:
		return "Validation"
	case CodeConflict:
		return "Conflict"
	case CodePermission:
		return "Permission"
	case CodeResourceExhausted:
		return "ResourceExhausted"
	case CodeBackendUnavailable:
		return "BackendUnavailable"
	case CodeSerialization:
		return "Serialization"
	case CodeTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Error Type
// --------------------------------------------------------------------------

// Error is the typed error returned by all store operations.
type Error struct {
	Code Code   // error classification
	Key  string // affected key, if any
	Msg  string // human readable message
	Err  error  // wrapped cause, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := fmt.Sprintf("hivemem: %s: %s", e.Code, e.Msg)
	if e.Key != "" {
		s += fmt.Sprintf(" (key %q)", e.Key)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// NewError creates a new typed store error.
func NewError(code Code, key, format string, args ...any) *Error {
	return &Error{Code: code, Key: key, Msg: fmt.Sprintf(format, args...)}
}

// WrapError creates a new typed store error wrapping a cause.
func WrapError(code Code, key string, err error, format string, args ...any) *Error {
	return &Error{Code: code, Key: key, Msg: fmt.Sprintf(format, args...), Err: err}
}

// --------------------------------------------------------------------------
// Predicates
// --------------------------------------------------------------------------

// IsCode reports whether err is (or wraps) a store Error with the given code.
func IsCode(err error, code Code) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

func IsValidation(err error) bool        { return IsCode(err, CodeValidation) }
func IsConflict(err error) bool          { return IsCode(err, CodeConflict) }
func IsPermission(err error) bool        { return IsCode(err, CodePermission) }
func IsResourceExhausted(err error) bool { return IsCode(err, CodeResourceExhausted) }
func IsBackendUnavailable(err error) bool {
	return IsCode(err, CodeBackendUnavailable)
}
func IsSerialization(err error) bool { return IsCode(err, CodeSerialization) }
func IsTimeout(err error) bool       { return IsCode(err, CodeTimeout) }

// Retryable reports whether an operation that failed with err may succeed on
// a later attempt. Used by the atomic retry loop and the backend failover.
func Retryable(err error) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code {
	case CodeConflict, CodeBackendUnavailable, CodeTimeout:
		return true
	default:
		return false
	}
}
