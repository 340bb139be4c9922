package errors

import (
	"errors"
	"fmt"
)

// New creates an Error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a code and message. It returns nil if err is nil.
//
// Example:
//
//	if err := rdb.Set(ctx, key, v, ttl); err != nil {
//	    return errors.Wrap(err, errors.CodeInternalCache, "cache: save failed")
//	}
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf wraps err with a code and a formatted message. It returns nil if
// err is nil.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Validationf creates a CodeValidation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// KeySet reports an unusable key source. The message is prefixed the same
// way for every cause so operators can grep for it.
func KeySet(reason string) *Error {
	return New(CodeKeySet, "The key set is invalid: "+reason)
}

// KeySetf is KeySet with a formatted reason.
func KeySetf(format string, args ...any) *Error {
	return KeySet(fmt.Sprintf(format, args...))
}

// KeyNotFound reports that the key set has no key with the given id.
func KeyNotFound(id string) *Error {
	return Newf(CodeKeyNotFound, "The key set does not contain a key identified by `%s`", id).
		WithDetail("kid", id)
}

// Unauthorized creates a CodeAuthentication error.
func Unauthorized(message string) *Error {
	return New(CodeAuthentication, message)
}

// Internal creates a CodeInternal error.
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// FromError returns err as an *Error, wrapping unknown errors as internal.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, CodeInternal, "an unexpected error occurred")
}
