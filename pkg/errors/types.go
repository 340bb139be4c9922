package errors

import (
	"fmt"
	"maps"
	"net/http"
)

// Error is a structured error with a code, a message and an optional cause.
// Values are treated as immutable; WithDetail returns a copy.
type Error struct {
	// Code is the machine-readable error code.
	Code Code

	// Message is human readable. It must never contain key material or
	// raw token contents.
	Message string

	// Cause is the underlying error, reachable through Unwrap.
	Cause error

	// Details holds structured context such as an HTTP status code or
	// the requested key id.
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the cause for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error code to the status an HTTP edge should answer
// with. An unknown key id means the token itself is unacceptable, while an
// unusable key source is a server side outage.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeKeyNotFound:
		return http.StatusUnauthorized
	case CodeKeySet:
		return http.StatusServiceUnavailable
	}
	switch e.Code.Category() {
	case "VAL":
		return http.StatusBadRequest
	case "AUTH":
		return http.StatusUnauthorized
	case "UNAVAIL":
		return http.StatusServiceUnavailable
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WithDetail returns a copy of e with key set to value in Details.
func (e *Error) WithDetail(key string, value any) *Error {
	details := make(map[string]any, len(e.Details)+1)
	maps.Copy(details, e.Details)
	details[key] = value
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Cause:   e.Cause,
		Details: details,
	}
}

// Format implements fmt.Formatter. %+v prints code, message, details and
// the cause chain.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "Error{Code: %q, Message: %q", e.Code, e.Message)
			if len(e.Details) > 0 {
				fmt.Fprintf(s, ", Details: %v", e.Details)
			}
			if e.Cause != nil {
				fmt.Fprintf(s, ", Cause: %+v", e.Cause)
			}
			fmt.Fprint(s, "}")
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
