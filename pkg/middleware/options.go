package middleware

import (
	"context"
	"errors"
	"log/slog"

	sserr "github.com/StricklySoft/firebase-jwt/pkg/errors"
	"github.com/StricklySoft/firebase-jwt/pkg/validation"
)

// Option configures the HTTP middlewares and gRPC interceptors.
type Option func(*options)

// options is resolved once when a middleware is built.
type options struct {
	// logger receives one Warn record per rejected request.
	logger *slog.Logger
}

// WithLogger sets the logger used for rejected requests. Defaults to
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// newOptions applies opts over the defaults.
func newOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// reject logs a refused request. Only the failure class is recorded; the
// raw token and the violation messages stay out of the log.
func (o options) reject(ctx context.Context, transport, reason string, err error) {
	attrs := []any{"transport", transport, "reason", reason}
	if err != nil {
		attrs = append(attrs, "error_code", errorCode(err))
	}
	o.logger.WarnContext(ctx, "middleware: request rejected", attrs...)
}

// serverFault reports whether err is a failure on the verifying side, such
// as an unreachable key endpoint, rather than a bad credential. It returns
// the HTTP status to answer with.
func serverFault(err error) (int, bool) {
	var rcv *validation.RequiredConstraintsViolated
	if errors.As(err, &rcv) {
		return 0, false
	}
	e, ok := sserr.AsError(err)
	if !ok {
		return 0, false
	}
	if status := e.HTTPStatus(); status >= 500 {
		return status, true
	}
	return 0, false
}

// errorCode classifies err for logs: violations are reported as one class
// so the message text, which may echo claim names, stays out of the log.
func errorCode(err error) string {
	var rcv *validation.RequiredConstraintsViolated
	if errors.As(err, &rcv) {
		return "constraint_violation"
	}
	if code := sserr.GetCode(err); code != "" {
		return code.String()
	}
	return "malformed_token"
}
