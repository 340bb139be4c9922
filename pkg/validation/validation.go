// Package validation holds the constraints a Firebase token must satisfy
// and the runner that applies them.
//
// A constraint either accepts a token, rejects it with a
// *ConstraintViolation, or fails with an unrelated error such as an
// unreachable key set. [Assert] stops at the first failure and reports
// violations as *RequiredConstraintsViolated; other errors are returned
// unchanged so callers can tell a bad token from an outage.
package validation

import (
	"context"
	"errors"
	"strings"

	sserr "github.com/StricklySoft/firebase-jwt/pkg/errors"
	"github.com/StricklySoft/firebase-jwt/pkg/token"
)

// Constraint is one rule over a token.
type Constraint interface {
	// Name identifies the constraint in violations.
	Name() string

	// Assert returns nil when tok satisfies the constraint, a
	// *ConstraintViolation when it does not, or any other error when the
	// check itself could not be performed.
	Assert(ctx context.Context, tok token.Token) error
}

// ErrLeewayCannotBeNegative is returned by constructors given a negative
// leeway.
var ErrLeewayCannotBeNegative = sserr.New(sserr.CodeValidationLeeway, "Leeway cannot be negative")

// ErrNoConstraints is returned by Assert when called without constraints.
var ErrNoConstraints = sserr.New(sserr.CodeValidationRequired, "No constraint given")

// ConstraintViolation reports why a token does not satisfy a constraint.
// Messages never contain claim values or key material.
type ConstraintViolation struct {
	Constraint string
	Message    string
	Cause      error
}

// Error returns the violation message.
func (v *ConstraintViolation) Error() string { return v.Message }

// Unwrap returns the underlying cause, if any.
func (v *ConstraintViolation) Unwrap() error { return v.Cause }

func violation(c Constraint, msg string) *ConstraintViolation {
	return &ConstraintViolation{Constraint: c.Name(), Message: msg}
}

// RequiredConstraintsViolated is returned when a token fails validation.
type RequiredConstraintsViolated struct {
	Violations []*ConstraintViolation
}

// Error lists every violation message, one per line.
func (e *RequiredConstraintsViolated) Error() string {
	var b strings.Builder
	b.WriteString("The token violates some mandatory constraints, details:")
	for _, v := range e.Violations {
		b.WriteString("\n- ")
		b.WriteString(v.Message)
	}
	return b.String()
}

// Unwrap exposes every violation to errors.Is and errors.As.
func (e *RequiredConstraintsViolated) Unwrap() []error {
	errs := make([]error, len(e.Violations))
	for i, v := range e.Violations {
		errs[i] = v
	}
	return errs
}

// Assert applies constraints to tok in order and stops at the first
// failure. It does not collect every violation the way a report-all
// validator would: a *RequiredConstraintsViolated returned by Assert holds
// exactly one violation, and the constraints after it never run. Callers
// order constraints so that the expensive ones, such as a signature check
// that may fetch keys, come last.
//
// An error from a constraint that is not a *ConstraintViolation, for
// example an unreachable key set, is returned unchanged.
func Assert(ctx context.Context, tok token.Token, constraints ...Constraint) error {
	if len(constraints) == 0 {
		return ErrNoConstraints
	}
	for _, c := range constraints {
		err := c.Assert(ctx, tok)
		if err == nil {
			continue
		}
		var v *ConstraintViolation
		if errors.As(err, &v) {
			return &RequiredConstraintsViolated{Violations: []*ConstraintViolation{v}}
		}
		return err
	}
	return nil
}

// Validate reports whether tok satisfies every constraint. Errors other
// than violations count as failure.
func Validate(ctx context.Context, tok token.Token, constraints ...Constraint) bool {
	return Assert(ctx, tok, constraints...) == nil
}

func plain(c Constraint, tok token.Token) (*token.Plain, error) {
	p, ok := tok.(*token.Plain)
	if !ok || p == nil {
		return nil, violation(c, "You should pass a plain token")
	}
	return p, nil
}
