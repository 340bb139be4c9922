package validation

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/StricklySoft/firebase-jwt/pkg/clock"
	"github.com/StricklySoft/firebase-jwt/pkg/token"
)

// ---------------------------------------------------------------------------
// Time window
// ---------------------------------------------------------------------------

// looseValidAt delegates the arithmetic to golang-jwt's validator and maps
// its sentinel errors onto violation messages.
type looseValidAt struct {
	clock  clock.Clock
	leeway time.Duration
}

// LooseValidAt checks iat, nbf and exp against the clock, allowing leeway
// in both directions. Absent time claims are accepted.
//
// "Loose" means a token without exp is not rejected; Firebase always sets
// exp, so a missing one is caught by the signature check only if it was
// stripped after signing. A negative leeway fails with
// ErrLeewayCannotBeNegative.
//
// Example:
//
//	c, err := validation.LooseValidAt(clock.System(), 5*time.Second)
//	if err != nil {
//	    return err
//	}
//	err = validation.Assert(ctx, tok, c)
func LooseValidAt(c clock.Clock, leeway time.Duration) (Constraint, error) {
	if leeway < 0 {
		return nil, ErrLeewayCannotBeNegative
	}
	return &looseValidAt{clock: c, leeway: leeway}, nil
}

// Name implements Constraint.
func (c *looseValidAt) Name() string { return "LooseValidAt" }

// Assert checks iat, nbf and exp in that order so the message names the
// first claim that is out of range.
func (c *looseValidAt) Assert(_ context.Context, tok token.Token) error {
	p, err := plain(c, tok)
	if err != nil {
		return err
	}
	now := c.clock.Now()
	validator := jwt.NewValidator(
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(c.leeway),
		jwt.WithIssuedAt(),
	)
	err = validator.Validate(p.Claims())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return violation(c, "The token was issued in the future")
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return violation(c, "The token cannot be used yet")
	case errors.Is(err, jwt.ErrTokenExpired):
		return violation(c, "The token is expired")
	default:
		v := violation(c, "The token has malformed time claims")
		v.Cause = err
		return v
	}
}

// ---------------------------------------------------------------------------
// Registered claims
// ---------------------------------------------------------------------------

type issuedBy struct {
	issuers []string
}

// IssuedBy requires iss to equal one of issuers. The comparison is exact;
// no trailing slash or case normalisation is applied.
func IssuedBy(issuers ...string) Constraint {
	return &issuedBy{issuers: issuers}
}

func (c *issuedBy) Name() string { return "IssuedBy" }

func (c *issuedBy) Assert(_ context.Context, tok token.Token) error {
	p, err := plain(c, tok)
	if err != nil {
		return err
	}
	if !p.HasBeenIssuedBy(c.issuers...) {
		return violation(c, "The token was not issued by the given issuers")
	}
	return nil
}

type permittedFor struct {
	audience string
}

// PermittedFor requires aud to contain audience. aud may be a single
// string or an array of strings.
func PermittedFor(audience string) Constraint {
	return &permittedFor{audience: audience}
}

func (c *permittedFor) Name() string { return "PermittedFor" }

func (c *permittedFor) Assert(_ context.Context, tok token.Token) error {
	p, err := plain(c, tok)
	if err != nil {
		return err
	}
	if !p.IsPermittedFor(c.audience) {
		return violation(c, "The token is not allowed to be used by this audience")
	}
	return nil
}

type relatedTo struct {
	subject string
}

// RelatedTo requires sub to equal subject. Firebase sets sub to the uid of
// the signed-in user.
func RelatedTo(subject string) Constraint {
	return &relatedTo{subject: subject}
}

func (c *relatedTo) Name() string { return "RelatedTo" }

func (c *relatedTo) Assert(_ context.Context, tok token.Token) error {
	p, err := plain(c, tok)
	if err != nil {
		return err
	}
	if !p.IsRelatedTo(c.subject) {
		return violation(c, "The token is not related to the expected subject")
	}
	return nil
}
