// Package verifier verifies Firebase ID tokens and session cookies.
//
// Both verifiers are immutable values. Verify parses the token, reads the
// clock once, and applies the constraints in a fixed order: time window,
// issuer, audience, auth_time (session cookies only), tenant (only when an
// expected tenant is set) and finally the signature. The signature check is
// last because it is the only one that may fetch keys over the network.
package verifier

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/firebase-jwt/pkg/clock"
	"github.com/StricklySoft/firebase-jwt/pkg/keyset"
	"github.com/StricklySoft/firebase-jwt/pkg/token"
	"github.com/StricklySoft/firebase-jwt/pkg/validation"
)

const tracerName = "github.com/StricklySoft/firebase-jwt/pkg/verifier"

// Issuer prefixes; the project id is appended.
const (
	IDTokenIssuerPrefix       = "https://securetoken.google.com/"
	SessionCookieIssuerPrefix = "https://session.firebase.google.com/"
)

// Kind names the token type in spans and logs.
type Kind string

const (
	KindIDToken       Kind = "id_token"
	KindSessionCookie Kind = "session_cookie"
)

// Verifier is satisfied by IDTokenVerifier and SessionCookieVerifier.
type Verifier interface {
	// Verify returns the parsed token when it is valid. A malformed token
	// fails with the golang-jwt decode error, an invalid one with
	// *validation.RequiredConstraintsViolated, and an unusable key set
	// with an error carrying errors.CodeKeySet.
	Verify(ctx context.Context, jwt string) (*token.Plain, error)

	// Kind reports which token type the verifier accepts.
	Kind() Kind
}

var (
	_ Verifier = IDTokenVerifier{}
	_ Verifier = SessionCookieVerifier{}
)

// settings is shared by both verifiers. It is copied by value on every
// With* call, so verifiers derived from one another never share state.
type settings struct {
	kind      Kind
	issuer    string        // IDTokenIssuerPrefix or SessionCookieIssuerPrefix + projectID
	projectID string        // expected aud
	keys      keyset.KeySet // resolves the kid header
	clock     clock.Clock
	leeway    time.Duration
	tenantID  string // expected firebase.tenant, "" for none
	tracer    trace.Tracer
}

// newSettings derives the expected issuer from the project id. A nil clock
// means the system clock.
func newSettings(kind Kind, issuerPrefix, projectID string, keys keyset.KeySet, c clock.Clock) settings {
	if c == nil {
		c = clock.System()
	}
	return settings{
		kind:      kind,
		issuer:    issuerPrefix + projectID,
		projectID: projectID,
		keys:      keys,
		clock:     c,
		tracer:    otel.Tracer(tracerName),
	}
}

// withLeeway rejects negative durations so a misconfiguration surfaces at
// setup rather than on the first request.
func (s settings) withLeeway(d time.Duration) (settings, error) {
	if d < 0 {
		return s, validation.ErrLeewayCannotBeNegative
	}
	s.leeway = d
	return s, nil
}

// constraints builds the ordered constraint list for one verification:
//
//  1. LooseValidAt: iat, nbf and exp against now, with leeway
//  2. IssuedBy: the kind-specific issuer for the project
//  3. PermittedFor: aud contains the project id
//  4. AuthTimeValidAt: session cookies only
//  5. HasTenant: only when an expected tenant is set
//  6. SignedWithOneInKeySet: the only step that may do I/O
//
// now is a frozen clock so every time check sees the same instant.
func (s settings) constraints(now clock.Clock) ([]validation.Constraint, error) {
	loose, err := validation.LooseValidAt(now, s.leeway)
	if err != nil {
		return nil, err
	}
	cs := []validation.Constraint{
		loose,
		validation.IssuedBy(s.issuer),
		validation.PermittedFor(s.projectID),
	}
	if s.kind == KindSessionCookie {
		authTime, err := validation.AuthTimeValidAt(now, s.leeway)
		if err != nil {
			return nil, err
		}
		cs = append(cs, authTime)
	}
	if s.tenantID != "" {
		cs = append(cs, validation.HasTenant(s.tenantID))
	}
	return append(cs, validation.SignedWithOneInKeySet(s.keys)), nil
}

// verify parses raw, reads the clock once and asserts the constraints.
// The span carries the token kind and whether a tenant was required, never
// the token itself.
func (s settings) verify(ctx context.Context, raw string) (tok *token.Plain, err error) {
	ctx, span := s.tracer.Start(ctx, "verifier.Verify", trace.WithAttributes(
		attribute.String("token.kind", string(s.kind)),
		attribute.Bool("token.tenant_check", s.tenantID != ""),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	tok, err = token.Parse(raw)
	if err != nil {
		return nil, err
	}
	cs, err := s.constraints(clock.Fixed(s.clock.Now()))
	if err != nil {
		return nil, err
	}
	if err := validation.Assert(ctx, tok, cs...); err != nil {
		return nil, err
	}
	return tok, nil
}
