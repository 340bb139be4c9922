package verifier

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/firebase-jwt/pkg/clock"
	"github.com/StricklySoft/firebase-jwt/pkg/keyset"
	"github.com/StricklySoft/firebase-jwt/pkg/token"
)

// IDTokenVerifier verifies ID tokens issued to clients of a project.
type IDTokenVerifier struct {
	s settings
}

// NewIDTokenVerifier returns a verifier for projectID's ID tokens with
// zero leeway. keys is normally keyset.NewIDTokenKeys. A nil clock uses
// the system clock.
func NewIDTokenVerifier(projectID string, keys keyset.KeySet, c clock.Clock) IDTokenVerifier {
	return IDTokenVerifier{s: newSettings(KindIDToken, IDTokenIssuerPrefix, projectID, keys, c)}
}

// WithLeeway returns a copy tolerating d of clock skew. A negative d
// fails with validation.ErrLeewayCannotBeNegative.
func (v IDTokenVerifier) WithLeeway(d time.Duration) (IDTokenVerifier, error) {
	s, err := v.s.withLeeway(d)
	if err != nil {
		return v, err
	}
	return IDTokenVerifier{s: s}, nil
}

// WithExpectedTenantID returns a copy that also requires firebase.tenant
// to equal tenantID. An empty tenantID removes the requirement.
func (v IDTokenVerifier) WithExpectedTenantID(tenantID string) IDTokenVerifier {
	v.s.tenantID = tenantID
	return v
}

// WithTracerProvider returns a copy that records spans on tp.
func (v IDTokenVerifier) WithTracerProvider(tp trace.TracerProvider) IDTokenVerifier {
	v.s.tracer = tp.Tracer(tracerName)
	return v
}

// Verify implements Verifier.
func (v IDTokenVerifier) Verify(ctx context.Context, jwt string) (*token.Plain, error) {
	return v.s.verify(ctx, jwt)
}

// Kind implements Verifier.
func (v IDTokenVerifier) Kind() Kind { return KindIDToken }

// ProjectID returns the project the token audience must match.
func (v IDTokenVerifier) ProjectID() string { return v.s.projectID }

// Issuer returns the expected iss claim.
func (v IDTokenVerifier) Issuer() string { return v.s.issuer }

// Leeway returns the tolerated clock skew.
func (v IDTokenVerifier) Leeway() time.Duration { return v.s.leeway }

// ExpectedTenantID returns the required firebase.tenant, or "" when any
// tenant is accepted.
func (v IDTokenVerifier) ExpectedTenantID() string { return v.s.tenantID }
