package verifier

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/firebase-jwt/pkg/clock"
	"github.com/StricklySoft/firebase-jwt/pkg/keyset"
	"github.com/StricklySoft/firebase-jwt/pkg/token"
)

// SessionCookieVerifier verifies session cookies minted by
// createSessionCookie. Unlike ID tokens they must carry an auth_time that
// is not in the future.
type SessionCookieVerifier struct {
	s settings
}

// NewSessionCookieVerifier returns a verifier for projectID's session
// cookies with zero leeway. keys is normally keyset.NewSessionCookieKeys.
// A nil clock uses the system clock.
func NewSessionCookieVerifier(projectID string, keys keyset.KeySet, c clock.Clock) SessionCookieVerifier {
	return SessionCookieVerifier{s: newSettings(KindSessionCookie, SessionCookieIssuerPrefix, projectID, keys, c)}
}

// WithLeeway returns a copy tolerating d of clock skew on the time window
// and on auth_time.
func (v SessionCookieVerifier) WithLeeway(d time.Duration) (SessionCookieVerifier, error) {
	s, err := v.s.withLeeway(d)
	if err != nil {
		return v, err
	}
	return SessionCookieVerifier{s: s}, nil
}

// WithExpectedTenantID is the session cookie form of
// IDTokenVerifier.WithExpectedTenantID.
func (v SessionCookieVerifier) WithExpectedTenantID(tenantID string) SessionCookieVerifier {
	v.s.tenantID = tenantID
	return v
}

// WithTracerProvider returns a copy that records spans on tp.
func (v SessionCookieVerifier) WithTracerProvider(tp trace.TracerProvider) SessionCookieVerifier {
	v.s.tracer = tp.Tracer(tracerName)
	return v
}

// Verify implements Verifier. Unlike ID tokens, session cookies must also
// carry an auth_time that is not in the future.
func (v SessionCookieVerifier) Verify(ctx context.Context, jwt string) (*token.Plain, error) {
	return v.s.verify(ctx, jwt)
}

// Kind implements Verifier.
func (v SessionCookieVerifier) Kind() Kind { return KindSessionCookie }

// ProjectID returns the project the cookie audience must match.
func (v SessionCookieVerifier) ProjectID() string { return v.s.projectID }

// Issuer returns the expected iss claim.
func (v SessionCookieVerifier) Issuer() string { return v.s.issuer }

// Leeway returns the tolerated clock skew.
func (v SessionCookieVerifier) Leeway() time.Duration { return v.s.leeway }

// ExpectedTenantID returns the required firebase.tenant, or "".
func (v SessionCookieVerifier) ExpectedTenantID() string { return v.s.tenantID }
