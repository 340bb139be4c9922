package verifier

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/StricklySoft/firebase-jwt/internal/testutil"
	"github.com/StricklySoft/firebase-jwt/internal/testutil/fixtures"
	"github.com/StricklySoft/firebase-jwt/pkg/clock"
	sserr "github.com/StricklySoft/firebase-jwt/pkg/errors"
	"github.com/StricklySoft/firebase-jwt/pkg/keyset"
	"github.com/StricklySoft/firebase-jwt/pkg/validation"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

var t0 = time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)

func staticKeys(t *testing.T) *keyset.Static {
	t.Helper()
	return keyset.NewStatic(map[string]string{
		fixtures.KeyID: testutil.CertificatePEM(t, testutil.SharedRSAKey(t)),
	})
}

func idTokenClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":       fixtures.IDTokenIssuer,
		"aud":       fixtures.ProjectID,
		"sub":       fixtures.UID,
		"user_id":   fixtures.UID,
		"auth_time": t0.Add(-time.Hour).Unix(),
		"iat":       t0.Add(-time.Minute).Unix(),
		"exp":       t0.Add(59 * time.Minute).Unix(),
		"firebase": map[string]any{
			"sign_in_provider": "custom",
			"tenant":           fixtures.TenantID,
		},
	}
}

func sessionCookieClaims() jwt.MapClaims {
	c := idTokenClaims()
	c["iss"] = fixtures.SessionCookieIssuer
	return c
}

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	return testutil.SignRS256(t, testutil.SharedRSAKey(t), fixtures.KeyID, claims)
}

func requireViolation(t *testing.T, err error, constraint, message string) {
	t.Helper()
	var rcv *validation.RequiredConstraintsViolated
	require.ErrorAs(t, err, &rcv, "got %v", err)
	require.Len(t, rcv.Violations, 1)
	assert.Equal(t, constraint, rcv.Violations[0].Constraint)
	assert.Equal(t, message, rcv.Violations[0].Message)
}

type countingClock struct {
	now   time.Time
	calls atomic.Int32
}

func (c *countingClock) Now() time.Time {
	c.calls.Add(1)
	return c.now
}

// ---------------------------------------------------------------------------
// ID tokens
// ---------------------------------------------------------------------------

func TestIDTokenVerifier_Valid(t *testing.T) {
	t.Parallel()
	keys := staticKeys(t)
	v := NewIDTokenVerifier(fixtures.ProjectID, keys, clock.Fixed(t0))

	tok, err := v.Verify(context.Background(), sign(t, idTokenClaims()))
	require.NoError(t, err)
	assert.Equal(t, fixtures.UID, tok.Subject())
	assert.Equal(t, 1, keys.Calls())
	assert.Equal(t, KindIDToken, v.Kind())
	assert.Equal(t, fixtures.IDTokenIssuer, v.Issuer())
}

func TestIDTokenVerifier_Rejections(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		mutate     func(jwt.MapClaims)
		constraint string
		message    string
	}{
		{
			name:       "expired",
			mutate:     func(c jwt.MapClaims) { c["exp"] = t0.Add(-time.Second).Unix() },
			constraint: "LooseValidAt",
			message:    "The token is expired",
		},
		{
			name:       "issued in the future",
			mutate:     func(c jwt.MapClaims) { c["iat"] = t0.Add(time.Minute).Unix() },
			constraint: "LooseValidAt",
			message:    "The token was issued in the future",
		},
		{
			name:       "session cookie issuer",
			mutate:     func(c jwt.MapClaims) { c["iss"] = fixtures.SessionCookieIssuer },
			constraint: "IssuedBy",
			message:    "The token was not issued by the given issuers",
		},
		{
			name:       "other project",
			mutate:     func(c jwt.MapClaims) { c["aud"] = "other-project" },
			constraint: "PermittedFor",
			message:    "The token is not allowed to be used by this audience",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			keys := staticKeys(t)
			claims := idTokenClaims()
			tt.mutate(claims)

			_, err := NewIDTokenVerifier(fixtures.ProjectID, keys, clock.Fixed(t0)).
				Verify(context.Background(), sign(t, claims))
			requireViolation(t, err, tt.constraint, tt.message)
			assert.Equal(t, 0, keys.Calls(), "the key set must not be consulted after a local failure")
		})
	}
}

func TestIDTokenVerifier_IgnoresAuthTime(t *testing.T) {
	t.Parallel()
	claims := idTokenClaims()
	claims["auth_time"] = t0.Add(time.Hour).Unix()

	_, err := NewIDTokenVerifier(fixtures.ProjectID, staticKeys(t), clock.Fixed(t0)).
		Verify(context.Background(), sign(t, claims))
	assert.NoError(t, err)
}

func TestIDTokenVerifier_ExpiryBoundaryAndLeeway(t *testing.T) {
	t.Parallel()
	ttl := 10 * time.Minute
	claims := idTokenClaims()
	claims["iat"] = t0.Unix()
	claims["exp"] = t0.Add(ttl).Unix()
	raw := sign(t, claims)
	keys := staticKeys(t)
	ctx := context.Background()

	_, err := NewIDTokenVerifier(fixtures.ProjectID, keys, clock.Fixed(t0.Add(ttl-time.Second))).Verify(ctx, raw)
	assert.NoError(t, err)

	late := NewIDTokenVerifier(fixtures.ProjectID, keys, clock.Fixed(t0.Add(ttl+time.Second)))
	_, err = late.Verify(ctx, raw)
	requireViolation(t, err, "LooseValidAt", "The token is expired")

	lenient, err := late.WithLeeway(2 * time.Second)
	require.NoError(t, err)
	_, err = lenient.Verify(ctx, raw)
	assert.NoError(t, err)
}

func TestIDTokenVerifier_Tenant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := NewIDTokenVerifier(fixtures.ProjectID, staticKeys(t), clock.Fixed(t0))

	noTenant := idTokenClaims()
	delete(noTenant, "firebase")
	raw := sign(t, noTenant)

	_, err := base.Verify(ctx, raw)
	require.NoError(t, err, "the tenant is only checked when expected")

	tenanted := base.WithExpectedTenantID(fixtures.TenantID)
	_, err = tenanted.Verify(ctx, raw)
	requireViolation(t, err, "HasTenant", "`firebase` claim missing")

	_, err = tenanted.Verify(ctx, sign(t, idTokenClaims()))
	assert.NoError(t, err)

	_, err = base.WithExpectedTenantID("tenant-9999").Verify(ctx, sign(t, idTokenClaims()))
	requireViolation(t, err, "HasTenant", "`firebase.tenant` claim does not match expected value")

	assert.Empty(t, base.ExpectedTenantID(), "WithExpectedTenantID must not modify the receiver")
	assert.Equal(t, fixtures.TenantID, tenanted.ExpectedTenantID())
}

func TestIDTokenVerifier_Signature(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	v := NewIDTokenVerifier(fixtures.ProjectID, staticKeys(t), clock.Fixed(t0))

	unknown := testutil.SignRS256(t, testutil.SharedRSAKey(t), fixtures.AltKeyID, idTokenClaims())
	_, err := v.Verify(ctx, unknown)
	requireViolation(t, err, "SignedWithOneInKeySet", "Unknown key ID")

	forged := testutil.SignRS256(t, testutil.GenerateRSAKey(t), fixtures.KeyID, idTokenClaims())
	_, err = v.Verify(ctx, forged)
	requireViolation(t, err, "SignedWithOneInKeySet", "Token signature mismatch")
}

func TestIDTokenVerifier_MalformedTokensAreNotWrapped(t *testing.T) {
	t.Parallel()
	v := NewIDTokenVerifier(fixtures.ProjectID, staticKeys(t), clock.Fixed(t0))

	for _, raw := range []string{"", "not-a-jwt", "a.b.c", "eyJhbGciOiJSUzI1NiJ9.e30.%%%"} {
		_, err := v.Verify(context.Background(), raw)
		require.Error(t, err, raw)
		assert.ErrorIs(t, err, jwt.ErrTokenMalformed, raw)
		var rcv *validation.RequiredConstraintsViolated
		assert.False(t, errors.As(err, &rcv), raw)
	}
}

func TestIDTokenVerifier_KeySetOutagePropagates(t *testing.T) {
	t.Parallel()
	server := testutil.NewKeyServer(t, nil)
	server.SetResponse(503, "unavailable")
	keys := keyset.NewGooglePublicKeys(server.URL, server.Client(), nil)

	_, err := NewIDTokenVerifier(fixtures.ProjectID, keys, clock.Fixed(t0)).
		Verify(context.Background(), sign(t, idTokenClaims()))
	testutil.RequireErrorCode(t, err, sserr.CodeKeySet)
}

func TestVerifiers_RejectNegativeLeeway(t *testing.T) {
	t.Parallel()
	id := NewIDTokenVerifier(fixtures.ProjectID, staticKeys(t), nil)
	got, err := id.WithLeeway(-time.Second)
	assert.ErrorIs(t, err, validation.ErrLeewayCannotBeNegative)
	assert.Zero(t, got.Leeway())

	sc := NewSessionCookieVerifier(fixtures.ProjectID, staticKeys(t), nil)
	_, err = sc.WithLeeway(-time.Second)
	assert.ErrorIs(t, err, validation.ErrLeewayCannotBeNegative)
}

func TestVerify_ReadsClockOnce(t *testing.T) {
	t.Parallel()
	c := &countingClock{now: t0}
	_, err := NewSessionCookieVerifier(fixtures.ProjectID, staticKeys(t), c).
		Verify(context.Background(), sign(t, sessionCookieClaims()))
	require.NoError(t, err)
	assert.Equal(t, int32(1), c.calls.Load())
}

// ---------------------------------------------------------------------------
// Session cookies
// ---------------------------------------------------------------------------

func TestSessionCookieVerifier_Valid(t *testing.T) {
	t.Parallel()
	v := NewSessionCookieVerifier(fixtures.ProjectID, staticKeys(t), clock.Fixed(t0)).
		WithExpectedTenantID(fixtures.TenantID)

	tok, err := v.Verify(context.Background(), sign(t, sessionCookieClaims()))
	require.NoError(t, err)
	assert.True(t, tok.HasBeenIssuedBy(fixtures.SessionCookieIssuer))
	assert.Equal(t, KindSessionCookie, v.Kind())
	assert.Equal(t, fixtures.ProjectID, v.ProjectID())
}

func TestSessionCookieVerifier_RejectsIDToken(t *testing.T) {
	t.Parallel()
	_, err := NewSessionCookieVerifier(fixtures.ProjectID, staticKeys(t), clock.Fixed(t0)).
		Verify(context.Background(), sign(t, idTokenClaims()))
	requireViolation(t, err, "IssuedBy", "The token was not issued by the given issuers")
}

func TestSessionCookieVerifier_AuthTime(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	v := NewSessionCookieVerifier(fixtures.ProjectID, staticKeys(t), clock.Fixed(t0))

	missing := sessionCookieClaims()
	delete(missing, "auth_time")
	_, err := v.Verify(ctx, sign(t, missing))
	requireViolation(t, err, "AuthTimeValidAt", "`auth_time` claim missing")

	future := sessionCookieClaims()
	future["auth_time"] = t0.Add(time.Second).Unix()
	raw := sign(t, future)
	_, err = v.Verify(ctx, raw)
	requireViolation(t, err, "AuthTimeValidAt", "The token was authenticated in the future")

	lenient, err := v.WithLeeway(time.Second)
	require.NoError(t, err)
	_, err = lenient.Verify(ctx, raw)
	assert.NoError(t, err)
}

func TestVerify_RecordsSpan(t *testing.T) {
	t.Parallel()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	v := NewSessionCookieVerifier(fixtures.ProjectID, staticKeys(t), clock.Fixed(t0)).WithTracerProvider(tp)

	_, err := v.Verify(context.Background(), "garbage")
	require.Error(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "verifier.Verify", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("token.kind", "session_cookie"))
	assert.Equal(t, "Error", spans[0].Status().Code.String())
	for _, a := range spans[0].Attributes() {
		assert.NotContains(t, a.Value.Emit(), "garbage", "token contents must not be recorded")
	}
}
