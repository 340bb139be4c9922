// Package firebasejwt issues Firebase custom tokens and verifies ID tokens
// and session cookies for one Firebase project.
//
// A Facade wires a customtoken.Builder and the two verifiers to Google's
// public key endpoints, with a shared key cache:
//
//	fb, err := firebasejwt.NewFromEnvironment("")
//	if err != nil { ... }
//	defer fb.Close()
//
//	tok, err := fb.IssueCustomToken(ctx, "some-uid", map[string]any{"admin": true}, "")
//	idToken, err := fb.VerifyIDToken(ctx, raw, firebasejwt.WithLeeway(5*time.Second))
package firebasejwt

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/firebase-jwt/pkg/cache"
	"github.com/StricklySoft/firebase-jwt/pkg/clients/redis"
	"github.com/StricklySoft/firebase-jwt/pkg/credentials"
	"github.com/StricklySoft/firebase-jwt/pkg/customtoken"
	sserr "github.com/StricklySoft/firebase-jwt/pkg/errors"
	"github.com/StricklySoft/firebase-jwt/pkg/keyset"
	"github.com/StricklySoft/firebase-jwt/pkg/token"
	"github.com/StricklySoft/firebase-jwt/pkg/verifier"
)

// ---------------------------------------------------------------------------
// Facade
// ---------------------------------------------------------------------------

const tracerName = "github.com/StricklySoft/firebase-jwt/pkg/firebasejwt"

// Sub-prefixes keep the two key sets apart in a shared store.
const (
	idTokenKeyPrefix       = "idt_"
	sessionCookieKeyPrefix = "sc_"
)

// Facade is safe for concurrent use.
type Facade struct {
	projectID      string
	builder        customtoken.Builder
	idTokens       verifier.IDTokenVerifier
	sessionCookies verifier.SessionCookieVerifier
	logger         *slog.Logger
	tracer         trace.Tracer
	closers        []func() error
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// New returns a Facade for the project and service account in vars.
func New(vars credentials.Variables, opts ...Option) (*Facade, error) {
	if vars == nil {
		return nil, sserr.New(sserr.CodeValidationRequired, "firebasejwt: credentials are required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.tokenTTL <= 0 {
		return nil, sserr.Newf(sserr.CodeValidationFormat, "firebasejwt: custom token TTL must be positive, got %v", o.tokenTTL)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: keyset.DefaultHTTPTimeout}
	}
	if o.store == nil {
		o.store = cache.NewMemory(cache.WithClock(o.clock))
	}

	idKeys := o.idTokenKeys
	if idKeys == nil {
		idKeys = keyset.NewIDTokenKeys(o.httpClient, o.store, o.keySetOptions(idTokenKeyPrefix)...)
	}
	sessionKeys := o.sessionKeys
	if sessionKeys == nil {
		sessionKeys = keyset.NewSessionCookieKeys(o.httpClient, o.store, o.keySetOptions(sessionCookieKeyPrefix)...)
	}

	projectID := vars.ProjectID()
	return &Facade{
		projectID: projectID,
		builder: customtoken.New(vars.ClientEmail(), vars.PrivateKey(), o.clock).
			ExpiresAfter(o.tokenTTL),
		idTokens: verifier.NewIDTokenVerifier(projectID, idKeys, o.clock).
			WithTracerProvider(o.tracerProvider),
		sessionCookies: verifier.NewSessionCookieVerifier(projectID, sessionKeys, o.clock).
			WithTracerProvider(o.tracerProvider),
		logger: o.logger,
		tracer: o.tracerProvider.Tracer(tracerName),
	}, nil
}

func (o options) keySetOptions(sub string) []keyset.Option {
	opts := []keyset.Option{
		keyset.WithKeyPrefix(o.keyPrefix + sub),
		keyset.WithLogger(o.logger),
		keyset.WithMetrics(o.metrics),
		keyset.WithTracerProvider(o.tracerProvider),
	}
	if o.negative {
		opts = append(opts, keyset.WithNegativeCaching())
	}
	if o.legacyMinutes {
		opts = append(opts, keyset.WithLegacyMaxAgeMinutes())
	}
	return opts
}

// NewFromEnvironment reads the service account from the variable name
// (GOOGLE_APPLICATION_CREDENTIALS when empty) and calls New.
func NewFromEnvironment(name string, opts ...Option) (*Facade, error) {
	sa, err := credentials.FromEnvironment(name)
	if err != nil {
		return nil, err
	}
	return New(sa, opts...)
}

// NewFromConfig builds a Facade from cfg. With the redis backend it
// connects to Redis, which Close releases. opts are applied after the
// values from cfg and may override them.
func NewFromConfig(ctx context.Context, cfg Config, opts ...Option) (*Facade, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sa, err := credentials.FromEnvironment(cfg.CredentialsEnv)
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithCacheKeyPrefix(cfg.CacheKeyPrefix),
		WithCustomTokenTTL(cfg.CustomTokenTTL),
		WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
	}
	if cfg.NegativeKeyCache {
		base = append(base, WithNegativeKeyCaching())
	}
	if cfg.LegacyMaxAgeMinutes {
		base = append(base, WithLegacyMaxAgeMinutes())
	}

	var client *redis.Client
	if cfg.CacheBackend == CacheBackendRedis {
		client, err = redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		base = append(base, WithCacheStore(cache.NewRedis(client, 0)))
	}

	f, err := New(sa, append(base, opts...)...)
	if err != nil {
		if client != nil {
			_ = client.Close()
		}
		return nil, err
	}
	if client != nil {
		f.closers = append(f.closers, client.Close)
	}
	return f, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Close releases connections opened by NewFromConfig.
func (f *Facade) Close() error {
	var errs []error
	for _, c := range f.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	f.closers = nil
	return errors.Join(errs...)
}

// ProjectID returns the Firebase project the facade issues and verifies
// tokens for.
func (f *Facade) ProjectID() string { return f.projectID }

// ---------------------------------------------------------------------------
// Custom tokens
// ---------------------------------------------------------------------------

// IssueCustomToken signs a custom token for uid. customClaims are nested
// under "claims" when not empty; tenantID sets tenant_id when not empty.
func (f *Facade) IssueCustomToken(ctx context.Context, uid string, customClaims map[string]any, tenantID string) (tok *token.Plain, err error) {
	ctx, span := f.tracer.Start(ctx, "firebasejwt.IssueCustomToken")
	defer func() { finishSpan(span, err) }()

	if uid == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "firebasejwt: uid is required")
	}
	b := f.builder.ForUser(uid).WithCustomClaims(customClaims)
	if tenantID != "" {
		b = b.ForTenant(tenantID)
	}
	tok, err = b.Token()
	if err != nil {
		return nil, err
	}
	f.logger.DebugContext(ctx, "firebasejwt: issued custom token",
		"custom_claims", len(customClaims),
		"tenant", tenantID != "",
		"ttl", b.TTL(),
	)
	return tok, nil
}

// ---------------------------------------------------------------------------
// Verification
// ---------------------------------------------------------------------------

// VerifyIDToken verifies an ID token. See verifier.Verifier for the
// errors it returns.
func (f *Facade) VerifyIDToken(ctx context.Context, jwt string, opts ...VerifyOption) (tok *token.Plain, err error) {
	ctx, span := f.tracer.Start(ctx, "firebasejwt.VerifyIDToken")
	defer func() { finishSpan(span, err) }()

	o := collect(opts)
	v := f.idTokens.WithExpectedTenantID(o.tenantID)
	if o.leeway != 0 {
		if v, err = v.WithLeeway(o.leeway); err != nil {
			return nil, err
		}
	}
	return v.Verify(ctx, jwt)
}

// VerifySessionCookie verifies a session cookie.
func (f *Facade) VerifySessionCookie(ctx context.Context, jwt string, opts ...VerifyOption) (tok *token.Plain, err error) {
	ctx, span := f.tracer.Start(ctx, "firebasejwt.VerifySessionCookie")
	defer func() { finishSpan(span, err) }()

	o := collect(opts)
	v := f.sessionCookies.WithExpectedTenantID(o.tenantID)
	if o.leeway != 0 {
		if v, err = v.WithLeeway(o.leeway); err != nil {
			return nil, err
		}
	}
	return v.Verify(ctx, jwt)
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// IDTokenVerifier returns the underlying ID token verifier. It is a value;
// deriving from it does not affect the facade.
func (f *Facade) IDTokenVerifier() verifier.IDTokenVerifier { return f.idTokens }

// SessionCookieVerifier returns the underlying session cookie verifier.
func (f *Facade) SessionCookieVerifier() verifier.SessionCookieVerifier { return f.sessionCookies }

// CustomTokenBuilder returns a builder for uid with the facade's signer,
// clock and TTL.
func (f *Facade) CustomTokenBuilder(uid string) customtoken.Builder {
	return f.builder.ForUser(uid)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func collect(opts []VerifyOption) verifyOptions {
	var o verifyOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if code := sserr.GetCode(err); code != "" {
			span.SetAttributes(attribute.String("error.code", string(code)))
		}
	}
	span.End()
}
