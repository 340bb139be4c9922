package firebasejwt

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/firebase-jwt/pkg/cache"
	"github.com/StricklySoft/firebase-jwt/pkg/clock"
	"github.com/StricklySoft/firebase-jwt/pkg/customtoken"
	"github.com/StricklySoft/firebase-jwt/pkg/keyset"
)

type options struct {
	clock          clock.Clock
	httpClient     keyset.HTTPClient
	store          cache.Store
	logger         *slog.Logger
	metrics        *keyset.Metrics
	tracerProvider trace.TracerProvider
	keyPrefix      string
	tokenTTL       time.Duration
	negative       bool
	legacyMinutes  bool
	idTokenKeys    keyset.KeySet
	sessionKeys    keyset.KeySet
}

func defaultOptions() options {
	return options{
		clock:          clock.System(),
		logger:         slog.Default(),
		tracerProvider: otel.GetTracerProvider(),
		keyPrefix:      keyset.DefaultKeyPrefix,
		tokenTTL:       customtoken.DefaultTTL,
	}
}

// Option configures a Facade.
type Option func(*options)

// WithClock replaces the system clock for issuing and verifying.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithHTTPClient sets the client used to download public keys. The
// default is an *http.Client with keyset.DefaultHTTPTimeout.
func WithHTTPClient(c keyset.HTTPClient) Option {
	return func(o *options) { o.httpClient = c }
}

// WithCacheStore shares a key cache, for example a cache.Redis, instead
// of a per-facade cache.Memory.
func WithCacheStore(s cache.Store) Option {
	return func(o *options) { o.store = s }
}

// WithLogger sets the logger for debug events of the facade and its key
// sets. A nil logger keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records key set activity on m.
func WithMetrics(m *keyset.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracerProvider records spans on tp instead of the global provider.
// A nil provider is ignored.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithCacheKeyPrefix namespaces the facade's cache entries. ID token and
// session cookie keys get distinct sub-prefixes below it.
func WithCacheKeyPrefix(prefix string) Option {
	return func(o *options) { o.keyPrefix = prefix }
}

// WithCustomTokenTTL sets the lifetime of issued custom tokens.
func WithCustomTokenTTL(d time.Duration) Option {
	return func(o *options) { o.tokenTTL = d }
}

// WithNegativeKeyCaching enables keyset.WithNegativeCaching on both key
// sets.
func WithNegativeKeyCaching() Option {
	return func(o *options) { o.negative = true }
}

// WithLegacyMaxAgeMinutes enables keyset.WithLegacyMaxAgeMinutes on both
// key sets.
func WithLegacyMaxAgeMinutes() Option {
	return func(o *options) { o.legacyMinutes = true }
}

// WithIDTokenKeys replaces the Google key set used for ID tokens, for
// example with a keyset.Static in tests.
func WithIDTokenKeys(ks keyset.KeySet) Option {
	return func(o *options) { o.idTokenKeys = ks }
}

// WithSessionCookieKeys replaces the Google key set used for session
// cookies.
func WithSessionCookieKeys(ks keyset.KeySet) Option {
	return func(o *options) { o.sessionKeys = ks }
}

// VerifyOption adjusts a single verification.
type VerifyOption func(*verifyOptions)

type verifyOptions struct {
	tenantID string
	leeway   time.Duration
}

// WithExpectedTenantID requires firebase.tenant to equal tenantID.
func WithExpectedTenantID(tenantID string) VerifyOption {
	return func(o *verifyOptions) { o.tenantID = tenantID }
}

// WithLeeway tolerates d of clock skew. A negative d makes verification
// fail with validation.ErrLeewayCannotBeNegative.
func WithLeeway(d time.Duration) VerifyOption {
	return func(o *verifyOptions) { o.leeway = d }
}
