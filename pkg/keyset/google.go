package keyset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/StricklySoft/firebase-jwt/pkg/cache"
	sserr "github.com/StricklySoft/firebase-jwt/pkg/errors"
)

// ---------------------------------------------------------------------------
// Limits and defaults
// ---------------------------------------------------------------------------

const tracerName = "github.com/StricklySoft/firebase-jwt/pkg/keyset"

// DefaultKeyPrefix namespaces cache entries so the store can be shared.
const DefaultKeyPrefix = "bfj_"

// DefaultHTTPTimeout bounds fetches made with the default HTTP client.
const DefaultHTTPTimeout = 10 * time.Second

const (
	// maxResponseBytes limits the key document read from the endpoint.
	maxResponseBytes = 1 << 20

	// maxErrorBodyBytes limits how much of an error body ends up in the
	// error message.
	maxErrorBodyBytes = 512
)

var maxAgePattern = regexp.MustCompile(`(?i)max-age=(\d+)`)

// ---------------------------------------------------------------------------
// HTTPClient interface
// ---------------------------------------------------------------------------

// HTTPClient sends the key document request. *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ---------------------------------------------------------------------------
// GooglePublicKeys and its options
// ---------------------------------------------------------------------------

// GooglePublicKeys is a KeySet backed by a Google public key endpoint.
//
// For each lookup it first consults the store under prefix+id. On a miss
// it downloads the whole document, keeps only the requested entry (or a
// null when the id is unknown) and stores it with the response's max-age
// as lifetime. Concurrent misses for the same id share one request. No
// retries are attempted.
//
// A GooglePublicKeys is safe for concurrent use when its HTTPClient and
// Store are.
type GooglePublicKeys struct {
	url           string
	client        HTTPClient
	store         cache.Store
	prefix        string
	negative      bool
	legacyMinutes bool
	logger        *slog.Logger
	metrics       *Metrics
	tracer        trace.Tracer
	group         singleflight.Group
}

var _ KeySet = (*GooglePublicKeys)(nil)

// Option configures a GooglePublicKeys.
type Option func(*GooglePublicKeys)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(g *GooglePublicKeys) { g.prefix = prefix }
}

// WithNegativeCaching makes a stored null for an id answer KeyNotFound
// without contacting the endpoint. A key rotated in after the null was
// stored is then reported missing until the entry expires, so the
// staleness bound equals the max-age of the response that produced it.
func WithNegativeCaching() Option {
	return func(g *GooglePublicKeys) { g.negative = true }
}

// WithLegacyMaxAgeMinutes interprets max-age as minutes instead of
// seconds, for deployments that depend on the longer cache lifetime.
func WithLegacyMaxAgeMinutes() Option {
	return func(g *GooglePublicKeys) { g.legacyMinutes = true }
}

// WithLogger sets the logger used for debug events.
func WithLogger(l *slog.Logger) Option {
	return func(g *GooglePublicKeys) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMetrics records lookups and fetches on m.
func WithMetrics(m *Metrics) Option {
	return func(g *GooglePublicKeys) { g.metrics = m }
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(g *GooglePublicKeys) {
		if tp != nil {
			g.tracer = tp.Tracer(tracerName)
		}
	}
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// NewGooglePublicKeys returns a key set fetching from url. A nil client
// uses an *http.Client with DefaultHTTPTimeout; a nil store uses a fresh
// cache.Memory.
func NewGooglePublicKeys(url string, client HTTPClient, store cache.Store, opts ...Option) *GooglePublicKeys {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if store == nil {
		store = cache.NewMemory()
	}
	g := &GooglePublicKeys{
		url:    url,
		client: client,
		store:  store,
		prefix: DefaultKeyPrefix,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewIDTokenKeys returns a key set for CertURLIDToken.
func NewIDTokenKeys(client HTTPClient, store cache.Store, opts ...Option) *GooglePublicKeys {
	return NewGooglePublicKeys(CertURLIDToken, client, store, opts...)
}

// NewSessionCookieKeys returns a key set for CertURLSessionCookie.
func NewSessionCookieKeys(client HTTPClient, store cache.Store, opts ...Option) *GooglePublicKeys {
	return NewGooglePublicKeys(CertURLSessionCookie, client, store, opts...)
}

// URL returns the endpoint the key set fetches from.
func (g *GooglePublicKeys) URL() string { return g.url }

// ---------------------------------------------------------------------------
// Lookup and fetch
// ---------------------------------------------------------------------------

// FindKeyByID returns the key identified by id. Concurrent misses for the
// same id share one fetch. A caller whose context ends while waiting gets
// a KeySet error wrapping ctx.Err(); the fetch itself continues for the
// remaining callers and still populates the store.
func (g *GooglePublicKeys) FindKeyByID(ctx context.Context, id string) (key Key, err error) {
	ctx, span := g.tracer.Start(ctx, "keyset.FindKeyByID", trace.WithAttributes(
		attribute.String("keyset.url", g.url),
		attribute.String("keyset.kid", id),
	))
	defer func() { finishSpan(span, err) }()

	cacheKey := g.prefix + id
	item, err := g.store.GetItem(ctx, cacheKey)
	if err != nil {
		return Key{}, err
	}

	if pem, ok := item.Get(); item.IsHit() && ok && pem != "" {
		span.SetAttributes(attribute.Bool("keyset.cache_hit", true))
		g.metrics.lookup(g.url, "hit")
		g.logger.DebugContext(ctx, "keyset: cache hit", "kid", id, "url", g.url)
		return NewKey(id, pem), nil
	}
	if g.negative && item.IsNull() {
		span.SetAttributes(attribute.Bool("keyset.cache_hit", true))
		g.metrics.lookup(g.url, "hit")
		return Key{}, sserr.KeyNotFound(id)
	}

	span.SetAttributes(attribute.Bool("keyset.cache_hit", false))
	g.metrics.lookup(g.url, "miss")

	if err := ctx.Err(); err != nil {
		return Key{}, keySetError(err, "lookup of key %q at %s was abandoned", id, g.url)
	}

	// The shared fetch must outlive any single caller: it runs detached
	// from cancellation and is bounded by the HTTP client's timeout, while
	// each caller stops waiting when its own context is done.
	fetchCtx := context.WithoutCancel(ctx)
	ch := g.group.DoChan(cacheKey, func() (any, error) {
		return g.fetch(fetchCtx, id, cacheKey)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return Key{}, keySetError(ctx.Err(), "lookup of key %q at %s was abandoned", id, g.url)
	}
	if res.Err != nil {
		return Key{}, res.Err
	}
	pem := res.Val.(*string)
	if pem == nil {
		return Key{}, sserr.KeyNotFound(id)
	}
	return NewKey(id, *pem), nil
}

// fetch downloads the document, stores the entry for id and returns its
// PEM, or nil when the document has no such id.
func (g *GooglePublicKeys) fetch(ctx context.Context, id, cacheKey string) (pem *string, err error) {
	ctx, span := g.tracer.Start(ctx, "keyset.Fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("keyset.url", g.url)),
	)
	start := time.Now()
	defer func() {
		result := "ok"
		switch {
		case err != nil:
			result = "error"
		case pem == nil:
			result = "not_found"
		}
		g.metrics.fetched(g.url, result, time.Since(start).Seconds())
		finishSpan(span, err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err != nil {
		return nil, keySetError(err, "could not build the request for %s", g.url)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, keySetError(err, "network error while fetching Google public keys from %s", g.url)
	}
	defer func() { _ = resp.Body.Close() }()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, sserr.KeySetf("the call to %s returned an unsuccessful response: (%d) %s",
			g.url, resp.StatusCode, body).WithDetail("status_code", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, keySetError(err, "could not read the response from %s", g.url)
	}
	if len(body) > maxResponseBytes {
		return nil, sserr.KeySetf("the response from %s exceeds %d bytes", g.url, maxResponseBytes)
	}

	keys, err := parseKeys(body)
	if err != nil {
		return nil, keySetError(err, "the response from %s could not be parsed", g.url)
	}

	item := cache.NewItem(cacheKey)
	if v, ok := keys[id]; ok {
		pem = &v
		item.Set(v)
	} else {
		item.SetNull()
	}

	ttl, hasTTL := g.lifetime(resp.Header.Get("Cache-Control"))
	if hasTTL {
		item.ExpiresAfter(ttl)
	}
	if err := g.store.Save(ctx, item); err != nil {
		return nil, err
	}

	g.logger.DebugContext(ctx, "keyset: fetched public keys",
		"url", g.url,
		"key_count", len(keys),
		"kid", id,
		"found", pem != nil,
		"ttl", ttl,
	)
	return pem, nil
}

// ---------------------------------------------------------------------------
// Response handling helpers
// ---------------------------------------------------------------------------

// lifetime extracts max-age from a Cache-Control header value.
func (g *GooglePublicKeys) lifetime(cacheControl string) (time.Duration, bool) {
	m := maxAgePattern.FindStringSubmatch(cacheControl)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		n = math.MaxInt64
	}
	unit := time.Second
	if g.legacyMinutes {
		unit = time.Minute
	}
	if n > int64(math.MaxInt64/unit) {
		return time.Duration(math.MaxInt64), true
	}
	return time.Duration(n) * unit, true
}

// parseKeys decodes a non-empty JSON object whose keys and values are all
// non-empty strings.
func parseKeys(body []byte) (map[string]string, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("key document is empty")
	}
	keys := make(map[string]string, len(raw))
	for id, v := range raw {
		pem, ok := v.(string)
		if id == "" || !ok || pem == "" {
			return nil, fmt.Errorf("key document entry %q is not a non-empty string", id)
		}
		keys[id] = pem
	}
	return keys, nil
}

func keySetError(cause error, format string, args ...any) *sserr.Error {
	e := sserr.KeySetf(format, args...)
	e.Cause = cause
	return e
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
