package keyset

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/StricklySoft/firebase-jwt/internal/testutil"
	"github.com/StricklySoft/firebase-jwt/internal/testutil/fixtures"
	"github.com/StricklySoft/firebase-jwt/pkg/cache"
	"github.com/StricklySoft/firebase-jwt/pkg/clock"
	sserr "github.com/StricklySoft/firebase-jwt/pkg/errors"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	server *testutil.KeyServer
	clock  *clock.Frozen
	store  *cache.Memory
	pem    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pem := testutil.CertificatePEM(t, testutil.SharedRSAKey(t))
	c := clock.NewFrozen(t0)
	return &fixture{
		server: testutil.NewKeyServer(t, map[string]string{fixtures.KeyID: pem, fixtures.AltKeyID: "other"}),
		clock:  c,
		store:  cache.NewMemory(cache.WithClock(c)),
		pem:    pem,
	}
}

func (f *fixture) keySet(opts ...Option) *GooglePublicKeys {
	return NewGooglePublicKeys(f.server.URL, f.server.Client(), f.store, opts...)
}

func TestGooglePublicKeys_CacheHitWithinMaxAge(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.server.SetMaxAge(60)
	ks := f.keySet()
	ctx := context.Background()

	key, err := ks.FindKeyByID(ctx, fixtures.KeyID)
	require.NoError(t, err)
	assert.Equal(t, f.pem, key.Contents())
	assert.Equal(t, fixtures.KeyID, key.ID())

	f.clock.Advance(59 * time.Second)
	_, err = ks.FindKeyByID(ctx, fixtures.KeyID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.server.Hits(), "second lookup inside max-age must not hit the network")

	f.clock.Advance(2 * time.Second)
	_, err = ks.FindKeyByID(ctx, fixtures.KeyID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.server.Hits(), "lookup after max-age must refetch")
}

func TestGooglePublicKeys_LegacyMaxAgeMinutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.server.SetMaxAge(60)
	ks := f.keySet(WithLegacyMaxAgeMinutes())
	ctx := context.Background()

	_, err := ks.FindKeyByID(ctx, fixtures.KeyID)
	require.NoError(t, err)

	f.clock.Advance(59 * time.Minute)
	_, err = ks.FindKeyByID(ctx, fixtures.KeyID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.server.Hits())

	f.clock.Advance(2 * time.Minute)
	item, err := f.store.GetItem(ctx, DefaultKeyPrefix+fixtures.KeyID)
	require.NoError(t, err)
	assert.False(t, item.IsHit(), "entry must be gone 61 minutes after max-age=60")
}

func TestGooglePublicKeys_NoCacheControlKeepsEntry(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ks := f.keySet()
	ctx := context.Background()

	_, err := ks.FindKeyByID(ctx, fixtures.KeyID)
	require.NoError(t, err)
	f.clock.Advance(30 * 24 * time.Hour)
	_, err = ks.FindKeyByID(ctx, fixtures.KeyID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.server.Hits())
}

func TestGooglePublicKeys_MaxAgeZeroIsNotCached(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.server.SetMaxAge(0)
	ks := f.keySet()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := ks.FindKeyByID(ctx, fixtures.KeyID)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, f.server.Hits())
}

func TestGooglePublicKeys_MaxAgeIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	ks := NewGooglePublicKeys("http://unused", nil, nil)
	d, ok := ks.lifetime("public, MAX-AGE=120, must-revalidate")
	assert.True(t, ok)
	assert.Equal(t, 2*time.Minute, d)

	_, ok = ks.lifetime("no-store")
	assert.False(t, ok)

	d, ok = ks.lifetime("max-age=99999999999999999999999")
	assert.True(t, ok)
	assert.Greater(t, d, 100*365*24*time.Hour)
}

func TestGooglePublicKeys_UnknownKeyID(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.server.SetMaxAge(3600)
	ks := f.keySet()
	ctx := context.Background()

	_, err := ks.FindKeyByID(ctx, "rotated-away")
	testutil.RequireErrorCode(t, err, sserr.CodeKeyNotFound)
	assert.False(t, sserr.IsKeySet(err))
	assert.Contains(t, err.Error(), "`rotated-away`")

	item, err := f.store.GetItem(ctx, DefaultKeyPrefix+"rotated-away")
	require.NoError(t, err)
	assert.True(t, item.IsNull(), "an unknown id must be stored as null")

	_, err = ks.FindKeyByID(ctx, "rotated-away")
	testutil.RequireErrorCode(t, err, sserr.CodeKeyNotFound)
	assert.Equal(t, 2, f.server.Hits(), "a stored null is not trusted without negative caching")
}

func TestGooglePublicKeys_NegativeCaching(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.server.SetMaxAge(300)
	ks := f.keySet(WithNegativeCaching())
	ctx := context.Background()

	_, err := ks.FindKeyByID(ctx, "new-key")
	testutil.RequireErrorCode(t, err, sserr.CodeKeyNotFound)

	f.server.SetKeys(map[string]string{"new-key": f.pem})
	_, err = ks.FindKeyByID(ctx, "new-key")
	testutil.RequireErrorCode(t, err, sserr.CodeKeyNotFound, "inside the staleness window")
	assert.Equal(t, 1, f.server.Hits())

	f.clock.Advance(301 * time.Second)
	key, err := ks.FindKeyByID(ctx, "new-key")
	require.NoError(t, err)
	assert.Equal(t, f.pem, key.Contents())
	assert.Equal(t, 2, f.server.Hits())
}

func TestGooglePublicKeys_UnsuccessfulStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.server.SetResponse(http.StatusInternalServerError, "backend exploded")
	ks := f.keySet()

	_, err := ks.FindKeyByID(context.Background(), fixtures.KeyID)
	testutil.RequireErrorCode(t, err, sserr.CodeKeySet)
	assert.Contains(t, err.Error(), "(500)")
	assert.Contains(t, err.Error(), "backend exploded")
	assert.Contains(t, err.Error(), "The key set is invalid:")
	e, _ := sserr.AsError(err)
	assert.Equal(t, http.StatusInternalServerError, e.Details["status_code"])
}

func TestGooglePublicKeys_MalformedBodies(t *testing.T) {
	t.Parallel()
	bodies := map[string]string{
		"not json":         "{",
		"array":            `["a","b"]`,
		"string":           `"x"`,
		"null":             "null",
		"empty object":     "{}",
		"non-string value": `{"k": 1}`,
		"empty value":      `{"k": ""}`,
		"empty key":        `{"": "pem"}`,
		"nested object":    `{"k": {"pem": "x"}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.server.SetResponse(http.StatusOK, body)

			_, err := f.keySet().FindKeyByID(context.Background(), "k")
			testutil.RequireErrorCode(t, err, sserr.CodeKeySet)
			assert.Contains(t, err.Error(), "could not be parsed")
		})
	}
}

func TestGooglePublicKeys_OversizedBody(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.server.SetResponse(http.StatusOK, `{"k":"`+strings.Repeat("a", maxResponseBytes)+`"}`)

	_, err := f.keySet().FindKeyByID(context.Background(), "k")
	testutil.RequireErrorCode(t, err, sserr.CodeKeySet)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestGooglePublicKeys_NetworkError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	url := f.server.URL
	f.server.Close()

	ks := NewGooglePublicKeys(url, &http.Client{Timeout: time.Second}, f.store)
	_, err := ks.FindKeyByID(context.Background(), fixtures.KeyID)
	testutil.RequireErrorCode(t, err, sserr.CodeKeySet)
	assert.Contains(t, err.Error(), "network error")
	assert.True(t, sserr.IsRetryable(err))
}

func TestGooglePublicKeys_CanceledContext(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.keySet().FindKeyByID(ctx, fixtures.KeyID)
	testutil.RequireErrorCode(t, err, sserr.CodeKeySet)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGooglePublicKeys_CustomPrefix(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ks := f.keySet(WithKeyPrefix("tenant_a_"))
	ctx := context.Background()

	_, err := ks.FindKeyByID(ctx, fixtures.KeyID)
	require.NoError(t, err)

	item, err := f.store.GetItem(ctx, "tenant_a_"+fixtures.KeyID)
	require.NoError(t, err)
	v, ok := item.Get()
	assert.True(t, ok)
	assert.Equal(t, f.pem, v)

	item, err = f.store.GetItem(ctx, DefaultKeyPrefix+fixtures.KeyID)
	require.NoError(t, err)
	assert.False(t, item.IsHit())
}

func TestGooglePublicKeys_OnlyRequestedIDIsStored(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ks := f.keySet()
	ctx := context.Background()

	_, err := ks.FindKeyByID(ctx, fixtures.KeyID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.Len())

	_, err = ks.FindKeyByID(ctx, fixtures.AltKeyID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.server.Hits(), "each distinct id triggers its own fetch")
}

type failingStore struct{ err error }

func (s failingStore) GetItem(context.Context, string) (*cache.Item, error) { return nil, s.err }
func (s failingStore) Save(context.Context, *cache.Item) error { return s.err }

func TestGooglePublicKeys_StoreErrorPropagates(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	boom := sserr.New(sserr.CodeInternalCache, "store down")
	ks := NewGooglePublicKeys(f.server.URL, f.server.Client(), failingStore{err: boom})

	_, err := ks.FindKeyByID(context.Background(), fixtures.KeyID)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, f.server.Hits())
}

// gatedClient blocks every request until release is closed.
type gatedClient struct {
	inner   HTTPClient
	release chan struct{}
	calls   atomic.Int32
}

func (c *gatedClient) Do(req *http.Request) (*http.Response, error) {
	c.calls.Add(1)
	<-c.release
	return c.inner.Do(req)
}

func TestGooglePublicKeys_ConcurrentMissesShareOneFetch(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	gc := &gatedClient{inner: f.server.Client(), release: make(chan struct{})}
	ks := NewGooglePublicKeys(f.server.URL, gc, f.store)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ks.FindKeyByID(context.Background(), fixtures.KeyID)
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(gc.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), gc.calls.Load())
	assert.Equal(t, 1, f.server.Hits())
}

func TestGooglePublicKeys_CanceledCallerDoesNotFailOthers(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	gc := &gatedClient{inner: f.server.Client(), release: make(chan struct{})}
	ks := NewGooglePublicKeys(f.server.URL, gc, f.store)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := ks.FindKeyByID(firstCtx, fixtures.KeyID)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return gc.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	secondErr := make(chan error, 1)
	go func() {
		key, err := ks.FindKeyByID(context.Background(), fixtures.KeyID)
		if err == nil && key.Contents() != f.pem {
			err = fmt.Errorf("unexpected key contents %q", key.Contents())
		}
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	// The first caller gives up while the fetch is still blocked.
	cancel()
	err := <-firstErr
	testutil.RequireErrorCode(t, err, sserr.CodeKeySet)
	assert.ErrorIs(t, err, context.Canceled)

	close(gc.release)
	require.NoError(t, <-secondErr)
	assert.Equal(t, int32(1), gc.calls.Load())

	item, err := f.store.GetItem(context.Background(), DefaultKeyPrefix+fixtures.KeyID)
	require.NoError(t, err)
	assert.True(t, item.IsHit(), "the shared fetch must still populate the store")
}

func TestGooglePublicKeys_RecordsSpansAndMetrics(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.server.SetMaxAge(60)
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	ks := f.keySet(WithTracerProvider(tp), WithMetrics(m))
	ctx := context.Background()
	_, err = ks.FindKeyByID(ctx, fixtures.KeyID)
	require.NoError(t, err)
	_, err = ks.FindKeyByID(ctx, fixtures.KeyID)
	require.NoError(t, err)
	_, err = ks.FindKeyByID(ctx, "missing")
	require.Error(t, err)

	url := f.server.URL
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.lookups.WithLabelValues(url, "hit")))
	assert.Equal(t, 2.0, promtestutil.ToFloat64(m.lookups.WithLabelValues(url, "miss")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.fetches.WithLabelValues(url, "ok")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.fetches.WithLabelValues(url, "not_found")))

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{
		"keyset.Fetch", "keyset.FindKeyByID",
		"keyset.FindKeyByID",
		"keyset.Fetch", "keyset.FindKeyByID",
	}, names)
}

func TestNewMetrics_ReusesRegisteredCollectors(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	a, err := NewMetrics(reg)
	require.NoError(t, err)
	b, err := NewMetrics(reg)
	require.NoError(t, err)

	a.lookup("u", "hit")
	b.lookup("u", "hit")
	assert.Equal(t, 2.0, promtestutil.ToFloat64(a.lookups.WithLabelValues("u", "hit")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		nilMetrics.lookup("u", "hit")
		nilMetrics.fetched("u", "ok", 0.1)
	})
}

func TestNewIDTokenAndSessionCookieKeys_URLs(t *testing.T) {
	t.Parallel()
	assert.Equal(t, CertURLIDToken, NewIDTokenKeys(nil, nil).URL())
	assert.Equal(t, CertURLSessionCookie, NewSessionCookieKeys(nil, nil).URL())
	assert.Equal(t,
		"https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com",
		CertURLIDToken)
	assert.Equal(t,
		"https://www.googleapis.com/identitytoolkit/v3/relyingparty/publicKeys",
		CertURLSessionCookie)
}

func TestStatic_CountsLookups(t *testing.T) {
	t.Parallel()
	s := NewStatic(map[string]string{"a": "pem-a"})
	ctx := context.Background()

	k, err := s.FindKeyByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "pem-a", k.Contents())

	_, err = s.FindKeyByID(ctx, "b")
	testutil.RequireErrorCode(t, err, sserr.CodeKeyNotFound)

	s.Set("b", "pem-b")
	_, err = s.FindKeyByID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 3, s.Calls())
}

func TestKey_RSAPublicKey(t *testing.T) {
	t.Parallel()
	priv := testutil.SharedRSAKey(t)

	for name, pem := range map[string]string{
		"certificate": testutil.CertificatePEM(t, priv),
		"pkix":        testutil.PublicKeyPEM(t, priv),
	} {
		pub, err := NewKey("k", pem).RSAPublicKey()
		require.NoError(t, err, name)
		assert.True(t, priv.PublicKey.Equal(pub), name)
	}

	_, err := NewKey("k", "not a pem").RSAPublicKey()
	assert.Error(t, err)
}
