package firebasejwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/firebase-jwt/internal/testutil"
	"github.com/StricklySoft/firebase-jwt/pkg/config"
	sserr "github.com/StricklySoft/firebase-jwt/pkg/errors"
)

func configLoader(vars map[string]string) *config.Loader {
	return config.New().
		WithLookup(func(key string) (string, bool) {
			v, ok := vars[key]
			return v, ok
		}).
		WithEnvPrefix(EnvPrefix).
		WithFileFromEnv("CONFIG_FILE")
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig(configLoader(nil))
	require.NoError(t, err)

	want := DefaultConfig()
	assert.Equal(t, want.CredentialsEnv, cfg.CredentialsEnv)
	assert.Equal(t, want.CacheBackend, cfg.CacheBackend)
	assert.Equal(t, want.CacheKeyPrefix, cfg.CacheKeyPrefix)
	assert.Equal(t, want.HTTPTimeout, cfg.HTTPTimeout)
	assert.Equal(t, want.CustomTokenTTL, cfg.CustomTokenTTL)
	assert.False(t, cfg.NegativeKeyCache)
	assert.False(t, cfg.LegacyMaxAgeMinutes)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig(configLoader(map[string]string{
		"FIREBASE_JWT_CACHE_BACKEND":          "redis",
		"FIREBASE_JWT_CACHE_KEY_PREFIX":       "svc_",
		"FIREBASE_JWT_HTTP_TIMEOUT":           "3s",
		"FIREBASE_JWT_NEGATIVE_KEY_CACHE":     "true",
		"FIREBASE_JWT_LEGACY_MAX_AGE_MINUTES": "1",
		"FIREBASE_JWT_REDIS_HOST":             "redis.internal",
		"FIREBASE_JWT_REDIS_PASSWORD":         "hunter2",
	}))
	require.NoError(t, err)

	assert.Equal(t, CacheBackendRedis, cfg.CacheBackend)
	assert.Equal(t, "svc_", cfg.CacheKeyPrefix)
	assert.Equal(t, 3*time.Second, cfg.HTTPTimeout)
	assert.True(t, cfg.NegativeKeyCache)
	assert.True(t, cfg.LegacyMaxAgeMinutes)
	assert.Equal(t, "redis.internal", cfg.Redis.Host)
	assert.Equal(t, 6379, cfg.Redis.Port, "redis defaults are applied by validation")
	assert.Equal(t, "hunter2", cfg.Redis.Password.Value())
	assert.NotContains(t, cfg.String(), "hunter2")
}

func TestLoadConfig_File(t *testing.T) {
	t.Parallel()
	path := testutil.TempFile(t, "firebase.yaml", `
custom_token_ttl: 15m
cache_key_prefix: from_file_
redis:
  uri: redis://cache:6379/2
`)
	cfg, err := LoadConfig(configLoader(map[string]string{
		"FIREBASE_JWT_CONFIG_FILE":      path,
		"FIREBASE_JWT_CACHE_KEY_PREFIX": "from_env_",
	}))
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.CustomTokenTTL)
	assert.Equal(t, "from_env_", cfg.CacheKeyPrefix)
	assert.Equal(t, "redis://cache:6379/2", cfg.Redis.URI)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		code   sserr.Code
	}{
		{name: "unknown backend", mutate: func(c *Config) { c.CacheBackend = "disk" }, code: sserr.CodeValidationFormat},
		{name: "empty prefix", mutate: func(c *Config) { c.CacheKeyPrefix = "" }, code: sserr.CodeValidationRequired},
		{name: "zero timeout", mutate: func(c *Config) { c.HTTPTimeout = 0 }, code: sserr.CodeValidationFormat},
		{name: "negative ttl", mutate: func(c *Config) { c.CustomTokenTTL = -time.Minute }, code: sserr.CodeValidationFormat},
		{
			name: "bad redis uri",
			mutate: func(c *Config) {
				c.CacheBackend = CacheBackendRedis
				c.Redis.URI = "http://cache:6379"
			},
			code: sserr.CodeValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			testutil.RequireErrorCode(t, cfg.Validate(), tt.code)
		})
	}

	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_InvalidValue(t *testing.T) {
	t.Parallel()
	_, err := LoadConfig(configLoader(map[string]string{"FIREBASE_JWT_CUSTOM_TOKEN_TTL": "forever"}))
	testutil.RequireErrorCode(t, err, sserr.CodeInternalConfiguration)

	_, err = LoadConfig(configLoader(map[string]string{"FIREBASE_JWT_CACHE_BACKEND": "disk"}))
	testutil.RequireErrorCode(t, err, sserr.CodeValidationFormat)
}
