package firebasejwt

import (
	"fmt"
	"time"

	"github.com/StricklySoft/firebase-jwt/pkg/clients/redis"
	"github.com/StricklySoft/firebase-jwt/pkg/config"
	"github.com/StricklySoft/firebase-jwt/pkg/credentials"
	sserr "github.com/StricklySoft/firebase-jwt/pkg/errors"
	"github.com/StricklySoft/firebase-jwt/pkg/keyset"
)

// EnvPrefix prefixes every variable read by NewConfigLoader.
const EnvPrefix = "FIREBASE_JWT"

// Cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config is the file and environment form of the facade options. Every
// field maps to FIREBASE_JWT_<env tag>; the Redis section maps to
// FIREBASE_JWT_REDIS_*.
type Config struct {
	// CredentialsEnv names the variable holding the service account, as
	// inline JSON or a file path.
	CredentialsEnv string `json:"credentials_env" yaml:"credentials_env" env:"CREDENTIALS_ENV" envDefault:"GOOGLE_APPLICATION_CREDENTIALS"`

	CacheBackend   string `json:"cache_backend" yaml:"cache_backend" env:"CACHE_BACKEND" envDefault:"memory"`
	CacheKeyPrefix string `json:"cache_key_prefix" yaml:"cache_key_prefix" env:"CACHE_KEY_PREFIX" envDefault:"bfj_"`

	// HTTPTimeout bounds each key set request.
	HTTPTimeout time.Duration `json:"http_timeout" yaml:"http_timeout" env:"HTTP_TIMEOUT" envDefault:"10s"`

	CustomTokenTTL time.Duration `json:"custom_token_ttl" yaml:"custom_token_ttl" env:"CUSTOM_TOKEN_TTL" envDefault:"5m"`

	// NegativeKeyCache trusts cached "unknown key id" answers until they
	// expire. See keyset.WithNegativeCaching.
	NegativeKeyCache bool `json:"negative_key_cache" yaml:"negative_key_cache" env:"NEGATIVE_KEY_CACHE"`

	// LegacyMaxAgeMinutes reads Cache-Control max-age as minutes.
	LegacyMaxAgeMinutes bool `json:"legacy_max_age_minutes" yaml:"legacy_max_age_minutes" env:"LEGACY_MAX_AGE_MINUTES"`

	// Redis is used when CacheBackend is "redis".
	Redis redis.Config `json:"redis" yaml:"redis" env:"REDIS"`
}

// Validate checks the values that have no usable fallback.
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if err := c.Redis.Validate(); err != nil {
			return sserr.Wrap(err, sserr.CodeValidation, "firebasejwt: invalid redis configuration")
		}
	default:
		return sserr.Newf(sserr.CodeValidationFormat,
			"firebasejwt: cache_backend must be %q or %q, got %q", CacheBackendMemory, CacheBackendRedis, c.CacheBackend)
	}
	if c.CacheKeyPrefix == "" {
		return sserr.New(sserr.CodeValidationRequired, "firebasejwt: cache_key_prefix must not be empty")
	}
	if c.HTTPTimeout <= 0 {
		return sserr.Newf(sserr.CodeValidationFormat, "firebasejwt: http_timeout must be positive, got %v", c.HTTPTimeout)
	}
	if c.CustomTokenTTL <= 0 {
		return sserr.Newf(sserr.CodeValidationFormat, "firebasejwt: custom_token_ttl must be positive, got %v", c.CustomTokenTTL)
	}
	return nil
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		CredentialsEnv: credentials.DefaultEnvVar,
		CacheBackend:   CacheBackendMemory,
		CacheKeyPrefix: keyset.DefaultKeyPrefix,
		HTTPTimeout:    keyset.DefaultHTTPTimeout,
		CustomTokenTTL: 5 * time.Minute,
	}
}

// NewConfigLoader returns a loader for Config reading FIREBASE_JWT_*
// variables and, when FIREBASE_JWT_CONFIG_FILE is set, that file.
func NewConfigLoader() *config.Loader {
	return config.New().WithEnvPrefix(EnvPrefix).WithFileFromEnv("CONFIG_FILE")
}

// LoadConfig loads a Config with l, or with NewConfigLoader when l is nil.
func LoadConfig(l *config.Loader) (Config, error) {
	if l == nil {
		l = NewConfigLoader()
	}
	var cfg Config
	if err := l.Load(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// String returns a log-safe summary. Redis credentials are never included.
func (c Config) String() string {
	return fmt.Sprintf("firebasejwt.Config{credentials_env: %s, cache_backend: %s, cache_key_prefix: %s, http_timeout: %v, custom_token_ttl: %v}",
		c.CredentialsEnv, c.CacheBackend, c.CacheKeyPrefix, c.HTTPTimeout, c.CustomTokenTTL)
}
