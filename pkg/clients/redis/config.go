package redis

import (
	"fmt"
	"net/url"
	"time"

	"github.com/StricklySoft/firebase-jwt/pkg/credentials"
)

// maxStatementTruncateLen bounds the db.statement span attribute.
const maxStatementTruncateLen = 100

// Defaults applied by [Config.Validate] to zero-valued fields.
const (
	DefaultHost          = "localhost"
	DefaultPort          = 6379
	DefaultPoolSize      = 10
	DefaultMinIdleConns  = 2
	DefaultMaxRetries    = 3
	DefaultDialTimeout   = 5 * time.Second
	DefaultReadTimeout   = 2 * time.Second
	DefaultWriteTimeout  = 2 * time.Second
	DefaultHealthTimeout = 5 * time.Second
)

// Config configures the Redis connection backing the shared key cache.
// Env tags carry no REDIS_ prefix because the struct is nested under a
// parent config whose env tag supplies it.
//
// When URI is set it takes precedence over Host, Port, DB and Password.
type Config struct {
	// URI is a connection string such as "redis://:password@host:6379/0"
	// or "rediss://host:6379/0" for TLS. When set, Host, Port, DB and
	// Password are ignored.
	// Environment variable: FIREBASE_JWT_REDIS_URI
	URI string `json:"uri,omitempty" yaml:"uri" env:"URI"`

	// Host is the server hostname or IP address.
	// Default: "localhost"
	// Environment variable: FIREBASE_JWT_REDIS_HOST
	Host string `json:"host,omitempty" yaml:"host" env:"HOST"`

	// Port is the server port.
	// Default: 6379
	// Environment variable: FIREBASE_JWT_REDIS_PORT
	Port int `json:"port,omitempty" yaml:"port" env:"PORT"`

	// DB is the database index.
	// Default: 0
	// Environment variable: FIREBASE_JWT_REDIS_DB
	DB int `json:"db" yaml:"db" env:"DB"`

	// Password authenticates the connection. It is a [credentials.Secret]
	// so it never appears in logs or JSON.
	// Environment variable: FIREBASE_JWT_REDIS_PASSWORD
	Password credentials.Secret `json:"-" yaml:"password" env:"PASSWORD"`

	// PoolSize is the maximum number of connections in the pool.
	// Default: 10
	// Environment variable: FIREBASE_JWT_REDIS_POOL_SIZE
	PoolSize int `json:"pool_size,omitempty" yaml:"pool_size" env:"POOL_SIZE"`

	// MinIdleConns is the number of idle connections kept open.
	// Default: 2
	// Environment variable: FIREBASE_JWT_REDIS_MIN_IDLE_CONNS
	MinIdleConns int `json:"min_idle_conns,omitempty" yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`

	// MaxRetries is the number of retries of a failed command. Set to -1
	// to disable retries.
	// Default: 3
	// Environment variable: FIREBASE_JWT_REDIS_MAX_RETRIES
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries" env:"MAX_RETRIES"`

	// DialTimeout bounds establishing a new connection.
	// Default: 5s
	// Environment variable: FIREBASE_JWT_REDIS_DIAL_TIMEOUT
	DialTimeout time.Duration `json:"dial_timeout,omitempty" yaml:"dial_timeout" env:"DIAL_TIMEOUT"`

	// ReadTimeout bounds reading a reply.
	// Default: 2s
	// Environment variable: FIREBASE_JWT_REDIS_READ_TIMEOUT
	ReadTimeout time.Duration `json:"read_timeout,omitempty" yaml:"read_timeout" env:"READ_TIMEOUT"`

	// WriteTimeout bounds writing a command.
	// Default: 2s
	// Environment variable: FIREBASE_JWT_REDIS_WRITE_TIMEOUT
	WriteTimeout time.Duration `json:"write_timeout,omitempty" yaml:"write_timeout" env:"WRITE_TIMEOUT"`

	// TLSEnabled turns on TLS 1.2+ for Host/Port connections. URI
	// connections use TLS when the scheme is rediss://.
	// Environment variable: FIREBASE_JWT_REDIS_TLS_ENABLED
	TLSEnabled bool `json:"tls_enabled,omitempty" yaml:"tls_enabled" env:"TLS_ENABLED"`
}

// Validate fills zero-valued fields with defaults and checks ranges.
func (c *Config) Validate() error {
	c.applyDefaults()

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return fmt.Errorf("redis: config URI is invalid: %w", err)
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return fmt.Errorf("redis: config URI scheme must be redis:// or rediss://, got %q", u.Scheme)
		}
		return nil
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("redis: config port must be between 1 and 65535, got %d", c.Port)
	}
	if c.DB < 0 {
		return fmt.Errorf("redis: config db must be >= 0, got %d", c.DB)
	}
	if c.MinIdleConns < 0 || c.PoolSize < c.MinIdleConns {
		return fmt.Errorf("redis: config pool_size (%d) must be >= min_idle_conns (%d) >= 0", c.PoolSize, c.MinIdleConns)
	}
	for name, d := range map[string]time.Duration{
		"dial_timeout":  c.DialTimeout,
		"read_timeout":  c.ReadTimeout,
		"write_timeout": c.WriteTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("redis: config %s must not be negative, got %v", name, d)
		}
	}
	return nil
}

// applyDefaults sets every zero-valued tunable to its Default* constant.
// DB and TLSEnabled have meaningful zero values and are left alone.
func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.MinIdleConns == 0 {
		c.MinIdleConns = DefaultMinIdleConns
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
}

// truncateStatement shortens s to maxStatementTruncateLen runes for use as
// a span attribute. Keys of the token cache are short, but callers may
// pass arbitrary prefixes.
func truncateStatement(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStatementTruncateLen {
		return s
	}
	return string(runes[:maxStatementTruncateLen]) + "..."
}
