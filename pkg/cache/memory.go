package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/StricklySoft/firebase-jwt/pkg/clock"
)

// DefaultCleanupInterval is how often Memory purges expired entries.
const DefaultCleanupInterval = 10 * time.Minute

// Memory is an in-process Store. Freshness is judged against the injected
// clock, so tests can move time without sleeping; go-cache only reclaims
// memory in the background.
//
// go-cache is created with NoExpiration; per-entry reclaim durations only
// drive its janitor. A Memory is safe for concurrent use.
type Memory struct {
	// c holds memoryEntry values keyed by cache key.
	c *gocache.Cache

	// clock decides whether an entry is still fresh.
	clock clock.Clock

	// defaultTTL applies to items saved without ExpiresAfter.
	defaultTTL time.Duration
}

var _ Store = (*Memory)(nil)

// memoryEntry is what Memory stores in go-cache. A nil value is a null
// tombstone; a zero expiresAt never expires.
type memoryEntry struct {
	value     *string
	expiresAt time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*memoryOptions)

// memoryOptions collects MemoryOption values before the store is built.
type memoryOptions struct {
	clock           clock.Clock
	defaultTTL      time.Duration
	cleanupInterval time.Duration
}

// WithClock sets the time source used to judge expiry.
func WithClock(c clock.Clock) MemoryOption {
	return func(o *memoryOptions) { o.clock = c }
}

// WithDefaultTTL sets the lifetime of items saved without an explicit
// expiry. Zero, the default, keeps them until the process exits.
func WithDefaultTTL(d time.Duration) MemoryOption {
	return func(o *memoryOptions) { o.defaultTTL = d }
}

// WithCleanupInterval sets how often expired entries are purged.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(o *memoryOptions) { o.cleanupInterval = d }
}

// NewMemory returns an empty Memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	o := memoryOptions{clock: clock.System(), cleanupInterval: DefaultCleanupInterval}
	for _, opt := range opts {
		opt(&o)
	}
	return &Memory{
		c:          gocache.New(gocache.NoExpiration, o.cleanupInterval),
		clock:      o.clock,
		defaultTTL: o.defaultTTL,
	}
}

// GetItem implements Store. Expiry is judged against the configured clock,
// so an entry past its deadline is a miss even before go-cache evicts it.
func (m *Memory) GetItem(_ context.Context, key string) (*Item, error) {
	raw, ok := m.c.Get(key)
	if !ok {
		return NewItem(key), nil
	}
	e := raw.(memoryEntry)
	if !e.expiresAt.IsZero() && !m.clock.Now().Before(e.expiresAt) {
		m.c.Delete(key)
		return NewItem(key), nil
	}
	return newHit(key, e.value), nil
}

// Save implements Store. An item with a non-positive lifetime is removed
// instead of stored.
func (m *Memory) Save(_ context.Context, item *Item) error {
	ttl, explicit := item.Expiry()
	if !explicit {
		ttl = m.defaultTTL
	} else if ttl <= 0 {
		m.c.Delete(item.key)
		return nil
	}

	e := memoryEntry{value: item.value}
	reclaim := gocache.NoExpiration
	if ttl > 0 {
		e.expiresAt = m.clock.Now().Add(ttl)
		reclaim = ttl
	}
	m.c.Set(item.key, e, reclaim)
	return nil
}

// Len returns the number of stored entries, including expired ones not
// yet purged.
func (m *Memory) Len() int { return m.c.ItemCount() }

// Flush removes every entry.
func (m *Memory) Flush() { m.c.Flush() }
