// Package cache is the key/value store behind the public key cache. A
// [Store] returns an [Item] for a key and persists items; an item holds a
// string, an explicit null (a tombstone), or nothing at all (a miss).
//
// Two stores are provided: [Memory], a process-local store on top of
// patrickmn/go-cache, and [Redis], a shared store for fleets of verifiers.
package cache

import (
	"context"
	"time"
)

// Store loads and saves cache items. Implementations must be safe for
// concurrent use.
type Store interface {
	// GetItem returns the item stored under key. A missing or expired
	// entry is returned as an item whose IsHit is false, never as an error.
	GetItem(ctx context.Context, key string) (*Item, error)

	// Save persists item. An item with an explicit non-positive lifetime
	// removes any stored value instead.
	Save(ctx context.Context, item *Item) error
}

// Item is one cache entry. The zero lifetime state means "no explicit
// expiry", which defers to the store's default policy.
type Item struct {
	key    string
	hit    bool
	value  *string
	ttl    time.Duration
	hasTTL bool
}

// NewItem returns an empty, missed item for key.
func NewItem(key string) *Item {
	return &Item{key: key}
}

func newHit(key string, value *string) *Item {
	return &Item{key: key, hit: true, value: value}
}

// Key returns the cache key the item was loaded or created for.
func (i *Item) Key() string { return i.key }

// IsHit reports whether the store had a live entry for the key. A stored
// null is still a hit.
func (i *Item) IsHit() bool { return i.hit }

// Get returns the stored string. ok is false for a miss and for a null.
func (i *Item) Get() (value string, ok bool) {
	if i.value == nil {
		return "", false
	}
	return *i.value, true
}

// IsNull reports whether the item holds an explicit null.
func (i *Item) IsNull() bool { return i.hit && i.value == nil }

// Set replaces the value.
func (i *Item) Set(value string) *Item {
	i.value = &value
	return i
}

// SetNull makes the item an explicit null.
func (i *Item) SetNull() *Item {
	i.value = nil
	return i
}

// ExpiresAfter sets an explicit lifetime. Zero or negative means the item
// is already stale and will not be kept.
func (i *Item) ExpiresAfter(d time.Duration) *Item {
	i.ttl = d
	i.hasTTL = true
	return i
}

// Expiry returns the explicit lifetime, if one was set.
func (i *Item) Expiry() (time.Duration, bool) {
	return i.ttl, i.hasTTL
}
