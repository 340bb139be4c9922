package cache

import (
	"context"
	"encoding/json"
	"time"

	sserr "github.com/StricklySoft/firebase-jwt/pkg/errors"
)

// RedisClient is the part of *redis.Client (pkg/clients/redis) the Redis
// store uses.
type RedisClient interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
}

// Redis is a Store shared by every process pointed at the same server.
// Values are stored as JSON so that a null tombstone survives the round
// trip; expiry is delegated to Redis.
//
// Stored values:
//
//	"\"-----BEGIN CERTIFICATE-----...\""   a key
//	"null"                                 a tombstone
type Redis struct {
	client     RedisClient
	defaultTTL time.Duration
}

var _ Store = (*Redis)(nil)

// NewRedis returns a Redis store. defaultTTL applies to items saved without
// an explicit expiry; zero keeps them until evicted.
func NewRedis(client RedisClient, defaultTTL time.Duration) *Redis {
	return &Redis{client: client, defaultTTL: defaultTTL}
}

// GetItem implements Store. A value that is not valid JSON is
// reported as an error rather than a miss.
func (r *Redis) GetItem(ctx context.Context, key string) (*Item, error) {
	raw, found, err := r.client.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return NewItem(key), nil
	}
	var v *string
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeInternalCache, "cache: entry %q is not valid JSON", key)
	}
	return newHit(key, v), nil
}

// Save implements Store. The Redis TTL carries the item's lifetime; items
// without one use the store's default TTL.
func (r *Redis) Save(ctx context.Context, item *Item) error {
	ttl, explicit := item.Expiry()
	if !explicit {
		ttl = r.defaultTTL
	} else if ttl <= 0 {
		_, err := r.client.Del(ctx, item.key)
		return err
	}

	data, err := json.Marshal(item.value)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeInternalCache, "cache: failed to encode entry")
	}
	return r.client.Set(ctx, item.key, string(data), ttl)
}
