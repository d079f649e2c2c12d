// Package cache provides response caching backends.
//
// Backends store opaque byte payloads under string keys with a per-entry
// time-to-live:
//   - [NullCache]: caching disabled
//   - [FileCache]: one JSON file per entry under a directory (CLI default)
//   - [RedisCache]: shared cache for several serve instances
//
// Only raw poster info responses are cached. Board state is never cached or
// persisted.
package cache

import (
	"context"
	"time"
)

// Cache is the interface implemented by all backends.
type Cache interface {
	// Get returns the stored payload and true on a hit. A miss, including an
	// expired entry, is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of 0 means the entry never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// HTTPKey builds the cache key for a response fetched from url.
func HTTPKey(namespace, url string) string {
	return hashKey("http:"+namespace, url)
}
