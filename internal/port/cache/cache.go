// Package cache defines the port interface for the poller read cache.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching. The engine uses it to
// absorb repeated Get polling against terminal requests; entries are only
// ever written once a request can no longer change.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
