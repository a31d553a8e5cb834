// Package cache defines the port interface for key-value caching. The
// gateway's primary use is delivery de-duplication: the delivery key of
// every accepted event is recorded with a TTL, and repeats are dropped.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
