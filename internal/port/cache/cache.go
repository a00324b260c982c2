// Package cache defines the port interface for caching and small key-value
// persistence.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching. A zero ttl means the
// entry does not expire on its own.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
