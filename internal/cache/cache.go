// Package cache provides the TTL cache used by the tool invocation layer.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or its entry has expired.
var ErrNotFound = errors.New("cache: key not found")

// Cache is a byte-value TTL cache.
type Cache interface {
	// Get returns the value for key, or ErrNotFound when absent/expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key for ttl. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
