package repository

import (
	"context"
	"strconv"
	"time"
)

// =============================================================================
// Cache Interface (Redis or in-process)
// =============================================================================

// Cache defines the interface for caching operations.
type Cache interface {
	// Get retrieves a value by key.
	// Returns ErrCacheMiss if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with an optional TTL.
	// If ttl is 0, the value doesn't expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value by key.
	Delete(ctx context.Context, key string) error
}

// =============================================================================
// Common Cache Keys
// =============================================================================

// CacheKeys provides cache key generation.
var CacheKeys = cacheKeys{}

type cacheKeys struct{}

// Category returns a cache key for category metadata.
func (cacheKeys) Category(id int64) string {
	return "cache:category:" + strconv.FormatInt(id, 10)
}
