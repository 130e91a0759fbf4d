package repository

import "errors"

// Repository errors
var (
	// ErrStaleVersion indicates a conditional update lost against a
	// concurrent writer. The caller should reload and retry.
	ErrStaleVersion = errors.New("stale version")
)

// Cache errors
var (
	// ErrCacheMiss indicates the key was not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable indicates the cache is unavailable.
	ErrCacheUnavailable = errors.New("cache unavailable")
)
