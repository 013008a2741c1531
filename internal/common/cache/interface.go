package cache

import (
	"context"
	"time"
)

// Cache defines the key-value operations the grading runner persists through.
// Implementations must treat a missing key as an empty value, not an error.
type Cache interface {
	BasicOps
	HashOps

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	// Get retrieves the value for the given key
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair with optional TTL
	// If ttl is 0, the key will not expire
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Del deletes one or more keys
	Del(ctx context.Context, keys ...string) error

	// Expire sets a timeout on a key
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// HashOps defines hash operations
type HashOps interface {
	// HGetAll returns all fields of a hash, empty when the key is absent
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// HMSet sets multiple hash fields
	HMSet(ctx context.Context, key string, fields map[string]interface{}) error
}
