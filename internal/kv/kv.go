// Package kv is the TTL'd key-value plane shared across requests:
// intervention records, cached entities, and the recent-sessions index all
// live here. Implementations must be safe for concurrent use; operations are
// atomic per key, which is the only locking the execution model needs.
package kv

import (
	"context"
	"time"
)

// Store is the key-value contract. Values are opaque strings (JSON encoded
// by callers); a zero TTL means no expiry.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes the value for key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// PushRecent prepends value to the bounded list at key, trimming it to
	// limit entries and refreshing the list's TTL.
	PushRecent(ctx context.Context, key, value string, limit int, ttl time.Duration) error

	// Recent returns the list at key, most recent first.
	Recent(ctx context.Context, key string) ([]string, error)

	// Keys returns all live keys matching the glob-style pattern.
	// Intended for cheap maintenance scans, not hot paths.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Close releases the underlying resources.
	Close() error
}
