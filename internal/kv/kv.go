// Package kv defines the persistent key/value medium behind the cache
// store and raw session flags. Values are strings; callers own serialization.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key is absent.
var ErrNotFound = errors.New("key not found")

// Store is a durable string-keyed medium that survives process restarts.
type Store interface {
	// Get returns the value for key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}
