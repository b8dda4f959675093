// Package store provides the local key-value persistence that backs the
// sync queue across process restarts.
package store

import (
	"context"
)

// Store is a durable key-value store. Values are opaque bytes; callers own
// serialization.
type Store interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
}
