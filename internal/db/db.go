// Package db holds the storage contracts shared by the Postgres and Redis stores.
package db

import (
	"context"
	"time"
)

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides the key-value operations of the embedding cache.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// MGet returns one entry per key, nil for missing keys.
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}
