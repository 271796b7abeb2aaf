// Package coordination adapts the shared in-memory K/V store (Redis) that
// backs locks, rate-limit buckets, the cache namespace and the work queues.
// Every operation is atomic on the store; failures surface as ordinary errors
// and callers choose fail-open vs fail-closed.
package coordination

import (
	"context"
	"time"
)

// Store is the capability set the rest of the system depends on.
// Implementations: RedisStore (production), MemoryStore (tests, local runs).
type Store interface {
	// SetIfAbsent atomically creates key with a TTL. Returns false when the
	// key already exists.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)

	// DeleteByPattern removes every key matching a glob pattern and returns
	// the number deleted. Used for whole-namespace cache eviction.
	DeleteByPattern(ctx context.Context, pattern string) (int, error)

	// Update applies an atomic read-modify-write to key. fn receives the
	// current value (exists=false on absence) and returns the replacement.
	// Implementations retry on contention.
	Update(ctx context.Context, key string, ttl time.Duration, fn func(old []byte, exists bool) ([]byte, error)) error

	// Typed list operations backing the FIFO work queues.
	ListPushLeft(ctx context.Context, key string, value []byte) error
	ListPopRight(ctx context.Context, key string) ([]byte, bool, error)
	ListPopRightBlocking(ctx context.Context, key string, timeout time.Duration) ([]byte, bool, error)
	ListRange(ctx context.Context, key string) ([][]byte, error)
	ListLen(ctx context.Context, key string) (int64, error)
}
