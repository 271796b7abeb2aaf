// Package cache implements the read-through cache namespace over the
// coordination store. Eviction is intentionally coarse: every catalog write
// clears the whole namespace, and warm-up rebuilds the hot set.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"cardvault-backend/internal/coordination"

	"go.uber.org/zap"
)

const keyPrefix = "cache:"

// Namespace is a logical group of cache keys evicted together.
type Namespace struct {
	store  coordination.Store
	name   string
	ttl    time.Duration
	logger *zap.Logger
}

// NewNamespace creates a namespace with a default TTL applied to every entry.
func NewNamespace(store coordination.Store, name string, ttl time.Duration, logger *zap.Logger) *Namespace {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Namespace{store: store, name: name, ttl: ttl, logger: logger}
}

// Name returns the namespace's logical name.
func (n *Namespace) Name() string { return n.name }

func (n *Namespace) fullKey(key string) string {
	return keyPrefix + n.name + ":" + key
}

// GetBytes returns the raw cached value for key.
// Store failures degrade to a cache miss.
func (n *Namespace) GetBytes(ctx context.Context, key string) ([]byte, bool) {
	data, found, err := n.store.Get(ctx, n.fullKey(key))
	if err != nil {
		n.logger.Warn("cache read failed, treating as miss",
			zap.String("namespace", n.name), zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return data, found
}

// PutBytes stores a raw value with the namespace default TTL.
// Store failures are logged, not surfaced: the caller already has the value.
func (n *Namespace) PutBytes(ctx context.Context, key string, value []byte) {
	if err := n.store.Set(ctx, n.fullKey(key), value, n.ttl); err != nil {
		n.logger.Warn("cache write failed",
			zap.String("namespace", n.name), zap.String("key", key), zap.Error(err))
	}
}

// Put marshals and stores a value under key.
func (n *Namespace) Put(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		n.logger.Warn("cache marshal failed",
			zap.String("namespace", n.name), zap.String("key", key), zap.Error(err))
		return
	}
	n.PutBytes(ctx, key, data)
}

// Probe reports whether key is present without altering recency.
func (n *Namespace) Probe(ctx context.Context, key string) bool {
	found, err := n.store.Exists(ctx, n.fullKey(key))
	if err != nil {
		return false
	}
	return found
}

// EvictAll removes every key in the namespace.
func (n *Namespace) EvictAll(ctx context.Context) error {
	deleted, err := n.store.DeleteByPattern(ctx, keyPrefix+n.name+":*")
	if err != nil {
		n.logger.Warn("cache eviction failed",
			zap.String("namespace", n.name), zap.Error(err))
		return err
	}
	n.logger.Info("cache namespace evicted",
		zap.String("namespace", n.name), zap.Int("deleted", deleted))
	return nil
}

// GetOrCompute returns the cached value for key, invoking loader on a miss
// and caching the result. Concurrent misses for the same key each invoke the
// loader; with coarse eviction and page-level keys that stampede is accepted.
func GetOrCompute[T any](ctx context.Context, n *Namespace, key string, loader func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if data, found := n.GetBytes(ctx, key); found {
		var cached T
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
		// Corrupt entry: fall through to the loader and overwrite.
	}

	value, err := loader(ctx)
	if err != nil {
		return zero, err
	}
	n.Put(ctx, key, value)
	return value, nil
}
