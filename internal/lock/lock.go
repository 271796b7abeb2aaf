// Package lock provides a per-key distributed mutex with auto-expiring
// leases, built on the coordination store's set-if-absent primitive.
//
// Ownership is implicit and unverified: Release deletes the key whether or
// not the caller still holds the lease. At worst a delayed holder deletes a
// successor's lease, which only causes a spurious race; the invariants the
// lock guards are revalidated inside DB transactions.
package lock

import (
	"context"
	"time"

	"cardvault-backend/internal/coordination"

	"go.uber.org/zap"
)

const lockPrefix = "lock:"

// DistributedLock serializes per-resource critical sections across replicas.
type DistributedLock struct {
	store  coordination.Store
	logger *zap.Logger
}

func New(store coordination.Store, logger *zap.Logger) *DistributedLock {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DistributedLock{store: store, logger: logger}
}

// Acquire attempts to take the lock for key with the given lease. If the
// coordination store is unreachable it returns true (fail-open): the lock is
// a latency optimization, not a safety boundary.
func (l *DistributedLock) Acquire(ctx context.Context, key string, lease time.Duration) bool {
	ok, err := l.store.SetIfAbsent(ctx, lockPrefix+key, []byte("locked"), lease)
	if err != nil {
		l.logger.Error("lock acquire failed, failing open",
			zap.String("key", key), zap.Error(err))
		return true
	}
	if ok {
		l.logger.Debug("lock acquired", zap.String("key", key))
	} else {
		l.logger.Debug("lock held by another process", zap.String("key", key))
	}
	return ok
}

// Release deletes the lock key unconditionally. Safe to call after the lease
// has already expired.
func (l *DistributedLock) Release(ctx context.Context, key string) {
	deleted, err := l.store.Delete(ctx, lockPrefix+key)
	if err != nil {
		l.logger.Error("lock release failed", zap.String("key", key), zap.Error(err))
		return
	}
	if deleted {
		l.logger.Debug("lock released", zap.String("key", key))
	} else {
		l.logger.Debug("lock key not found, lease may have expired", zap.String("key", key))
	}
}

// WithLock runs action while holding the lock. Returns false without running
// action when the lock is denied.
func (l *DistributedLock) WithLock(ctx context.Context, key string, lease time.Duration, action func() error) (bool, error) {
	if !l.Acquire(ctx, key, lease) {
		return false, nil
	}
	defer l.Release(ctx, key)
	return true, action()
}
