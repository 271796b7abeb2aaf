package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"cardvault-backend/internal/coordination"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore simulates a coordination store outage.
type failingStore struct {
	coordination.Store
}

func (f *failingStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func TestAcquireRelease(t *testing.T) {
	ctx := context.Background()
	locks := New(coordination.NewMemoryStore(), nil)

	t.Run("Should grant the lock to the first caller only", func(t *testing.T) {
		assert.True(t, locks.Acquire(ctx, "deck:1", time.Minute))
		assert.False(t, locks.Acquire(ctx, "deck:1", time.Minute))
	})

	t.Run("Should allow reacquisition after release", func(t *testing.T) {
		locks.Release(ctx, "deck:1")
		assert.True(t, locks.Acquire(ctx, "deck:1", time.Minute))
	})

	t.Run("Should scope locks by key", func(t *testing.T) {
		assert.True(t, locks.Acquire(ctx, "deck:2", time.Minute))
	})
}

func TestLeaseExpiry(t *testing.T) {
	ctx := context.Background()
	locks := New(coordination.NewMemoryStore(), nil)

	require.True(t, locks.Acquire(ctx, "deck:9", 10*time.Millisecond))
	assert.False(t, locks.Acquire(ctx, "deck:9", time.Minute))

	time.Sleep(20 * time.Millisecond)
	assert.True(t, locks.Acquire(ctx, "deck:9", time.Minute),
		"lease should auto-expire without an explicit release")
}

func TestAcquireFailsOpen(t *testing.T) {
	ctx := context.Background()
	locks := New(&failingStore{Store: coordination.NewMemoryStore()}, nil)

	assert.True(t, locks.Acquire(ctx, "deck:1", time.Minute),
		"store outage must not block writes; invariants are rechecked in the transaction")
}

func TestWithLock(t *testing.T) {
	ctx := context.Background()
	locks := New(coordination.NewMemoryStore(), nil)

	t.Run("Should run the action under the lock and release after", func(t *testing.T) {
		ran := false
		ok, err := locks.WithLock(ctx, "deck:5", time.Minute, func() error {
			ran = true
			// The lock is held inside the critical section.
			assert.False(t, locks.Acquire(ctx, "deck:5", time.Minute))
			return nil
		})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, ran)
		assert.True(t, locks.Acquire(ctx, "deck:5", time.Minute))
	})

	t.Run("Should report denial without running the action", func(t *testing.T) {
		require.True(t, locks.Acquire(ctx, "deck:6", time.Minute))
		ok, err := locks.WithLock(ctx, "deck:6", time.Minute, func() error {
			t.Fatal("action must not run when the lock is denied")
			return nil
		})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
