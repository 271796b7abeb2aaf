package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"cardvault-backend/internal/coordination"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNamespace(t *testing.T) *Namespace {
	t.Helper()
	return NewNamespace(coordination.NewMemoryStore(), "cards", time.Minute, nil)
}

func TestGetOrCompute(t *testing.T) {
	ctx := context.Background()

	t.Run("Should invoke loader on miss and cache the result", func(t *testing.T) {
		ns := newTestNamespace(t)
		calls := 0

		loader := func(ctx context.Context) (string, error) {
			calls++
			return "value", nil
		}

		v, err := GetOrCompute(ctx, ns, "k", loader)
		require.NoError(t, err)
		assert.Equal(t, "value", v)
		assert.Equal(t, 1, calls)

		v, err = GetOrCompute(ctx, ns, "k", loader)
		require.NoError(t, err)
		assert.Equal(t, "value", v)
		assert.Equal(t, 1, calls, "second read should hit the cache")
	})

	t.Run("Should not cache loader errors", func(t *testing.T) {
		ns := newTestNamespace(t)
		calls := 0

		loader := func(ctx context.Context) (string, error) {
			calls++
			return "", errors.New("boom")
		}

		_, err := GetOrCompute(ctx, ns, "k", loader)
		assert.Error(t, err)
		_, err = GetOrCompute(ctx, ns, "k", loader)
		assert.Error(t, err)
		assert.Equal(t, 2, calls)
		assert.False(t, ns.Probe(ctx, "k"))
	})

	t.Run("Should overwrite a corrupt entry via the loader", func(t *testing.T) {
		ns := newTestNamespace(t)
		ns.PutBytes(ctx, "k", []byte("{not json"))

		v, err := GetOrCompute(ctx, ns, "k", func(ctx context.Context) (int, error) {
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, v)

		v, err = GetOrCompute(ctx, ns, "k", func(ctx context.Context) (int, error) {
			t.Fatal("loader should not run after the entry was repaired")
			return 0, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	})
}

func TestEvictAll(t *testing.T) {
	ctx := context.Background()
	store := coordination.NewMemoryStore()
	cards := NewNamespace(store, "cards", time.Minute, nil)
	other := NewNamespace(store, "other", time.Minute, nil)

	cards.Put(ctx, "count", 14000)
	cards.Put(ctx, "page:0:size:20", []string{"a"})
	other.Put(ctx, "count", 7)

	require.NoError(t, cards.EvictAll(ctx))

	assert.False(t, cards.Probe(ctx, "count"))
	assert.False(t, cards.Probe(ctx, "page:0:size:20"))
	assert.True(t, other.Probe(ctx, "count"), "eviction must be scoped to the namespace")
}
