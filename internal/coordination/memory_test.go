package coordination

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreValues(t *testing.T) {
	ctx := context.Background()

	t.Run("Should honor set-if-absent semantics", func(t *testing.T) {
		s := NewMemoryStore()
		ok, err := s.SetIfAbsent(ctx, "k", []byte("a"), time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.SetIfAbsent(ctx, "k", []byte("b"), time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		v, found, err := s.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []byte("a"), v)
	})

	t.Run("Should expire entries after their TTL", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Set(ctx, "k", []byte("v"), 10*time.Millisecond))

		time.Sleep(20 * time.Millisecond)
		_, found, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, found)

		ok, err := s.SetIfAbsent(ctx, "k", []byte("w"), time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "expired key counts as absent")
	})

	t.Run("Should delete by pattern within one namespace", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Set(ctx, "cache:cards:count", []byte("1"), time.Minute))
		require.NoError(t, s.Set(ctx, "cache:cards:page:0:size:20", []byte("2"), time.Minute))
		require.NoError(t, s.Set(ctx, "cache:other:count", []byte("3"), time.Minute))

		deleted, err := s.DeleteByPattern(ctx, "cache:cards:*")
		require.NoError(t, err)
		assert.Equal(t, 2, deleted)

		found, err := s.Exists(ctx, "cache:other:count")
		require.NoError(t, err)
		assert.True(t, found)
	})
}

func TestMemoryStoreUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("Should pass the current value to the mutator", func(t *testing.T) {
		s := NewMemoryStore()
		err := s.Update(ctx, "k", time.Minute, func(old []byte, exists bool) ([]byte, error) {
			assert.False(t, exists)
			return []byte("1"), nil
		})
		require.NoError(t, err)

		err = s.Update(ctx, "k", time.Minute, func(old []byte, exists bool) ([]byte, error) {
			assert.True(t, exists)
			assert.Equal(t, []byte("1"), old)
			return []byte("2"), nil
		})
		require.NoError(t, err)
	})

	t.Run("Should apply concurrent updates atomically", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Set(ctx, "counter", []byte("0"), time.Minute))

		const workers = 20
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.Update(ctx, "counter", time.Minute, func(old []byte, exists bool) ([]byte, error) {
					var n int
					if exists {
						fmt.Sscanf(string(old), "%d", &n)
					}
					return []byte(fmt.Sprintf("%d", n+1)), nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		v, found, err := s.Get(ctx, "counter")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, fmt.Sprintf("%d", workers), string(v))
	})
}

func TestMemoryStoreLists(t *testing.T) {
	ctx := context.Background()

	t.Run("Should pop from the tail in FIFO order", func(t *testing.T) {
		s := NewMemoryStore()
		for _, v := range []string{"a", "b", "c"} {
			require.NoError(t, s.ListPushLeft(ctx, "q", []byte(v)))
		}

		for _, want := range []string{"a", "b", "c"} {
			v, found, err := s.ListPopRight(ctx, "q")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, want, string(v))
		}

		_, found, err := s.ListPopRight(ctx, "q")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("Should time out a blocking pop on an empty list", func(t *testing.T) {
		s := NewMemoryStore()
		start := time.Now()
		_, found, err := s.ListPopRightBlocking(ctx, "q", 30*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, found)
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	})

	t.Run("Should unblock when a value arrives", func(t *testing.T) {
		s := NewMemoryStore()
		go func() {
			time.Sleep(20 * time.Millisecond)
			_ = s.ListPushLeft(ctx, "q", []byte("late"))
		}()

		v, found, err := s.ListPopRightBlocking(ctx, "q", time.Second)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "late", string(v))
	})

	t.Run("Should report range and length without consuming", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.ListPushLeft(ctx, "q", []byte("a")))
		require.NoError(t, s.ListPushLeft(ctx, "q", []byte("b")))

		n, err := s.ListLen(ctx, "q")
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		values, err := s.ListRange(ctx, "q")
		require.NoError(t, err)
		assert.Len(t, values, 2)

		n, err = s.ListLen(ctx, "q")
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
	})
}
