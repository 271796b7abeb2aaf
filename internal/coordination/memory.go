package coordination

import (
	"context"
	"path"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and single-node local
// runs. Semantics mirror RedisStore: lazy TTL expiry, glob pattern matching,
// FIFO lists pushed at the head and popped at the tail.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]memoryEntry
	lists  map[string][][]byte
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]memoryEntry),
		lists:  make(map[string][][]byte),
	}
}

func (s *MemoryStore) get(key string) ([]byte, bool) {
	e, ok := s.values[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(s.values, key)
		return nil, false
	}
	return e.value, true
}

func (s *MemoryStore) set(key string, value []byte, ttl time.Duration) {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.values[key] = e
}

func (s *MemoryStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.get(key); ok {
		return false, nil
	}
	s.set(key, value, ttl)
	return true, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.get(key)
	return v, ok, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(key, value, ttl)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.get(key); ok {
		delete(s.values, key)
		return true, nil
	}
	if _, ok := s.lists[key]; ok {
		delete(s.lists, key)
		return true, nil
	}
	return false, nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.get(key)
	return ok, nil
}

func (s *MemoryStore) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key := range s.values {
		if ok, _ := path.Match(pattern, key); ok {
			delete(s.values, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) Update(ctx context.Context, key string, ttl time.Duration, fn func(old []byte, exists bool) ([]byte, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, exists := s.get(key)
	next, err := fn(old, exists)
	if err != nil {
		return err
	}
	s.set(key, next, ttl)
	return nil
}

func (s *MemoryStore) ListPushLeft(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := append([]byte(nil), value...)
	s.lists[key] = append([][]byte{v}, s.lists[key]...)
	return nil
}

func (s *MemoryStore) ListPopRight(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.popRight(key)
}

func (s *MemoryStore) popRight(key string) ([]byte, bool, error) {
	list := s.lists[key]
	if len(list) == 0 {
		return nil, false, nil
	}
	v := list[len(list)-1]
	s.lists[key] = list[:len(list)-1]
	if len(s.lists[key]) == 0 {
		delete(s.lists, key)
	}
	return v, true, nil
}

func (s *MemoryStore) ListPopRightBlocking(ctx context.Context, key string, timeout time.Duration) ([]byte, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		v, ok, err := s.popRight(key)
		s.mu.Unlock()
		if err != nil || ok {
			return v, ok, err
		}
		if time.Now().After(deadline) {
			return nil, false, nil
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (s *MemoryStore) ListRange(ctx context.Context, key string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[key]
	out := make([][]byte, len(list))
	for i, v := range list {
		out[i] = append([]byte(nil), v...)
	}
	return out, nil
}

func (s *MemoryStore) ListLen(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.lists[key])), nil
}
