package kv

import (
	"context"
	"path"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore implements Store on an in-process TTL cache. Used in tests and
// single-node deployments where Redis is not configured.
type MemoryStore struct {
	cache *gocache.Cache

	// mu serializes read-modify-write of recent lists; plain Get/Set rely on
	// the cache's own locking.
	mu sync.Mutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.cache.Set(key, value, ttlOrDefault(ttl))
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

func (s *MemoryStore) PushRecent(_ context.Context, key, value string, limit int, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []string
	if v, ok := s.cache.Get(key); ok {
		list = v.([]string)
	}
	list = append([]string{value}, list...)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	s.cache.Set(key, list, ttlOrDefault(ttl))
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, key string) ([]string, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, nil
	}
	list := v.([]string)
	out := make([]string, len(list))
	copy(out, list)
	return out, nil
}

func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	var keys []string
	for k := range s.cache.Items() {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *MemoryStore) Close() error {
	s.cache.Flush()
	return nil
}

var _ Store = (*MemoryStore)(nil)
