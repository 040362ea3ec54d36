package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const memoryShards = 16

// MemoryStore is the default process-local Store. The keyspace is split
// across a fixed number of shards so concurrent requests for unrelated keys
// do not contend on a single lock. Eviction is lazy: expired entries are
// removed when a read finds them stale.
type MemoryStore struct {
	shards [memoryShards]*memoryShard
}

type memoryShard struct {
	mu    sync.RWMutex
	store map[string]*Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{}
	for i := range m.shards {
		m.shards[i] = &memoryShard{store: make(map[string]*Entry)}
	}
	return m
}

func (m *MemoryStore) shard(key string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return m.shards[h.Sum32()%memoryShards]
}

// Get returns the entry for key, or ErrCacheMiss when absent or expired.
func (m *MemoryStore) Get(_ context.Context, key Key) (*Entry, error) {
	k := key.String()
	shard := m.shard(k)

	shard.mu.RLock()
	entry, ok := shard.store[k]
	shard.mu.RUnlock()

	if !ok {
		CacheMisses.WithLabelValues("memory").Inc()
		return nil, ErrCacheMiss
	}

	if entry.IsExpired() {
		shard.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have replaced it.
		if cur, ok := shard.store[k]; ok && cur.IsExpired() {
			delete(shard.store, k)
			CacheEntries.WithLabelValues("memory").Dec()
		}
		shard.mu.Unlock()
		CacheMisses.WithLabelValues("memory").Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("memory").Inc()
	return entry, nil
}

// Set stores or overwrites the entry, stamping CachedAt and ExpiresAt.
func (m *MemoryStore) Set(_ context.Context, key Key, entry *Entry, ttl time.Duration) error {
	now := time.Now()
	entry.CachedAt = now
	entry.ExpiresAt = now.Add(ttl)

	k := key.String()
	shard := m.shard(k)

	shard.mu.Lock()
	if _, ok := shard.store[k]; !ok {
		CacheEntries.WithLabelValues("memory").Inc()
	}
	shard.store[k] = entry
	shard.mu.Unlock()

	return nil
}

// Delete removes a single entry.
func (m *MemoryStore) Delete(_ context.Context, key Key) error {
	k := key.String()
	shard := m.shard(k)

	shard.mu.Lock()
	if _, ok := shard.store[k]; ok {
		delete(shard.store, k)
		CacheEntries.WithLabelValues("memory").Dec()
	}
	shard.mu.Unlock()

	return nil
}

// Clear removes all entries.
func (m *MemoryStore) Clear(_ context.Context) error {
	for _, shard := range m.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*Entry)
		shard.mu.Unlock()
	}
	CacheEntries.WithLabelValues("memory").Set(0)
	return nil
}

// Len returns the current number of entries across all shards.
func (m *MemoryStore) Len() int {
	total := 0
	for _, shard := range m.shards {
		shard.mu.RLock()
		total += len(shard.store)
		shard.mu.RUnlock()
	}
	return total
}
