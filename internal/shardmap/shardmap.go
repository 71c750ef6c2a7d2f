package shardmap

import (
	"hash/fnv"
	"sync"
)

const numShards = 64

// shard is a single partition of the sharded map.
type shard[V any] struct {
	mu    sync.Mutex
	items map[string]V
}

// Map is a concurrent map split into fixed shards to reduce lock
// contention on the admission hot path. Entry creation is atomic:
// concurrent first lookups for the same key create exactly one value.
type Map[V any] struct {
	shards [numShards]shard[V]
}

// New creates a new sharded map.
func New[V any]() *Map[V] {
	var m Map[V]
	for i := range m.shards {
		m.shards[i].items = make(map[string]V)
	}
	return &m
}

func (m *Map[V]) getShard(key string) *shard[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &m.shards[h.Sum32()%numShards]
}

// GetOrCreate returns the value for key, creating it with init if absent.
// The shard lock is held during init; keep init cheap.
func (m *Map[V]) GetOrCreate(key string, init func() V) V {
	s := m.getShard(key)
	s.mu.Lock()
	v, ok := s.items[key]
	if !ok {
		v = init()
		s.items[key] = v
	}
	s.mu.Unlock()
	return v
}

// Get returns the value for key and whether it existed.
func (m *Map[V]) Get(key string) (V, bool) {
	s := m.getShard(key)
	s.mu.Lock()
	v, ok := s.items[key]
	s.mu.Unlock()
	return v, ok
}

// Set stores a value for key.
func (m *Map[V]) Set(key string, v V) {
	s := m.getShard(key)
	s.mu.Lock()
	s.items[key] = v
	s.mu.Unlock()
}

// Len returns the total number of entries across all shards.
func (m *Map[V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		n += len(s.items)
		s.mu.Unlock()
	}
	return n
}

// Range iterates all entries. Return false from fn to stop early.
func (m *Map[V]) Range(fn func(key string, v V) bool) {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.Unlock()
				return
			}
		}
		s.mu.Unlock()
	}
}

// Clear removes all entries.
func (m *Map[V]) Clear() {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		s.items = make(map[string]V)
		s.mu.Unlock()
	}
}
