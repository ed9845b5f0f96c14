package catalog

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/hybridstore/storage/region"
)

// defaultShardCount is the number of shards Default splits its keyspace
// across when none is given.
const defaultShardCount = 16

// Default is an N-shard, mutex-protected map implementation of Catalog,
// generalized from the single mutex+map shape of
// github.com/grailbio/base/ttlcache to per-shard locking and
// last-writer-wins-by-sequence semantics instead of TTL expiry.
type Default[K comparable] struct {
	shards []*shard[K]
}

type shard[K comparable] struct {
	mu    sync.RWMutex
	items map[K]Item
}

// NewDefault returns a Default catalog with the given number of shards.
// shardCount <= 0 selects defaultShardCount.
func NewDefault[K comparable](shardCount int) *Default[K] {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	shards := make([]*shard[K], shardCount)
	for i := range shards {
		shards[i] = &shard[K]{items: make(map[K]Item)}
	}
	return &Default[K]{shards: shards}
}

var _ Catalog[string] = (*Default[string])(nil)

func (c *Default[K]) shardFor(key K) *shard[K] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fmt.Sprint(key)))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Insert implements Catalog.
func (c *Default[K]) Insert(key K, item Item) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.items[key]; ok && existing.Sequence > item.Sequence {
		return
	}
	s.items[key] = item
}

// Lookup implements Catalog.
func (c *Default[K]) Lookup(key K) (Item, bool) {
	s := c.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[key]
	return item, ok
}

// RemoveWhere implements Catalog.
func (c *Default[K]) RemoveWhere(pred func(v region.View) bool) {
	for _, s := range c.shards {
		s.mu.Lock()
		for k, item := range s.items {
			if pred(item.View) {
				delete(s.items, k)
			}
		}
		s.mu.Unlock()
	}
}
