// Package memory implements the hybrid cache's in-process tier: a small
// mutex/map cache sitting in front of the persistent storage engine,
// generalized from a mutex+map shape to capacity-bounded eviction with a
// pluggable algorithm (policy.EvictionConfig selects LRU, FIFO, an
// approximate LFU, or an approximate S3-FIFO), with concurrent misses on
// the same key coalesced through a loadingcache.Map so only one storage
// read is in flight per key at a time.
package memory

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hybridstore/storage/catalog"
	"github.com/hybridstore/storage/codec"
	"github.com/hybridstore/storage/compress"
	"github.com/hybridstore/storage/flush"
	"github.com/hybridstore/storage/log"
	"github.com/hybridstore/storage/policy"
	"github.com/hybridstore/storage/sync/loadingcache"
)

// Reader is the subset of store.Reader a Cache needs to resolve a miss.
type Reader[K codec.StorageKey, V codec.StorageValue] interface {
	Lookup(ctx context.Context, cat catalog.Catalog[K], key K) (V, bool, error)
}

// record's list field names which of the Cache's lists currently holds it
// (order for every kind but S3-FIFO's main queue, main once promoted).
// freq is bumped on hits by evictionLFU and evictionS3FIFO; only
// evictionLFU reads it when choosing a victim.
type record[K codec.StorageKey, V codec.StorageValue] struct {
	key   K
	value V
	freq  int
	list  *list.List
}

// missWindow bounds how long a storage-tier read result is shared across
// concurrent misses on the same key before a fresh miss triggers its own
// read. It trades a small staleness window for collapsing duplicate reads
// under concurrent load on the same key.
const missWindow = 2 * time.Millisecond

// missResult carries a storage lookup's outcome through loadingcache.Value,
// which caches only successful loads: an errored load never reaches the
// Loaded state, so every waiter on a failed load re-runs it themselves.
type missResult[V codec.StorageValue] struct {
	value V
	ok    bool
}

// evictionKind is the memory tier's resolved eviction algorithm, selected
// from policy.EvictionConfig at construction time.
type evictionKind int

const (
	evictionLRU evictionKind = iota
	evictionFIFO
	evictionLFU
	evictionS3FIFO
)

// kindFromConfig resolves cfg to the eviction algorithm it names. A nil
// cfg, or one with every variant nil, defaults to LRU. Spec.md §1 scopes
// the memory tier's eviction *policy* out of the storage engine's core;
// these are deliberately simple, correct implementations, not
// production-grade ones (no ghost queues, no windowed CM-sketch for LFU).
func kindFromConfig(cfg *policy.EvictionConfig) evictionKind {
	if cfg == nil {
		return evictionLRU
	}
	switch {
	case cfg.FIFO != nil:
		return evictionFIFO
	case cfg.LFU != nil:
		return evictionLFU
	case cfg.S3FIFO != nil:
		return evictionS3FIFO
	default:
		return evictionLRU
	}
}

// Cache is a capacity-bounded in-process cache whose eviction order is set
// by policy.EvictionConfig. On a miss it consults the storage engine's
// catalog through reader; on eviction under insert pressure it consults
// admission to decide whether the outgoing entry is worth hand-off to the
// storage engine's entry channel. A Cache is safe for concurrent use.
type Cache[K codec.StorageKey, V codec.StorageValue] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List // LRU/FIFO/LFU's only list; S3-FIFO's small queue.
	main     *list.List // S3-FIFO's main queue only; nil otherwise.
	kind     evictionKind

	admission   policy.AdmissionPolicy
	reinsertion policy.ReinsertionPolicy
	reader      Reader[K, V]
	catalog     catalog.Catalog[K]
	entryCh     chan<- flush.Entry[K, V]
	misses      loadingcache.Map

	seq *flush.SequenceAllocator
}

// New returns an empty Cache holding at most capacity items, evicting
// according to evictionCfg (nil selects LRU). reader and catalog may be
// nil, in which case Get never looks past the memory tier; entryCh may be
// nil, in which case evicted entries are always dropped rather than handed
// to storage. seq must be the same allocator the storage-engine-facing
// producer writing into entryCh uses (see hybrid.HybridCache), so sequence
// numbers stay monotonic across both producers feeding the shared Catalog.
func New[K codec.StorageKey, V codec.StorageValue](
	capacity int,
	evictionCfg *policy.EvictionConfig,
	admission policy.AdmissionPolicy,
	reinsertion policy.ReinsertionPolicy,
	reader Reader[K, V],
	cat catalog.Catalog[K],
	entryCh chan<- flush.Entry[K, V],
	seq *flush.SequenceAllocator,
) *Cache[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	kind := kindFromConfig(evictionCfg)
	c := &Cache[K, V]{
		capacity:    capacity,
		items:       make(map[K]*list.Element),
		order:       list.New(),
		kind:        kind,
		admission:   admission,
		reinsertion: reinsertion,
		reader:      reader,
		catalog:     cat,
		entryCh:     entryCh,
		seq:         seq,
	}
	if kind == evictionS3FIFO {
		c.main = list.New()
	}
	return c
}

// Get returns the value for key, checking the memory tier first and
// falling back to the storage engine's catalog on a miss. A value loaded
// from storage is promoted into the memory tier only if reinsertion admits
// it, matching spec.md §1's "the core invokes their admit()/pick() hooks"
// external-collaborator contract.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		v := el.Value.(*record[K, V]).value
		c.touchOnHitLocked(key, el)
		c.mu.Unlock()
		return v, true, nil
	}
	c.mu.Unlock()

	var zero V
	if c.reader == nil || c.catalog == nil {
		return zero, false, nil
	}

	var res missResult[V]
	loadErr := c.misses.GetOrCreate(key).GetOrLoad(ctx, &res, func(ctx context.Context, opts *loadingcache.LoadOpts) error {
		v, ok, err := c.reader.Lookup(ctx, c.catalog, key)
		res = missResult[V]{value: v, ok: ok}
		opts.CacheFor(missWindow)
		return err
	})
	if loadErr != nil {
		return zero, false, loadErr
	}
	if !res.ok {
		return zero, false, nil
	}
	v := res.value
	if c.reinsertion == nil || c.reinsertion.Pick(ctx, policy.ReinsertionContext{Key: fmt.Sprint(key), ValueSize: valueSize(v)}) {
		c.mu.Lock()
		c.insertLocked(ctx, key, v)
		c.mu.Unlock()
	}
	return v, true, nil
}

// touchOnHitLocked applies c.kind's on-access bookkeeping to an existing
// entry: LRU moves it to the front of order; FIFO leaves order untouched
// (only insertion order matters); LFU bumps its frequency counter; S3-FIFO
// bumps its frequency counter and, the first time a small-queue entry is
// re-accessed, promotes it into the main queue.
func (c *Cache[K, V]) touchOnHitLocked(key K, el *list.Element) {
	rec := el.Value.(*record[K, V])
	switch c.kind {
	case evictionFIFO:
	case evictionLFU:
		rec.freq++
	case evictionS3FIFO:
		rec.freq++
		if rec.list == c.order {
			c.order.Remove(el)
			rec.list = c.main
			c.items[key] = c.main.PushFront(rec)
		} else {
			c.main.MoveToFront(el)
		}
	default: // evictionLRU
		c.order.MoveToFront(el)
	}
}

// Set inserts key/value into the memory tier, evicting an entry chosen by
// c.kind if the cache is at capacity. An evicted entry is handed off to
// the storage engine's entry channel only if admission allows it;
// otherwise it is dropped, matching spec.md's explicit exclusion of the
// memory tier's write-back durability from this engine's guarantees.
func (c *Cache[K, V]) Set(ctx context.Context, key K, value V) {
	c.mu.Lock()
	c.insertLocked(ctx, key, value)
	c.mu.Unlock()
}

func (c *Cache[K, V]) insertLocked(ctx context.Context, key K, value V) {
	if el, ok := c.items[key]; ok {
		rec := el.Value.(*record[K, V])
		rec.value = value
		c.touchOnHitLocked(key, el)
		return
	}
	rec := &record[K, V]{key: key, value: value, list: c.order}
	el := c.order.PushFront(rec)
	c.items[key] = el

	for c.order.Len()+c.mainLen() > c.capacity {
		c.evictOldestLocked(ctx)
	}
}

// victimLocked picks the element c.kind evicts next: the tail of order for
// LRU/FIFO, the element with the lowest access frequency for LFU (scanning
// order, its only list), and for S3-FIFO the small queue's tail — always a
// one-hit-wonder, since any entry re-accessed while in the small queue has
// already been promoted to main by touchOnHitLocked — falling back to
// main's tail once the small queue is empty.
func (c *Cache[K, V]) victimLocked() *list.Element {
	switch c.kind {
	case evictionLFU:
		var victim *list.Element
		minFreq := -1
		for el := c.order.Back(); el != nil; el = el.Prev() {
			rec := el.Value.(*record[K, V])
			if minFreq == -1 || rec.freq < minFreq {
				minFreq = rec.freq
				victim = el
			}
		}
		return victim
	case evictionS3FIFO:
		if c.order.Len() > 0 {
			return c.order.Back()
		}
		return c.main.Back()
	default:
		return c.order.Back()
	}
}

func (c *Cache[K, V]) evictOldestLocked(ctx context.Context) {
	tail := c.victimLocked()
	if tail == nil {
		return
	}
	rec := tail.Value.(*record[K, V])
	rec.list.Remove(tail)
	delete(c.items, rec.key)

	if c.admission == nil || c.entryCh == nil {
		return
	}
	size := valueSize(rec.value)
	if !c.admission.Admit(ctx, policy.AdmissionContext{Key: fmt.Sprint(rec.key), ValueSize: size}) {
		return
	}
	entry := flush.Entry[K, V]{Key: rec.key, Value: rec.value, Sequence: c.seq.Next(), Compression: compress.None}
	select {
	case c.entryCh <- entry:
	default:
		log.Error.Printf("memory: dropping evicted entry, storage entry channel is full (key=%v)", rec.key)
	}
}

func (c *Cache[K, V]) mainLen() int {
	if c.main == nil {
		return 0
	}
	return c.main.Len()
}

// Len returns the number of items currently held in the memory tier.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len() + c.mainLen()
}

func valueSize(v any) int {
	if b, ok := v.([]byte); ok {
		return len(b)
	}
	if s, ok := v.(string); ok {
		return len(s)
	}
	return 1
}
