// Package hybrid wires the memory tier and the persistent storage engine
// into a single HybridCache, following the original source's
// HybridCacheBuilder phase split (builder.WithMemory(...).WithStorage(...)),
// renamed BuilderPhaseMemory / BuilderPhaseStorage to match
// foyer/src/prelude.rs's naming.
package hybrid

import (
	"context"

	"github.com/hybridstore/storage/catalog"
	"github.com/hybridstore/storage/codec"
	"github.com/hybridstore/storage/device"
	"github.com/hybridstore/storage/errors"
	"github.com/hybridstore/storage/flush"
	"github.com/hybridstore/storage/flusher"
	"github.com/hybridstore/storage/log"
	"github.com/hybridstore/storage/memory"
	"github.com/hybridstore/storage/policy"
	"github.com/hybridstore/storage/region"
	"github.com/hybridstore/storage/store"
)

// HybridCache is a runnable, end-to-end cache: an in-process memory tier in
// front of the persistent storage engine (device, region manager,
// FlushBuffer, Flusher, Catalog, reader). Build starts the Flusher's event
// loop on its own goroutine; callers only need Get/Set/Insert and Close.
type HybridCache[K codec.StorageKey, V codec.StorageValue] struct {
	mem     *memory.Cache[K, V]
	dev     device.Device
	manager *region.Manager
	catalog catalog.Catalog[K]
	reader  *store.Reader[K, V]

	entryCh     chan flush.Entry[K, V]
	stopCh      chan struct{}
	runDone     chan error
	oversizedCh chan error

	seq *flush.SequenceAllocator
}

// Oversized returns the channel on which the storage engine reports entries
// dropped for exceeding a whole region's usable capacity (errors.Oversized).
// The channel buffers up to 16 reports; once it is full, further drops are
// only logged by the Flusher, which never blocks on it.
func (h *HybridCache[K, V]) Oversized() <-chan error {
	return h.oversizedCh
}

// Get returns the value for key, checking the memory tier first and the
// storage engine's catalog on a miss.
func (h *HybridCache[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	return h.mem.Get(ctx, key)
}

// Set inserts key/value into the memory tier. Entries evicted under
// capacity pressure are, subject to the configured admission policy,
// handed to the storage engine for persistence.
func (h *HybridCache[K, V]) Set(ctx context.Context, key K, value V) {
	h.mem.Set(ctx, key, value)
}

// Insert writes key/value directly to the persistent storage engine,
// bypassing the memory tier, for callers that know in advance a value
// belongs on the storage-backed tier (e.g. bulk loads). It must not be
// called after Close.
func (h *HybridCache[K, V]) Insert(ctx context.Context, key K, value V) error {
	select {
	case h.entryCh <- flush.Entry[K, V]{Key: key, Value: value, Sequence: h.seq.Next()}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the entry channel, which drains every entry already queued
// for the Flusher (see flusher.Flusher.Run's closed-channel final flush)
// before the Flusher's goroutine exits, then releases the region manager
// and device. No further Insert or memory-tier eviction may race with
// Close.
func (h *HybridCache[K, V]) Close() error {
	close(h.entryCh)
	err := <-h.runDone
	h.manager.Close()
	if cerr := h.dev.Close(); err == nil {
		err = cerr
	}
	return err
}

// BuilderPhaseMemory is the entry point of HybridCacheBuilder, matching the
// original source's phased builder naming.
type BuilderPhaseMemory[K codec.StorageKey, V codec.StorageValue] struct{}

// NewBuilder starts constructing a HybridCache.
func NewBuilder[K codec.StorageKey, V codec.StorageValue]() BuilderPhaseMemory[K, V] {
	return BuilderPhaseMemory[K, V]{}
}

// WithMemory configures the memory tier's capacity and policies, advancing
// to BuilderPhaseStorage.
func (BuilderPhaseMemory[K, V]) WithMemory(
	capacity int,
	admission policy.AdmissionPolicy,
	reinsertion policy.ReinsertionPolicy,
) BuilderPhaseStorage[K, V] {
	return BuilderPhaseStorage[K, V]{
		memCapacity: capacity,
		admission:   admission,
		reinsertion: reinsertion,
	}
}

// BuilderPhaseStorage configures the persistent storage engine.
type BuilderPhaseStorage[K codec.StorageKey, V codec.StorageValue] struct {
	memCapacity int
	memEviction *policy.EvictionConfig
	admission   policy.AdmissionPolicy
	reinsertion policy.ReinsertionPolicy

	cleanCapacity  int
	catalogShards  int
	entryChBuf     int
	keyCodec       codec.Codec[K]
	valueCodec     codec.Codec[V]
	evictionPolicy region.EvictionPolicy
}

// WithMemoryEviction overrides the memory tier's eviction algorithm; nil
// (the default, if this is never called) selects plain LRU.
func (b BuilderPhaseStorage[K, V]) WithMemoryEviction(cfg *policy.EvictionConfig) BuilderPhaseStorage[K, V] {
	b.memEviction = cfg
	return b
}

// WithStorage configures the clean-region channel capacity, catalog
// sharding, and entry channel buffering, advancing to the build step.
func (b BuilderPhaseStorage[K, V]) WithStorage(cleanCapacity, catalogShards, entryChBuf int) BuilderPhaseStorage[K, V] {
	b.cleanCapacity = cleanCapacity
	b.catalogShards = catalogShards
	b.entryChBuf = entryChBuf
	return b
}

// WithCodecs overrides the default gob codecs used to serialize keys and
// values.
func (b BuilderPhaseStorage[K, V]) WithCodecs(keyCodec codec.Codec[K], valueCodec codec.Codec[V]) BuilderPhaseStorage[K, V] {
	b.keyCodec = keyCodec
	b.valueCodec = valueCodec
	return b
}

// WithEvictionPolicy overrides the default FIFO region eviction policy.
func (b BuilderPhaseStorage[K, V]) WithEvictionPolicy(p region.EvictionPolicy) BuilderPhaseStorage[K, V] {
	b.evictionPolicy = p
	return b
}

// Build assembles the HybridCache over dev. dev must already be open
// (see device.OpenFsDevice); Build does not take ownership of opening it,
// but Close will close it.
func (b BuilderPhaseStorage[K, V]) Build(dev device.Device) (*HybridCache[K, V], error) {
	if b.cleanCapacity < 1 {
		return nil, errors.E(errors.Invalid, "hybrid: clean region capacity must be at least 1")
	}
	if b.catalogShards < 1 {
		b.catalogShards = 1
	}
	if b.entryChBuf < 1 {
		b.entryChBuf = 1
	}
	keyCodec := b.keyCodec
	if keyCodec == nil {
		keyCodec = codec.NewGob[K]()
	}
	valueCodec := b.valueCodec
	if valueCodec == nil {
		valueCodec = codec.NewGob[V]()
	}
	evictionPolicy := b.evictionPolicy
	if evictionPolicy == nil {
		evictionPolicy = region.NewFIFOEvictionPolicy()
	}

	cat := catalog.NewDefault[K](b.catalogShards)
	manager := region.NewManager(dev.Regions(), dev.FileSize(), evictionPolicy, cat, b.cleanCapacity)
	buffer := flush.NewBuffer[K, V](dev, keyCodec, valueCodec)
	reader := store.NewReader[K, V](dev, manager, keyCodec, valueCodec)

	entryCh := make(chan flush.Entry[K, V], b.entryChBuf)
	stopCh := make(chan struct{})
	oversizedCh := make(chan error, 16)
	fl := flusher.New[K, V](buffer, manager, cat, entryCh, stopCh, oversizedCh)

	// Both memory-tier eviction and direct Insert calls write Entry records
	// into the same entryCh/Catalog, so they must share one sequence
	// allocator: see flush.SequenceAllocator's doc comment.
	seq := flush.NewSequenceAllocator()
	mem := memory.New[K, V](b.memCapacity, b.memEviction, b.admission, b.reinsertion, reader, cat, entryCh, seq)

	h := &HybridCache[K, V]{
		mem:         mem,
		dev:         dev,
		manager:     manager,
		catalog:     cat,
		reader:      reader,
		entryCh:     entryCh,
		stopCh:      stopCh,
		runDone:     make(chan error, 1),
		oversizedCh: oversizedCh,
		seq:         seq,
	}
	go func() { h.runDone <- fl.Run(context.Background()) }()
	log.Info.Printf("hybrid: built cache over %d regions, %d bytes each", dev.Regions(), dev.FileSize())
	return h, nil
}
