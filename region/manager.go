package region

import (
	"context"
	"sync"

	"github.com/hybridstore/storage/bitset"
	"github.com/hybridstore/storage/errors"
	"github.com/hybridstore/storage/log"
	"github.com/hybridstore/storage/syncqueue"
)

// CatalogRemover is the slice of the Catalog contract the evictor needs: the
// ability to drop every entry whose View points into a region being
// reclaimed. Declared locally so this package does not depend on package
// catalog.
type CatalogRemover interface {
	RemoveWhere(pred func(v View) bool)
}

// EvictionPolicy selects which Dirty region to reclaim next. The default
// used by Manager is FIFO (oldest-rotated-away-first); spec.md scopes out
// policy sophistication, not its existence.
type EvictionPolicy interface {
	// Push enqueues a newly Dirty region.
	Push(id ID)
	// Pop blocks until a Dirty region is available to evict, or ctx is done.
	Pop(ctx context.Context) (ID, error)
}

// fifoEvictionPolicy reclaims regions in the order they were rotated away
// from, using the FIFO queue adapted from the teacher's LIFO producer-
// consumer queue.
type fifoEvictionPolicy struct {
	q *syncqueue.FIFO
}

// NewFIFOEvictionPolicy returns the default eviction policy: oldest dirty
// region first.
func NewFIFOEvictionPolicy() EvictionPolicy {
	return &fifoEvictionPolicy{q: syncqueue.NewFIFO()}
}

func (p *fifoEvictionPolicy) Push(id ID) { p.q.Put(id) }

func (p *fifoEvictionPolicy) Pop(ctx context.Context) (ID, error) {
	type result struct {
		id ID
		ok bool
	}
	done := make(chan result, 1)
	go func() {
		v, ok := p.q.Get()
		if !ok {
			done <- result{0, false}
			return
		}
		done <- result{v.(ID), true}
	}()
	select {
	case r := <-done:
		if !r.ok {
			return 0, errors.E(errors.Canceled, "region: eviction policy closed")
		}
		return r.id, nil
	case <-ctx.Done():
		return 0, errors.E(errors.Canceled, ctx.Err())
	}
}

// Manager tracks every region's phase, hands out Clean regions to the
// Flusher through a bounded channel, and drives an eviction loop that
// reclaims Dirty regions back to Clean once unpinned and their catalog
// entries are removed.
type Manager struct {
	regions []*Region
	policy  EvictionPolicy
	catalog CatalogRemover

	cleanCh chan ID

	mu     sync.Mutex
	closed bool
	stopCh chan struct{}

	evictCtx    context.Context
	evictCancel context.CancelFunc
}

// NewManager constructs a Manager over n regions of the given size, backed
// by policy for eviction ordering and catalog for entry removal on
// reclamation. cleanCapacity bounds the clean-region channel (spec.md §4.3
// calls out 1-2 as typical).
func NewManager(n uint32, regionSize int64, policy EvictionPolicy, catalog CatalogRemover, cleanCapacity int) *Manager {
	regions := make([]*Region, n)
	for i := range regions {
		regions[i] = NewRegion(ID(i), regionSize)
	}
	if cleanCapacity < 1 {
		cleanCapacity = 1
	}
	evictCtx, evictCancel := context.WithCancel(context.Background())
	m := &Manager{
		regions:     regions,
		policy:      policy,
		catalog:     catalog,
		cleanCh:     make(chan ID, cleanCapacity),
		stopCh:      make(chan struct{}),
		evictCtx:    evictCtx,
		evictCancel: evictCancel,
	}
	go m.feedClean()
	go m.evict()
	return m
}

// Region returns the Region accessor for id.
func (m *Manager) Region(id ID) (*Region, error) {
	if int(id) >= len(m.regions) {
		return nil, errors.E(errors.Invalid, errors.Fatal, "region: id out of range")
	}
	return m.regions[id], nil
}

// Acquire blocks until a Clean region is available, or ctx is done. The
// returned region is in the Clean phase with a fresh or absent header; the
// caller (the Flusher) is responsible for transitioning it to Writing.
func (m *Manager) Acquire(ctx context.Context) (ID, error) {
	select {
	case id := <-m.cleanCh:
		return id, nil
	case <-ctx.Done():
		return 0, errors.E(errors.Canceled, ctx.Err(), "region: acquire clean region")
	case <-m.stopCh:
		return 0, errors.E(errors.Canceled, "region: manager stopped")
	}
}

// EvictionPush transitions region id from its post-Writing state to Dirty
// and enqueues it with the eviction policy. The caller (the Flusher) must
// only call this once the region's final flush has returned successfully.
func (m *Manager) EvictionPush(id ID) {
	r, err := m.Region(id)
	if err != nil {
		panic(err)
	}
	r.SetPhase(Dirty)
	m.policy.Push(id)
}

// feedClean moves regions in the Clean phase (the device's initial state,
// or regions just reclaimed by evict) into the bounded channel consumed by
// Acquire. All regions start Clean, so at construction every id is fed
// directly; the channel's bound is what provides backpressure, not the
// supply of Clean regions itself.
func (m *Manager) feedClean() {
	for _, r := range m.regions {
		select {
		case m.cleanCh <- r.ID():
		case <-m.stopCh:
			return
		}
	}
}

// evict is the RegionManager's internal reclamation loop: pop a Dirty
// region from the policy, wait for its pin count to drop to zero, remove
// its catalog entries, mark it Evicting then Clean, and return it to the
// clean channel.
func (m *Manager) evict() {
	ctx := m.evictCtx
	for {
		select {
		case <-m.stopCh:
			return
		default:
		}
		id, err := m.policy.Pop(ctx)
		if err != nil {
			return
		}
		r, err := m.Region(id)
		if err != nil {
			log.Error.Printf("region: evictor got invalid id %d: %v", id, err)
			continue
		}
		if err := r.WaitUnpinned(ctx); err != nil {
			log.Error.Printf("region: evictor wait unpinned: %v", err)
			continue
		}
		r.SetPhase(Evicting)
		m.catalog.RemoveWhere(func(v View) bool { return v.Region == id })
		r.SetPhase(Clean)
		select {
		case m.cleanCh <- id:
		case <-m.stopCh:
			return
		}
	}
}

// DirtyBitmap returns a compact, one-bit-per-region snapshot of which
// regions are currently Dirty or Evicting, using grailbio-base/bitset's raw
// []uintptr word operations. Intended for cheap operational status
// reporting (e.g. a CLI or metrics endpoint), not for the eviction
// decision itself, which consults each Region's Phase directly.
func (m *Manager) DirtyBitmap() []uintptr {
	words := (len(m.regions) + bitset.BitsPerWord - 1) / bitset.BitsPerWord
	bm := make([]uintptr, words)
	for _, r := range m.regions {
		switch r.Phase() {
		case Dirty, Evicting:
			bitset.Set(bm, int(r.ID()))
		}
	}
	return bm
}

// Close stops the manager's background goroutines. In-flight Acquire calls
// return an error.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.stopCh)
	m.evictCancel()
}
