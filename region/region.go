package region

import (
	"context"
	"sync"

	"github.com/hybridstore/storage/sync/ctxsync"
)

// Phase is a region's position in the clean/writing/dirty/evicting
// lifecycle described in spec.md §3.
type Phase int

const (
	// Clean regions are empty, or contain only a stale header, and are
	// available to be rotated into.
	Clean Phase = iota
	// Writing is held by at most one region system-wide: the Flusher's
	// current region.
	Writing
	// Dirty regions have been rotated away from and are queued for
	// eviction.
	Dirty
	// Evicting regions have pin_count == 0 and are having their catalog
	// entries removed before returning to Clean.
	Evicting
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case Clean:
		return "clean"
	case Writing:
		return "writing"
	case Dirty:
		return "dirty"
	case Evicting:
		return "evicting"
	default:
		return "unknown"
	}
}

// ID identifies a region by its file index.
type ID = uint32

// View is an immutable pointer to a byte range on disk: the region id, a
// byte offset within it, and a length. Offset and Offset+Len are multiples
// of the device's alignment.
type View struct {
	Region ID
	Offset uint32
	Len    uint32
}

// Region is one fixed-size, file-backed zone: the unit of rotation and
// eviction. Region owns its own phase and pin count; RegionManager owns the
// collection of Regions and their eviction ordering.
type Region struct {
	id   ID
	size int64

	mu       sync.Mutex
	cond     *ctxsync.Cond
	phase    Phase
	pinCount uint32
}

// NewRegion returns a freshly constructed Region in the Clean phase.
func NewRegion(id ID, size int64) *Region {
	r := &Region{id: id, size: size, phase: Clean}
	r.cond = ctxsync.NewCond(&r.mu)
	return r
}

// ID returns the region's file index.
func (r *Region) ID() ID { return r.id }

// Size returns the region's fixed byte size (device.FileSize()).
func (r *Region) Size() int64 { return r.size }

// Phase returns the region's current lifecycle phase.
func (r *Region) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// SetPhase transitions the region to p.
func (r *Region) SetPhase(p Phase) {
	r.mu.Lock()
	r.phase = p
	r.cond.Broadcast()
	r.mu.Unlock()
}

// Pin increments the region's reader pin count, blocking eviction.
func (r *Region) Pin() {
	r.mu.Lock()
	r.pinCount++
	r.mu.Unlock()
}

// Unpin decrements the region's reader pin count.
func (r *Region) Unpin() {
	r.mu.Lock()
	if r.pinCount == 0 {
		panic("region: Unpin called with zero pin count")
	}
	r.pinCount--
	if r.pinCount == 0 {
		r.cond.Broadcast()
	}
	r.mu.Unlock()
}

// PinCount returns the current number of outstanding pins.
func (r *Region) PinCount() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pinCount
}

// WaitUnpinned blocks until the region's pin count reaches zero, or ctx is
// done. It is used by the evictor to honor the invariant that a region may
// leave Dirty for Evicting only once pin_count == 0.
func (r *Region) WaitUnpinned(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.pinCount != 0 {
		if err := r.cond.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// View returns an immutable View into this region at [offset, offset+len).
func (r *Region) View(offset, length uint32) View {
	return View{Region: r.id, Offset: offset, Len: length}
}
