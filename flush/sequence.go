package flush

import "sync/atomic"

// SequenceAllocator hands out monotonically increasing sequence numbers for
// Entry.Sequence. spec.md requires sequences to be monotonic across the
// full producer set feeding a given entry channel/Catalog, so every
// producer writing into the same channel must share one allocator rather
// than keep an independent counter: two independently-incrementing
// counters can both produce the same or overlapping sequence ranges, and
// Catalog.Insert's last-writer-wins tiebreak on Sequence silently keeps
// the wrong entry when that happens.
type SequenceAllocator struct {
	next uint64
}

// NewSequenceAllocator returns an allocator whose first Next() call
// returns 1.
func NewSequenceAllocator() *SequenceAllocator {
	return &SequenceAllocator{}
}

// Next returns the next sequence number. Safe for concurrent use.
func (a *SequenceAllocator) Next() uint64 {
	return atomic.AddUint64(&a.next, 1)
}
