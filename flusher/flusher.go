// Package flusher implements the storage engine's Flusher: the single
// long-running task that drains an incoming entry channel, packs entries
// into the FlushBuffer, rotates regions when full, and publishes
// successfully flushed entries into the Catalog.
package flusher

import (
	"context"
	"fmt"

	"github.com/hybridstore/storage/catalog"
	"github.com/hybridstore/storage/codec"
	"github.com/hybridstore/storage/errors"
	"github.com/hybridstore/storage/flush"
	"github.com/hybridstore/storage/log"
	"github.com/hybridstore/storage/region"
)

// Flusher is the single writer of a storage engine's region files. It owns
// a FlushBuffer and cooperates with a region.Manager for clean-region
// supply and eviction handoff, and a catalog.Catalog for publishing
// successfully flushed entries.
type Flusher[K codec.StorageKey, V codec.StorageValue] struct {
	manager     *region.Manager
	catalog     catalog.Catalog[K]
	buffer      *flush.Buffer[K, V]
	entryCh     <-chan flush.Entry[K, V]
	stopCh      <-chan struct{}
	oversizedCh chan<- error
}

// New returns a Flusher that drains entryCh and exits when stopCh is closed
// or entryCh is closed, whichever comes first. oversizedCh, if non-nil,
// receives an errors.Oversized error for every entry dropped per spec.md's
// "reported to the caller; the entry is discarded" rule — the send is
// non-blocking, so a caller not listening never stalls the flush pipeline.
// A nil oversizedCh falls back to logging the drop.
func New[K codec.StorageKey, V codec.StorageValue](
	buffer *flush.Buffer[K, V],
	manager *region.Manager,
	cat catalog.Catalog[K],
	entryCh <-chan flush.Entry[K, V],
	stopCh <-chan struct{},
	oversizedCh chan<- error,
) *Flusher[K, V] {
	return &Flusher[K, V]{
		manager:     manager,
		catalog:     cat,
		buffer:      buffer,
		entryCh:     entryCh,
		stopCh:      stopCh,
		oversizedCh: oversizedCh,
	}
}

// Run is the Flusher's main loop. It returns nil on a clean shutdown (stop
// signal or closed entry channel) and a non-nil error if a device I/O
// failure terminated the flush pipeline; per spec.md §4.4, the caller is
// expected to log and restart the Flusher on error.
func (f *Flusher[K, V]) Run(ctx context.Context) error {
	for {
		// A plain select among entryCh/stopCh/ctx.Done() would let Go's
		// runtime pick among ready cases at random; this first,
		// non-blocking drain biases the loop toward entries over shutdown
		// signals, matching the original source's `biased` select.
		select {
		case e, ok := <-f.entryCh:
			if !ok {
				return f.finalFlush(ctx)
			}
			if err := f.handle(ctx, e); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case e, ok := <-f.entryCh:
			if !ok {
				return f.finalFlush(ctx)
			}
			if err := f.handle(ctx, e); err != nil {
				return err
			}
		case <-f.stopCh:
			return f.finalFlush(ctx)
		case <-ctx.Done():
			_ = f.finalFlush(ctx)
			return ctx.Err()
		}
	}
}

func (f *Flusher[K, V]) finalFlush(ctx context.Context) error {
	flushed, err := f.buffer.Flush(ctx)
	if err != nil {
		return err
	}
	f.updateCatalog(flushed)
	return nil
}

func (f *Flusher[K, V]) handle(ctx context.Context, e flush.Entry[K, V]) error {
	oldRegion, hadOld := f.buffer.Region()

	flushed, rejected, err := f.buffer.Write(ctx, e)
	if err != nil {
		return err
	}
	if !rejected {
		f.updateCatalog(flushed)
		return nil
	}

	newRegionID, err := f.manager.Acquire(ctx)
	if err != nil {
		return err
	}
	newRegion, err := f.manager.Region(newRegionID)
	if err != nil {
		return err
	}
	newRegion.SetPhase(region.Writing)

	flushed, err = f.buffer.Rotate(ctx, newRegionID)
	if err != nil {
		return err
	}
	f.updateCatalog(flushed)
	if hadOld {
		f.manager.EvictionPush(oldRegion)
	}

	flushed, rejected, err = f.buffer.Write(ctx, e)
	if err != nil {
		return err
	}
	if rejected {
		// Rotation guarantees the entry fits unless it exceeds a whole
		// region's usable capacity; that is reported, not fatal.
		f.reportOversized(e)
		return nil
	}
	f.updateCatalog(flushed)
	return nil
}

// reportOversized surfaces an entry dropped for exceeding a whole region's
// usable capacity to oversizedCh, or logs it if nothing is listening.
func (f *Flusher[K, V]) reportOversized(e flush.Entry[K, V]) {
	err := errors.E(errors.Oversized, fmt.Sprintf("flusher: entry exceeds region capacity (key=%v, sequence=%d)", e.Key, e.Sequence))
	if f.oversizedCh == nil {
		log.Error.Printf("%v", err)
		return
	}
	select {
	case f.oversizedCh <- err:
	default:
		log.Error.Printf("flusher: oversized-entry report channel full, dropping report (key=%v, sequence=%d)", e.Key, e.Sequence)
	}
}

func (f *Flusher[K, V]) updateCatalog(entries []flush.PositionedEntry[K, V]) {
	for _, pe := range entries {
		f.catalog.Insert(pe.Entry.Key, catalog.Item{
			Sequence: pe.Entry.Sequence,
			View:     region.View{Region: pe.Region, Offset: pe.Offset, Len: pe.Len},
		})
	}
}
