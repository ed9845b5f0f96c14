// Package flush implements the FlushBuffer: the staging area that packs
// entries into an aligned buffer for one region and emits PositionedEntry
// records once those bytes have been accepted by the Device.
package flush

import (
	"context"

	"github.com/hybridstore/storage/checksum"
	"github.com/hybridstore/storage/codec"
	"github.com/hybridstore/storage/compress"
	"github.com/hybridstore/storage/device"
	"github.com/hybridstore/storage/errors"
	"github.com/hybridstore/storage/region"
)

// Entry is a live (key, value, sequence, compression) triple submitted by a
// writer.
type Entry[K codec.StorageKey, V codec.StorageValue] struct {
	Key         K
	Value       V
	Sequence    uint64
	Compression compress.Compression
}

// PositionedEntry is the handoff from Buffer to its caller (the Flusher):
// an Entry together with the on-disk location its bytes were written to.
// It is produced only after those bytes have been accepted by the device.
type PositionedEntry[K codec.StorageKey, V codec.StorageValue] struct {
	Entry  Entry[K, V]
	Region region.ID
	Offset uint32
	Len    uint32
}

// Buffer packs entries into a staging area for one region at a time,
// issuing aligned device writes and returning PositionedEntry records once
// bytes land on disk. A Buffer is owned by exactly one goroutine (the
// Flusher) and is not safe for concurrent use, matching the engine's
// single-cooperative-task-per-component scheduling model.
type Buffer[K codec.StorageKey, V codec.StorageValue] struct {
	dev        device.Device
	keyCodec   codec.Codec[K]
	valueCodec codec.Codec[V]

	align      int64
	ioSize     int64
	regionSize int64

	raw     []byte
	region  *region.ID
	offset  int64
	entries []PositionedEntry[K, V]
}

// NewBuffer returns an empty Buffer with no current region.
func NewBuffer[K codec.StorageKey, V codec.StorageValue](dev device.Device, keyCodec codec.Codec[K], valueCodec codec.Codec[V]) *Buffer[K, V] {
	return &Buffer[K, V]{
		dev:        dev,
		keyCodec:   keyCodec,
		valueCodec: valueCodec,
		align:      dev.Align(),
		ioSize:     dev.IOSize(),
		regionSize: dev.FileSize(),
	}
}

// Region returns the region currently being written to, and whether one is
// set at all.
func (b *Buffer[K, V]) Region() (region.ID, bool) {
	if b.region == nil {
		return 0, false
	}
	return *b.region, true
}

// Remaining returns the number of bytes left in the current region,
// including bytes already staged in the buffer but not yet flushed.
func (b *Buffer[K, V]) Remaining() int64 {
	if b.region == nil {
		return 0
	}
	return b.regionSize - b.offset - int64(len(b.raw))
}

// Rotate flushes the buffer's current contents, installs newRegion as the
// current region, writes its header, and returns the entries flushed
// during the preceding flush step.
func (b *Buffer[K, V]) Rotate(ctx context.Context, newRegion region.ID) ([]PositionedEntry[K, V], error) {
	flushed, err := b.Flush(ctx)
	if err != nil {
		return nil, err
	}
	if len(b.raw) != 0 {
		return nil, errors.E(errors.Invalid, errors.Fatal, "flush: rotate called with non-empty buffer after flush")
	}

	b.region = new(region.ID)
	*b.region = newRegion
	b.offset = 0

	hdr := region.RegionHeader{Magic: region.RegionMagic, Version: region.RegionVersion}
	header := make([]byte, b.align)
	hdr.Encode(header)
	b.raw = append(b.raw, header...)

	return flushed, nil
}

// Flush pads the staging buffer to an aligned length, issues the device
// write, and drains the buffer's completed entries. It is a no-op
// returning no entries if no region is currently set.
//
// On a device error the buffer's staged entries remain queued and the
// error propagates; the caller must not publish them to the catalog.
func (b *Buffer[K, V]) Flush(ctx context.Context) ([]PositionedEntry[K, V], error) {
	if b.region == nil {
		return nil, nil
	}
	if len(b.raw) == 0 {
		return nil, nil
	}

	padded := alignUp(int64(len(b.raw)), b.align)
	out := b.dev.IOBuffer(int(padded), int(padded))
	copy(out, b.raw)

	if err := b.dev.Write(ctx, out, *b.region, b.offset); err != nil {
		return nil, errors.E(errors.IO, err, "flush: device write")
	}

	b.offset += padded
	if b.offset == b.regionSize {
		b.region = nil
	}
	b.raw = b.raw[:0]

	flushed := b.entries
	b.entries = nil
	return flushed, nil
}

// Write packs entry into the buffer. If no region is currently set, it
// returns rejected=true immediately: the caller must acquire a clean
// region and call Rotate before retrying.
//
// If the entry's encoded length would overflow the current region even
// after the rollback check, Write also returns rejected=true with the
// buffer restored to its state before the call; the caller must rotate and
// retry. A fresh region is always large enough for a single entry unless
// that entry exceeds the region's capacity outright, which the caller
// reports as an oversized-entry error.
func (b *Buffer[K, V]) Write(ctx context.Context, e Entry[K, V]) (flushed []PositionedEntry[K, V], rejected bool, err error) {
	if b.region == nil {
		return nil, true, nil
	}

	old := len(b.raw)

	valueBytes, err := b.valueCodec.Encode(e.Value)
	if err != nil {
		return nil, false, errors.E(errors.Invalid, err, "flush: encode value")
	}
	compressed, err := compress.Encode(e.Compression, nil, valueBytes)
	if err != nil {
		return nil, false, errors.E(errors.Invalid, err, "flush: compress value")
	}
	keyBytes, err := b.keyCodec.Encode(e.Key)
	if err != nil {
		return nil, false, errors.E(errors.Invalid, err, "flush: encode key")
	}

	sum := checksum.New()
	sum.Write(compressed)
	sum.Write(keyBytes)

	hdr := region.EntryHeader{
		KeyLen:      uint32(len(keyBytes)),
		ValueLen:    uint32(len(compressed)),
		Sequence:    e.Sequence,
		Compression: e.Compression,
		Checksum:    sum.Sum64(),
	}
	headerBuf := make([]byte, region.EntryHeaderSize)
	hdr.Encode(headerBuf)

	b.raw = append(b.raw, headerBuf...)
	b.raw = append(b.raw, compressed...)
	b.raw = append(b.raw, keyBytes...)

	// Rollback check: compression outcome is unknown ahead of time, so the
	// region-fit test can only happen after serialization.
	if b.offset+int64(len(b.raw)) > b.regionSize {
		b.raw = b.raw[:old]
		return nil, true, nil
	}

	target := alignUp(int64(len(b.raw)), b.align)
	if target > int64(len(b.raw)) {
		b.raw = append(b.raw, make([]byte, target-int64(len(b.raw)))...)
	}

	b.entries = append(b.entries, PositionedEntry[K, V]{
		Entry:  e,
		Region: *b.region,
		Offset: uint32(b.offset) + uint32(old),
		Len:    uint32(target) - uint32(old),
	})

	if int64(len(b.raw)) >= b.ioSize || b.Remaining() == 0 {
		flushed, err = b.Flush(ctx)
		if err != nil {
			return nil, false, err
		}
		return flushed, false, nil
	}
	return nil, false, nil
}

func alignUp(n, align int64) int64 {
	r := n % align
	if r == 0 {
		return n
	}
	return n + (align - r)
}
