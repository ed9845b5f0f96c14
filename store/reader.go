// Package store implements the reader path: given a catalog View, issue an
// aligned device read, verify the entry's checksum, decompress its value,
// and decode both key and value back into live types.
package store

import (
	"context"

	"github.com/hybridstore/storage/catalog"
	"github.com/hybridstore/storage/checksum"
	"github.com/hybridstore/storage/codec"
	"github.com/hybridstore/storage/compress"
	"github.com/hybridstore/storage/device"
	"github.com/hybridstore/storage/errors"
	"github.com/hybridstore/storage/region"
)

// RegionPinner is the subset of region.Manager a Reader needs: pin a region
// against eviction for the duration of a read, and unpin it on completion.
type RegionPinner interface {
	Region(id region.ID) (*region.Region, error)
}

// Reader resolves catalog Views into decoded (key, value) pairs. A Reader
// is safe for concurrent use by multiple goroutines, matching spec.md §4's
// "multiple reader tasks may run in parallel" scheduling note.
type Reader[K codec.StorageKey, V codec.StorageValue] struct {
	dev        device.Device
	regions    RegionPinner
	keyCodec   codec.Codec[K]
	valueCodec codec.Codec[V]
}

// NewReader returns a Reader that reads through dev, pinning regions via
// regions for the duration of each read.
func NewReader[K codec.StorageKey, V codec.StorageValue](
	dev device.Device,
	regions RegionPinner,
	keyCodec codec.Codec[K],
	valueCodec codec.Codec[V],
) *Reader[K, V] {
	return &Reader[K, V]{dev: dev, regions: regions, keyCodec: keyCodec, valueCodec: valueCodec}
}

// Get resolves view into its decoded key and value, verifying wantKey
// matches the encoded key stored alongside the value (spec.md §4's "decodes
// the key for confirmation").
func (r *Reader[K, V]) Get(ctx context.Context, wantKey K, view region.View) (V, error) {
	var zero V

	reg, err := r.regions.Region(view.Region)
	if err != nil {
		return zero, err
	}
	reg.Pin()
	defer reg.Unpin()

	buf := make([]byte, view.Len)
	if err := r.dev.Read(ctx, buf, view.Region, int64(view.Offset)); err != nil {
		return zero, errors.E(errors.IO, err, "store: read entry")
	}

	hdr, err := region.DecodeEntryHeader(buf)
	if err != nil {
		return zero, err
	}
	headerLen := region.EntryHeaderSize
	if headerLen+int(hdr.ValueLen)+int(hdr.KeyLen) > len(buf) {
		return zero, errors.E(errors.Corrupt, "store: entry header declares more bytes than its view")
	}
	valueBytes := buf[headerLen : headerLen+int(hdr.ValueLen)]
	keyBytes := buf[headerLen+int(hdr.ValueLen) : headerLen+int(hdr.ValueLen)+int(hdr.KeyLen)]

	sum := checksum.New()
	sum.Write(valueBytes)
	sum.Write(keyBytes)
	if sum.Sum64() != hdr.Checksum {
		return zero, errors.E(errors.Corrupt, "store: checksum mismatch")
	}

	var gotKey K
	if err := r.keyCodec.Decode(keyBytes, &gotKey); err != nil {
		return zero, errors.E(errors.Invalid, err, "store: decode key")
	}
	if gotKey != wantKey {
		return zero, errors.E(errors.Corrupt, "store: key mismatch at view")
	}

	raw, err := compress.Decode(hdr.Compression, nil, valueBytes)
	if err != nil {
		return zero, errors.E(errors.Invalid, err, "store: decompress value")
	}
	var value V
	if err := r.valueCodec.Decode(raw, &value); err != nil {
		return zero, errors.E(errors.Invalid, err, "store: decode value")
	}
	return value, nil
}

// Lookup is a convenience combining a catalog lookup with Get.
func (r *Reader[K, V]) Lookup(ctx context.Context, cat catalog.Catalog[K], key K) (V, bool, error) {
	item, ok := cat.Lookup(key)
	if !ok {
		var zero V
		return zero, false, nil
	}
	v, err := r.Get(ctx, key, item.View)
	if err != nil {
		if errors.Is(errors.Corrupt, err) {
			// Self-heal: a corrupt entry can never be read successfully
			// again, so drop it from the catalog rather than serving the
			// error on every subsequent lookup.
			view := item.View
			cat.RemoveWhere(func(v region.View) bool { return v == view })
		}
		var zero V
		return zero, false, err
	}
	return v, true, nil
}
