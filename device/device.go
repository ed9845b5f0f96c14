// Package device opens a directory as a fixed-size array of region files and
// performs aligned positional I/O against them.
package device

import (
	"context"

	"github.com/hybridstore/storage/errors"
)

// Device is the storage engine's abstraction over a directory of
// fixed-size, block-aligned region files.
type Device interface {
	// Write issues a positional, aligned write of buf into region at offset.
	// offset and len(buf) must both be multiples of Align, and
	// offset+len(buf) must not exceed FileSize.
	Write(ctx context.Context, buf []byte, region uint32, offset int64) error

	// Read issues a positional, aligned read of len(buf) bytes from region
	// at offset into buf.
	Read(ctx context.Context, buf []byte, region uint32, offset int64) error

	// Flush persists all outstanding writes to stable storage.
	Flush(ctx context.Context) error

	// Close releases the device's open file handles.
	Close() error

	// Align returns the device's block alignment, a power of two.
	Align() int64
	// FileSize returns the size in bytes of each region file.
	FileSize() int64
	// IOSize returns the device's preferred I/O size for auto-flush
	// thresholds.
	IOSize() int64
	// Regions returns the number of region files.
	Regions() uint32
	// Capacity returns Regions() * FileSize().
	Capacity() int64

	// IOBuffer returns a buffer of length l and capacity c whose base
	// address is aligned to Align(). l must not exceed c.
	IOBuffer(l, c int) []byte
}

func checkAligned(name string, v int64, align int64) error {
	if v%align != 0 {
		return errors.E(errors.Invalid, errors.Fatal, "device: "+name+" not aligned")
	}
	return nil
}
