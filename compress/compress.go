// Package compress defines the entry value compression variants the storage
// engine supports and dispatches encode/decode calls to the matching
// backend.
package compress

import (
	"fmt"

	"github.com/hybridstore/storage/compress/lz4"
	"github.com/hybridstore/storage/compress/zstd"
	"github.com/hybridstore/storage/errors"
)

// Compression identifies the algorithm, if any, applied to an entry's
// serialized value before it is written to a region.
type Compression uint8

const (
	// None stores the serialized value unmodified.
	None Compression = iota
	// Zstd compresses the serialized value with zstd.
	Zstd
	// Lz4 compresses the serialized value with lz4.
	Lz4
)

// String implements fmt.Stringer.
func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	case Lz4:
		return "lz4"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// Encode compresses in according to c, reusing scratch's backing array when
// possible. None returns in unmodified.
func Encode(c Compression, scratch []byte, in []byte) ([]byte, error) {
	switch c {
	case None:
		return in, nil
	case Zstd:
		return zstd.CompressLevel(scratch, in, -1)
	case Lz4:
		return lz4.Compress(scratch, in)
	default:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("compress: unknown compression %d", uint8(c)))
	}
}

// Decode reverses Encode.
func Decode(c Compression, scratch []byte, in []byte) ([]byte, error) {
	switch c {
	case None:
		return in, nil
	case Zstd:
		return zstd.Decompress(scratch, in)
	case Lz4:
		return lz4.Decompress(scratch, in)
	default:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("compress: unknown compression %d", uint8(c)))
	}
}
