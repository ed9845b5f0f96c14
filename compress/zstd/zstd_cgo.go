//go:build cgo

package zstd

import (
	"io"

	cgozstd "github.com/DataDog/zstd"
)

// CompressLevel compresses in at level, reusing scratch's backing array when
// possible. level < 0 selects the cgo library's default.
func CompressLevel(scratch []byte, in []byte, level int) ([]byte, error) {
	if level < 0 {
		level = 5 // matches the noncgo path's default
	}
	return cgozstd.CompressLevel(scratch, in, level)
}

// Decompress reverses CompressLevel, reusing scratch's backing array when
// possible.
func Decompress(scratch []byte, in []byte) ([]byte, error) {
	return cgozstd.Decompress(scratch, in)
}

// NewReader creates a ReadCloser that decompresses data. The returned object
// must be Closed after use.
func NewReader(r io.Reader) (io.ReadCloser, error) {
	return cgozstd.NewReader(r), nil
}

// NewWriter creates a WriteCloser that compresses data. The returned object
// must be Closed after use.
func NewWriter(w io.Writer) (io.WriteCloser, error) {
	return cgozstd.NewWriter(w), nil
}
