//go:build !cgo

package zstd

import (
	"bytes"
	"io"

	nocgozstd "github.com/klauspost/compress/zstd"
)

// CompressLevel compresses in at level, reusing scratch's backing array when
// possible. level < 0 selects a default comparable to the cgo library's.
func CompressLevel(scratch []byte, in []byte, level int) ([]byte, error) {
	if level < 0 {
		level = 5 // 5 is the default compression const in cgo zstd
	}
	wBuf := bytes.NewBuffer(scratch[:0])
	w, err := nocgozstd.NewWriter(wBuf,
		nocgozstd.WithEncoderLevel(nocgozstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(w, bytes.NewReader(in)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return wBuf.Bytes(), nil
}

// Decompress reverses CompressLevel, reusing scratch's backing array when
// possible.
func Decompress(scratch []byte, in []byte) ([]byte, error) {
	r, err := nocgozstd.NewReader(bytes.NewReader(in))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	wBuf := bytes.NewBuffer(scratch[:0])
	if _, err := io.Copy(wBuf, r); err != nil {
		return nil, err
	}
	return wBuf.Bytes(), nil
}

type readerWrapper struct {
	*nocgozstd.Decoder
}

func (r *readerWrapper) Close() error {
	r.Decoder.Close()
	return nil
}

// NewReader creates a ReadCloser that decompresses data. The returned object
// must be Closed after use.
func NewReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := nocgozstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &readerWrapper{zr}, nil
}

// NewWriter creates a WriteCloser that compresses data. The returned object
// must be Closed after use.
func NewWriter(w io.Writer) (io.WriteCloser, error) {
	return nocgozstd.NewWriter(w)
}
