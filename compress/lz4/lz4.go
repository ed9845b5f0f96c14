// Package lz4 wraps github.com/pierrec/lz4/v4 with a
// Compress/Decompress/NewReader/NewWriter surface parallel to compress/zstd's
// CompressLevel/Decompress/NewReader/NewWriter, so the two compression
// backends are interchangeable behind the compress package's dispatch.
package lz4

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"
)

// Compress returns the lz4 compression of in, reusing scratch's backing
// array when it has enough capacity.
func Compress(scratch []byte, in []byte) ([]byte, error) {
	wBuf := bytes.NewBuffer(scratch[:0])
	w := lz4.NewWriter(wBuf)
	if _, err := w.Write(in); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return wBuf.Bytes(), nil
}

// Decompress reverses Compress, reusing scratch's backing array when it has
// enough capacity.
func Decompress(scratch []byte, in []byte) ([]byte, error) {
	rBuf := bytes.NewReader(in)
	r := lz4.NewReader(rBuf)
	wBuf := bytes.NewBuffer(scratch[:0])
	if _, err := io.Copy(wBuf, r); err != nil {
		return nil, err
	}
	return wBuf.Bytes(), nil
}

type readerWrapper struct {
	*lz4.Reader
}

func (r *readerWrapper) Close() error {
	return nil
}

// NewReader wraps r in a streaming lz4 decompressor.
func NewReader(r io.Reader) (io.ReadCloser, error) {
	return &readerWrapper{lz4.NewReader(r)}, nil
}

// NewWriter wraps w in a streaming lz4 compressor. The returned writer must
// be Closed to flush the final lz4 frame.
func NewWriter(w io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}
