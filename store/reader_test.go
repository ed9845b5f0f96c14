package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hybridstore/storage/catalog"
	"github.com/hybridstore/storage/codec"
	"github.com/hybridstore/storage/compress"
	"github.com/hybridstore/storage/flush"
	"github.com/hybridstore/storage/region"
)

type fakePinner struct {
	regions map[region.ID]*region.Region
}

func newFakePinner(n uint32, size int64) *fakePinner {
	p := &fakePinner{regions: make(map[region.ID]*region.Region)}
	for i := region.ID(0); i < region.ID(n); i++ {
		p.regions[i] = region.NewRegion(i, size)
	}
	return p
}

func (p *fakePinner) Region(id region.ID) (*region.Region, error) {
	return p.regions[id], nil
}

func TestReaderRoundTripsWrittenEntry(t *testing.T) {
	const (
		align    = 4096
		fileSize = 65536
		ioSize   = 16384
	)
	dev := newFakeDevice(align, fileSize, ioSize, 2)
	buf := flush.NewBuffer[string, []byte](dev, codec.NewGob[string](), codec.NewGob[[]byte]())

	flushed, err := buf.Rotate(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, flushed)

	entry := flush.Entry[string, []byte]{Key: "hello", Value: []byte("world"), Sequence: 1, Compression: compress.None}
	flushed, rejected, err := buf.Write(context.Background(), entry)
	require.NoError(t, err)
	require.False(t, rejected)
	require.Empty(t, flushed, "write below io_size threshold must stay buffered")

	flushed, err = buf.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, flushed, 1)

	pinner := newFakePinner(2, fileSize)
	reader := NewReader[string, []byte](dev, pinner, codec.NewGob[string](), codec.NewGob[[]byte]())

	pe := flushed[0]
	view := region.View{Region: pe.Region, Offset: pe.Offset, Len: pe.Len}
	got, err := reader.Get(context.Background(), "hello", view)
	require.NoError(t, err)
	require.Equal(t, []byte("world"), got)
}

func TestReaderRejectsKeyMismatch(t *testing.T) {
	const (
		align    = 4096
		fileSize = 65536
		ioSize   = 16384
	)
	dev := newFakeDevice(align, fileSize, ioSize, 2)
	buf := flush.NewBuffer[string, []byte](dev, codec.NewGob[string](), codec.NewGob[[]byte]())
	_, err := buf.Rotate(context.Background(), 0)
	require.NoError(t, err)

	_, _, err = buf.Write(context.Background(), flush.Entry[string, []byte]{Key: "k1", Value: []byte("v1"), Sequence: 1})
	require.NoError(t, err)
	flushed, err := buf.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, flushed, 1)

	pinner := newFakePinner(2, fileSize)
	reader := NewReader[string, []byte](dev, pinner, codec.NewGob[string](), codec.NewGob[[]byte]())

	pe := flushed[0]
	view := region.View{Region: pe.Region, Offset: pe.Offset, Len: pe.Len}
	_, err = reader.Get(context.Background(), "wrong-key", view)
	require.Error(t, err)
}

func TestLookupRemovesCorruptEntryFromCatalog(t *testing.T) {
	const (
		align    = 4096
		fileSize = 65536
		ioSize   = 16384
	)
	dev := newFakeDevice(align, fileSize, ioSize, 2)
	buf := flush.NewBuffer[string, []byte](dev, codec.NewGob[string](), codec.NewGob[[]byte]())
	_, err := buf.Rotate(context.Background(), 0)
	require.NoError(t, err)

	_, _, err = buf.Write(context.Background(), flush.Entry[string, []byte]{Key: "k1", Value: []byte("v1"), Sequence: 1})
	require.NoError(t, err)
	flushed, err := buf.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, flushed, 1)

	// Corrupt a byte of the entry header's stored checksum (header bytes
	// 17..24), so it no longer matches the checksum of the key and value.
	dev.mu.Lock()
	regionBytes := dev.data[flushed[0].Region]
	regionBytes[flushed[0].Offset+20] ^= 0xFF
	dev.mu.Unlock()

	cat := catalog.NewDefault[string](2)
	cat.Insert("k1", catalog.Item{Sequence: 1, View: region.View{Region: flushed[0].Region, Offset: flushed[0].Offset, Len: flushed[0].Len}})

	pinner := newFakePinner(2, fileSize)
	reader := NewReader[string, []byte](dev, pinner, codec.NewGob[string](), codec.NewGob[[]byte]())

	_, ok, err := reader.Lookup(context.Background(), cat, "k1")
	require.Error(t, err)
	require.False(t, ok)

	_, ok = cat.Lookup("k1")
	require.False(t, ok, "a corrupt entry must be removed from the catalog on read")
}

func TestReaderLookupMissReturnsFalse(t *testing.T) {
	dev := newFakeDevice(4096, 65536, 16384, 1)
	pinner := newFakePinner(1, 65536)
	reader := NewReader[string, []byte](dev, pinner, codec.NewGob[string](), codec.NewGob[[]byte]())
	cat := catalog.NewDefault[string](2)

	_, ok, err := reader.Lookup(context.Background(), cat, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}
