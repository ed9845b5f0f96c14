package flusher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hybridstore/storage/catalog"
	"github.com/hybridstore/storage/codec"
	"github.com/hybridstore/storage/compress"
	"github.com/hybridstore/storage/errors"
	"github.com/hybridstore/storage/flush"
	"github.com/hybridstore/storage/region"
)

const (
	testAlign    = 4096
	testFileSize = 65536
	testIOSize   = 16384
)

func newTestFlusher(t *testing.T, regions uint32, cleanCapacity int) (
	*Flusher[string, []byte], *catalog.Default[string], chan flush.Entry[string, []byte], chan struct{},
) {
	t.Helper()
	f, cat, entryCh, stopCh, _ := newTestFlusherWithOversized(t, regions, cleanCapacity)
	return f, cat, entryCh, stopCh
}

func newTestFlusherWithOversized(t *testing.T, regions uint32, cleanCapacity int) (
	*Flusher[string, []byte], *catalog.Default[string], chan flush.Entry[string, []byte], chan struct{}, chan error,
) {
	t.Helper()
	dev := newFakeDevice(testAlign, testFileSize, testIOSize, regions)
	buf := flush.NewBuffer[string, []byte](dev, codec.NewGob[string](), codec.NewGob[[]byte]())
	cat := catalog.NewDefault[string](4)
	mgr := region.NewManager(regions, testFileSize, region.NewFIFOEvictionPolicy(), cat, cleanCapacity)
	t.Cleanup(mgr.Close)

	entryCh := make(chan flush.Entry[string, []byte], 32)
	stopCh := make(chan struct{})
	oversizedCh := make(chan error, 1)
	f := New[string, []byte](buf, mgr, cat, entryCh, stopCh, oversizedCh)
	return f, cat, entryCh, stopCh, oversizedCh
}

func TestFlusherPublishesOnStop(t *testing.T) {
	f, cat, entryCh, stopCh := newTestFlusher(t, 4, 2)

	entryCh <- flush.Entry[string, []byte]{Key: "k1", Value: []byte("v1"), Sequence: 1, Compression: compress.None}

	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	close(stopCh)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after stop")
	}

	_, ok := cat.Lookup("k1")
	require.True(t, ok, "entry staged before stop must be published by the final flush")
}

func TestFlusherSameKeyOrderingLastWriterWins(t *testing.T) {
	f, cat, entryCh, stopCh := newTestFlusher(t, 4, 2)

	entryCh <- flush.Entry[string, []byte]{Key: "k", Value: []byte("a"), Sequence: 10, Compression: compress.None}
	entryCh <- flush.Entry[string, []byte]{Key: "k", Value: []byte("b"), Sequence: 11, Compression: compress.None}

	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	close(stopCh)
	require.NoError(t, <-done)

	item, ok := cat.Lookup("k")
	require.True(t, ok)
	require.Equal(t, uint64(11), item.Sequence)
}

func TestFlusherClosedEntryChannelTriggersFinalFlush(t *testing.T) {
	f, cat, entryCh, _ := newTestFlusher(t, 4, 2)

	entryCh <- flush.Entry[string, []byte]{Key: "k1", Value: []byte("v1"), Sequence: 1, Compression: compress.None}
	close(entryCh)

	err := f.Run(context.Background())
	require.NoError(t, err)

	_, ok := cat.Lookup("k1")
	require.True(t, ok)
}

func TestFlusherRotatesAcrossRegions(t *testing.T) {
	f, cat, entryCh, _ := newTestFlusher(t, 2, 1)

	big := make([]byte, testFileSize)
	entryCh <- flush.Entry[string, []byte]{Key: "big1", Value: big[:1], Sequence: 1, Compression: compress.None}
	for i := 0; i < 20; i++ {
		entryCh <- flush.Entry[string, []byte]{
			Key:         "k",
			Value:       make([]byte, 4000),
			Sequence:    uint64(i + 2),
			Compression: compress.None,
		}
	}
	close(entryCh)

	err := f.Run(context.Background())
	require.NoError(t, err)

	item, ok := cat.Lookup("k")
	require.True(t, ok)
	require.Equal(t, uint64(21), item.Sequence)
}

func TestFlusherFlushFailureStopsAtLastSuccessfulFlush(t *testing.T) {
	dev := newFakeDevice(testAlign, testFileSize, testIOSize, 2)
	buf := flush.NewBuffer[string, []byte](dev, codec.NewGob[string](), codec.NewGob[[]byte]())
	cat := catalog.NewDefault[string](4)
	mgr := region.NewManager(2, testFileSize, region.NewFIFOEvictionPolicy(), cat, 2)
	t.Cleanup(mgr.Close)

	entryCh := make(chan flush.Entry[string, []byte], 16)
	stopCh := make(chan struct{})
	f := New[string, []byte](buf, mgr, cat, entryCh, stopCh, nil)

	entryCh <- flush.Entry[string, []byte]{Key: "k1", Value: make([]byte, 100), Sequence: 1, Compression: compress.None}
	close(entryCh)

	// Fail the very first device write; the flusher's final flush on
	// channel-close must then surface the error and the catalog must stay
	// empty.
	dev.failOnCall = 1
	err := f.Run(context.Background())
	require.Error(t, err)

	_, ok := cat.Lookup("k1")
	require.False(t, ok, "no entry from a failed flush may reach the catalog")
}

func TestFlusherReportsOversizedEntry(t *testing.T) {
	f, cat, entryCh, stopCh, oversizedCh := newTestFlusherWithOversized(t, 2, 1)

	// Bigger than a whole fresh region's usable capacity, so it is rejected
	// even after Rotate hands the Flusher a brand-new region.
	entryCh <- flush.Entry[string, []byte]{
		Key:         "huge",
		Value:       make([]byte, 2*testFileSize),
		Sequence:    1,
		Compression: compress.None,
	}

	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background()) }()

	select {
	case err := <-oversizedCh:
		require.Error(t, err)
		require.True(t, errors.Is(errors.Oversized, err))
	case <-time.After(2 * time.Second):
		t.Fatal("oversized entry was never reported")
	}

	close(stopCh)
	require.NoError(t, <-done)

	_, ok := cat.Lookup("huge")
	require.False(t, ok, "an oversized entry must never reach the catalog")
}
