package region

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegionPhaseTransitions(t *testing.T) {
	r := NewRegion(0, 65536)
	require.Equal(t, Clean, r.Phase())
	r.SetPhase(Writing)
	require.Equal(t, Writing, r.Phase())
	r.SetPhase(Dirty)
	require.Equal(t, Dirty, r.Phase())
}

func TestRegionPinUnpin(t *testing.T) {
	r := NewRegion(0, 65536)
	require.Equal(t, uint32(0), r.PinCount())
	r.Pin()
	r.Pin()
	require.Equal(t, uint32(2), r.PinCount())
	r.Unpin()
	require.Equal(t, uint32(1), r.PinCount())
	r.Unpin()
	require.Equal(t, uint32(0), r.PinCount())
}

func TestRegionUnpinPanicsWhenNotPinned(t *testing.T) {
	r := NewRegion(0, 65536)
	require.Panics(t, func() { r.Unpin() })
}

func TestRegionWaitUnpinned(t *testing.T) {
	r := NewRegion(0, 65536)
	r.Pin()

	done := make(chan error, 1)
	go func() {
		done <- r.WaitUnpinned(context.Background())
	}()

	select {
	case <-done:
		t.Fatal("WaitUnpinned returned before Unpin")
	case <-time.After(20 * time.Millisecond):
	}

	r.Unpin()
	require.NoError(t, <-done)
}

func TestRegionWaitUnpinnedContextCanceled(t *testing.T) {
	r := NewRegion(0, 65536)
	r.Pin()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, r.WaitUnpinned(ctx))
}

func TestRegionView(t *testing.T) {
	r := NewRegion(3, 65536)
	v := r.View(4096, 8192)
	require.Equal(t, View{Region: 3, Offset: 4096, Len: 8192}, v)
}
