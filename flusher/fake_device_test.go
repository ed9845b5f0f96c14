package flusher

import (
	"context"
	"sync"

	"github.com/hybridstore/storage/device"
	"github.com/hybridstore/storage/errors"
)

// fakeDevice is an in-memory device.Device, letting these tests exercise
// Flusher without touching a filesystem. It can be told to fail the Nth
// Write call, for flush-failure-injection scenarios.
type fakeDevice struct {
	align    int64
	fileSize int64
	ioSize   int64
	regions  uint32

	mu         sync.Mutex
	data       map[uint32][]byte
	writeCount int
	failOnCall int
}

func newFakeDevice(align, fileSize, ioSize int64, regions uint32) *fakeDevice {
	return &fakeDevice{
		align:    align,
		fileSize: fileSize,
		ioSize:   ioSize,
		regions:  regions,
		data:     make(map[uint32][]byte),
	}
}

func (d *fakeDevice) Write(ctx context.Context, buf []byte, region uint32, offset int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeCount++
	if d.failOnCall != 0 && d.writeCount == d.failOnCall {
		return errors.E(errors.IO, "fakeDevice: injected write failure")
	}
	r, ok := d.data[region]
	if !ok {
		r = make([]byte, d.fileSize)
		d.data[region] = r
	}
	copy(r[offset:], buf)
	return nil
}

func (d *fakeDevice) Read(ctx context.Context, buf []byte, region uint32, offset int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.data[region]
	if !ok {
		r = make([]byte, d.fileSize)
	}
	copy(buf, r[offset:offset+int64(len(buf))])
	return nil
}

func (d *fakeDevice) Flush(ctx context.Context) error { return nil }
func (d *fakeDevice) Close() error                    { return nil }
func (d *fakeDevice) Align() int64                    { return d.align }
func (d *fakeDevice) FileSize() int64                 { return d.fileSize }
func (d *fakeDevice) IOSize() int64                   { return d.ioSize }
func (d *fakeDevice) Regions() uint32                 { return d.regions }
func (d *fakeDevice) Capacity() int64                 { return d.fileSize * int64(d.regions) }

func (d *fakeDevice) IOBuffer(l, c int) []byte {
	return make([]byte, l, c)
}

var _ device.Device = (*fakeDevice)(nil)
