package device

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hybridstore/storage/errors"
	"github.com/hybridstore/storage/retry"
	"github.com/hybridstore/storage/sync/once"
)

// ioRetryPolicy bounds retries of a single pread/pwrite/fsync call that
// failed with a transient errors.IO.
var ioRetryPolicy = retry.MaxRetries(retry.Backoff(2*time.Millisecond, 50*time.Millisecond, 2), 3)

// regionFileNameFormat mirrors the original source's on-disk naming
// convention: eight-digit, zero-padded region ids.
const regionFileNameFormat = "foyer-cache-%08d"

// regionFile is the platform hook implemented by fs_linux.go / fs_other.go.
// It wraps one region's open file descriptor.
type regionFile interface {
	pread(buf []byte, off int64) error
	pwrite(buf []byte, off int64) error
	sync() error
	close() error
}

// FsDevice implements Device over a directory of fixed-size region files.
type FsDevice struct {
	cfg   FsDeviceConfig
	files []regionFile
	alloc *AlignedBuffer
	pool  *ioPool

	mu        sync.RWMutex
	closeOnce once.Task
}

var _ Device = (*FsDevice)(nil)

// OpenFsDevice opens cfg.Dir as an array of cfg.Regions() region files,
// creating them if absent, and persists (or validates) the device's
// MANIFEST file.
func OpenFsDevice(cfg FsDeviceConfig) (*FsDevice, error) {
	if err := cfg.assert(); err != nil {
		return nil, err
	}
	if err := checkManifest(cfg); err != nil {
		return nil, err
	}

	n := int(cfg.Regions())
	files := make([]regionFile, n)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			path := filepath.Join(cfg.Dir, fmt.Sprintf(regionFileNameFormat, i))
			f, err := openRegionFile(path, cfg.FileSize)
			if err != nil {
				return errors.E(errors.IO, err, fmt.Sprintf("device: open region file %s", path))
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, f := range files {
			if f != nil {
				_ = f.close()
			}
		}
		return nil, err
	}

	return &FsDevice{
		cfg:   cfg,
		files: files,
		alloc: NewAlignedBuffer(int(cfg.Align)),
		pool:  newIOPool(0),
	}, nil
}

// submitWithRetry runs fn on the I/O pool, retrying per ioRetryPolicy while
// fn keeps failing with errors.IO. Non-IO errors (misuse, cancellation) are
// returned immediately.
func (d *FsDevice) submitWithRetry(ctx context.Context, fn func() error) error {
	var err error
	for tries := 0; ; tries++ {
		err = d.pool.submit(ctx, fn)
		if err == nil || !errors.Is(errors.IO, err) {
			return err
		}
		if waitErr := retry.Wait(ctx, ioRetryPolicy, tries); waitErr != nil {
			return err
		}
	}
}

func (d *FsDevice) region(id uint32) (regionFile, error) {
	if id >= uint32(len(d.files)) {
		return nil, errors.E(errors.Invalid, errors.Fatal, fmt.Sprintf("device: region %d out of range", id))
	}
	return d.files[id], nil
}

// Write implements Device.
func (d *FsDevice) Write(ctx context.Context, buf []byte, region uint32, offset int64) error {
	if err := d.checkWriteArgs(buf, offset); err != nil {
		return err
	}
	f, err := d.region(region)
	if err != nil {
		return err
	}
	return d.submitWithRetry(ctx, func() error { return f.pwrite(buf, offset) })
}

// Read implements Device.
func (d *FsDevice) Read(ctx context.Context, buf []byte, region uint32, offset int64) error {
	if err := d.checkWriteArgs(buf, offset); err != nil {
		return err
	}
	f, err := d.region(region)
	if err != nil {
		return err
	}
	return d.submitWithRetry(ctx, func() error { return f.pread(buf, offset) })
}

func (d *FsDevice) checkWriteArgs(buf []byte, offset int64) error {
	if offset%d.cfg.Align != 0 {
		return errors.E(errors.Invalid, errors.Fatal, "device: offset not aligned")
	}
	if int64(len(buf))%d.cfg.Align != 0 {
		return errors.E(errors.Invalid, errors.Fatal, "device: buffer length not aligned")
	}
	if offset+int64(len(buf)) > d.cfg.FileSize {
		return errors.E(errors.Invalid, errors.Fatal, "device: write out of region range")
	}
	return nil
}

// Flush implements Device. See syncRegionFiles (fs_linux.go / fs_other.go)
// for the platform-specific mechanism: a single syncfs(2) on Linux, sync(2)
// elsewhere.
func (d *FsDevice) Flush(ctx context.Context) error {
	return d.submitWithRetry(ctx, func() error {
		d.mu.RLock()
		defer d.mu.RUnlock()
		return syncRegionFiles(d.cfg.Dir, d.files)
	})
}

// Close implements Device. Repeated calls return the result of the first;
// the underlying files are only ever closed once.
func (d *FsDevice) Close() error {
	return d.closeOnce.Do(func() error {
		d.pool.close()
		var firstErr error
		for _, f := range d.files {
			if err := f.close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	})
}

// Align implements Device.
func (d *FsDevice) Align() int64 { return d.cfg.Align }

// FileSize implements Device.
func (d *FsDevice) FileSize() int64 { return d.cfg.FileSize }

// IOSize implements Device.
func (d *FsDevice) IOSize() int64 { return d.cfg.IOSize }

// Regions implements Device.
func (d *FsDevice) Regions() uint32 { return d.cfg.Regions() }

// Capacity implements Device.
func (d *FsDevice) Capacity() int64 { return d.cfg.Capacity }

// IOBuffer implements Device.
func (d *FsDevice) IOBuffer(l, c int) []byte {
	return d.alloc.Alloc(l, c)
}
