//go:build !linux
// +build !linux

package device

import (
	"golang.org/x/sys/unix"

	"github.com/hybridstore/storage/errors"
)

// osRegionFile is the portability fallback: buffered I/O with an explicit
// flush, since O_DIRECT is Linux-specific.
type osRegionFile struct {
	fd int
}

func openRegionFile(path string, size int64) (regionFile, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0644)
	if err != nil {
		return nil, err
	}
	if err := unix.Ftruncate(fd, size); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return &osRegionFile{fd: fd}, nil
}

func (f *osRegionFile) pwrite(buf []byte, off int64) error {
	for len(buf) > 0 {
		n, err := unix.Pwrite(f.fd, buf, off)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return errors.E(errors.IO, err, "device: pwrite")
		}
		buf = buf[n:]
		off += int64(n)
	}
	return nil
}

func (f *osRegionFile) pread(buf []byte, off int64) error {
	for len(buf) > 0 {
		n, err := unix.Pread(f.fd, buf, off)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return errors.E(errors.IO, err, "device: pread")
		}
		if n == 0 {
			return errors.E(errors.IO, "device: short read, unexpected EOF")
		}
		buf = buf[n:]
		off += int64(n)
	}
	return nil
}

func (f *osRegionFile) sync() error {
	// libc::sync() flushes the whole machine's page cache; there is no
	// portable per-fd syncfs equivalent off Linux, so mirror the original
	// source's macOS/fallback behavior here as well as in Flush.
	unix.Sync()
	return nil
}

func (f *osRegionFile) close() error {
	return unix.Close(f.fd)
}

// syncRegionFiles is the non-Linux fallback, since syncfs(2) is
// Linux-specific: it calls sync on each region file, which on these
// platforms is a whole-system sync(2) rather than a per-file fsync.
func syncRegionFiles(dir string, files []regionFile) error {
	for _, f := range files {
		if err := f.sync(); err != nil {
			return errors.E(errors.IO, err, "device: flush")
		}
	}
	return nil
}
