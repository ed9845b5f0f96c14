//go:build linux
// +build linux

package device

import (
	"golang.org/x/sys/unix"

	"github.com/hybridstore/storage/errors"
)

// osRegionFile is a region file opened, where supported, in O_DIRECT mode so
// reads and writes bypass the page cache, mirroring the original source's
// use of nix's O_DIRECT on Linux.
type osRegionFile struct {
	fd int
}

func openRegionFile(path string, size int64) (regionFile, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_DIRECT, 0644)
	if err != nil {
		// Not every filesystem (notably tmpfs, and some overlay mounts)
		// supports O_DIRECT; fall back to buffered I/O plus explicit flush.
		fd, err = unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0644)
		if err != nil {
			return nil, err
		}
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
	if err := unix.Fsync(f.fd); err != nil {
		return errors.E(errors.IO, err, "device: fsync")
	}
	return nil
}

func (f *osRegionFile) close() error {
	return unix.Close(f.fd)
}

// syncRegionFiles flushes every region file in dir to stable storage with a
// single syncfs(2) against the directory, mirroring the original source's
// use of nix::unistd::syncfs on Linux rather than fsync-per-file.
func syncRegionFiles(dir string, files []regionFile) error {
	fd, err := unix.Open(dir, unix.O_RDONLY, 0)
	if err != nil {
		return errors.E(errors.IO, err, "device: open directory for syncfs")
	}
	defer unix.Close(fd)
	if err := unix.Syncfs(fd); err != nil {
		return errors.E(errors.IO, err, "device: syncfs")
	}
	return nil
}
