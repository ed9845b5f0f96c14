// Package checksum computes the fixed-width integrity checksum stored in
// each entry header.
package checksum

import "github.com/cespare/xxhash/v2"

// Checksum returns the 64-bit checksum of buf.
func Checksum(buf []byte) uint64 {
	return xxhash.Sum64(buf)
}

// Checksummer accumulates a checksum over multiple byte slices without
// concatenating them, mirroring how a flushed entry's value and key bytes
// are checksummed together without being copied into one buffer.
type Checksummer struct {
	d *xxhash.Digest
}

// New returns a fresh Checksummer.
func New() *Checksummer {
	return &Checksummer{d: xxhash.New()}
}

// Write feeds buf into the running checksum. It never returns an error.
func (c *Checksummer) Write(buf []byte) {
	_, _ = c.d.Write(buf)
}

// Sum64 returns the checksum of all bytes written so far.
func (c *Checksummer) Sum64() uint64 {
	return c.d.Sum64()
}

// Verify reports whether want matches the checksum of buf.
func Verify(buf []byte, want uint64) bool {
	return Checksum(buf) == want
}
