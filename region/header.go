// Package region implements the region lifecycle state machine: the
// clean/writing/dirty/evicting phases a fixed-size region file moves
// through, and the fixed-width headers written to disk for the region
// itself and for each entry packed into it.
package region

import (
	"encoding/binary"

	"github.com/hybridstore/storage/compress"
	"github.com/hybridstore/storage/errors"
)

// RegionMagic identifies a region file written by this engine.
const RegionMagic uint64 = 0xF0E1D2C3B4A59687

// RegionVersion is the on-disk version of RegionHeader and EntryHeader.
const RegionVersion uint16 = 1

// RegionHeaderSize is the fixed encoded size of a RegionHeader.
const RegionHeaderSize = 8 + 2

// RegionHeader is written as the first bytes of every region, once per
// rotation into that region.
type RegionHeader struct {
	Magic   uint64
	Version uint16
}

// Encode writes h's fixed-width encoding into buf, which must have length
// at least RegionHeaderSize.
func (h RegionHeader) Encode(buf []byte) {
	binary.BigEndian.PutUint64(buf[0:8], h.Magic)
	binary.BigEndian.PutUint16(buf[8:10], h.Version)
}

// DecodeRegionHeader parses a RegionHeader from the front of buf.
func DecodeRegionHeader(buf []byte) (RegionHeader, error) {
	if len(buf) < RegionHeaderSize {
		return RegionHeader{}, errors.E(errors.Corrupt, "region: header too short")
	}
	h := RegionHeader{
		Magic:   binary.BigEndian.Uint64(buf[0:8]),
		Version: binary.BigEndian.Uint16(buf[8:10]),
	}
	if h.Magic != RegionMagic {
		return h, errors.E(errors.Corrupt, "region: bad region header magic")
	}
	return h, nil
}

// EntryHeaderSize is the fixed encoded size of an EntryHeader.
const EntryHeaderSize = 4 + 4 + 8 + 1 + 8

// EntryHeader is the fixed-size prefix written immediately before an
// entry's compressed value and encoded key bytes.
type EntryHeader struct {
	KeyLen      uint32
	ValueLen    uint32
	Sequence    uint64
	Compression compress.Compression
	Checksum    uint64
}

// Encode writes h's fixed-width encoding into buf, which must have length
// at least EntryHeaderSize.
func (h EntryHeader) Encode(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], h.KeyLen)
	binary.BigEndian.PutUint32(buf[4:8], h.ValueLen)
	binary.BigEndian.PutUint64(buf[8:16], h.Sequence)
	buf[16] = byte(h.Compression)
	binary.BigEndian.PutUint64(buf[17:25], h.Checksum)
}

// DecodeEntryHeader parses an EntryHeader from the front of buf.
func DecodeEntryHeader(buf []byte) (EntryHeader, error) {
	if len(buf) < EntryHeaderSize {
		return EntryHeader{}, errors.E(errors.Corrupt, "region: entry header too short")
	}
	return EntryHeader{
		KeyLen:      binary.BigEndian.Uint32(buf[0:4]),
		ValueLen:    binary.BigEndian.Uint32(buf[4:8]),
		Sequence:    binary.BigEndian.Uint64(buf[8:16]),
		Compression: compress.Compression(buf[16]),
		Checksum:    binary.BigEndian.Uint64(buf[17:25]),
	}, nil
}
