// Package codec defines the key/value type constraints and the default
// serialization used to turn cache entries into the bytes a Device writes.
//
// The storage engine's contract (see package flush and package flusher)
// only requires that keys and values can be serialized to and deserialized
// from bytes; it does not mandate a wire format. This package supplies a
// gob-based default, since the rest of the stack (package errors) already
// relies on gob for its own serialization and the example corpus carries no
// protobuf or JSON codec shaped for this use.
package codec

import (
	"bytes"
	"encoding/gob"

	"github.com/hybridstore/storage/errors"
)

// StorageKey is the constraint satisfied by any type usable as a cache key.
// Keys must be comparable so they can be used as catalog map keys.
type StorageKey interface {
	comparable
}

// StorageValue is the constraint satisfied by any type usable as a cache
// value.
type StorageValue interface {
	any
}

// Codec serializes and deserializes keys and values of type T.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte, v *T) error
}

// Gob is the default Codec, backed by encoding/gob.
type Gob[T any] struct{}

// NewGob returns a Gob codec for T.
func NewGob[T any]() Gob[T] {
	return Gob[T]{}
}

// Encode implements Codec.
func (Gob[T]) Encode(v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, errors.E(errors.Invalid, err, "codec: gob encode")
	}
	return buf.Bytes(), nil
}

// Decode implements Codec.
func (Gob[T]) Decode(data []byte, v *T) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return errors.E(errors.Corrupt, err, "codec: gob decode")
	}
	return nil
}
