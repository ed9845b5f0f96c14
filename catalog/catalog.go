// Package catalog defines the Catalog contract the storage engine's
// Flusher publishes to and its readers consult: a map from key to
// (sequence, View), with a default sharded implementation.
package catalog

import "github.com/hybridstore/storage/region"

// Item is a catalog entry: the sequence number the entry was written at,
// and the View pointing at its on-disk bytes.
type Item struct {
	Sequence uint64
	View     region.View
}

// Catalog maps keys to their most recently flushed (sequence, View). Its
// internal sharding strategy is not part of the contract (spec.md §1); only
// Insert/Lookup/RemoveWhere semantics are.
type Catalog[K comparable] interface {
	// Insert records item under key, discarding the write if an entry with
	// a strictly greater sequence is already present (last-writer-wins).
	Insert(key K, item Item)
	// Lookup returns the current item for key, if any.
	Lookup(key K) (Item, bool)
	// RemoveWhere deletes every entry whose View matches pred. Used by the
	// evictor to drop entries pointing into a reclaimed region.
	RemoveWhere(pred func(v region.View) bool)
}
