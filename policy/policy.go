// Package policy defines the admission and reinsertion hooks the storage
// engine's collaborators invoke (spec.md §1: "the core invokes their
// admit()/pick() hooks"), along with the memory tier's eviction
// configuration variants. Spec.md scopes out policy sophistication, not
// policy existence, so this package ships simple, correct defaults.
package policy

import (
	"context"
)

// AdmissionContext carries the information an AdmissionPolicy needs to
// decide whether a value should be admitted into the storage engine at
// all.
type AdmissionContext struct {
	Key       string
	ValueSize int
}

// AdmissionPolicy decides whether a candidate entry is written to the
// persistent tier.
type AdmissionPolicy interface {
	Admit(ctx context.Context, ac AdmissionContext) bool
}

// ReinsertionContext carries the information a ReinsertionPolicy needs to
// decide whether a value read back from the storage engine on a memory-tier
// miss should be inserted into the memory tier.
type ReinsertionContext struct {
	Key       string
	ValueSize int
}

// ReinsertionPolicy decides whether a value loaded from the persistent tier
// is promoted into the memory tier.
type ReinsertionPolicy interface {
	Pick(ctx context.Context, rc ReinsertionContext) bool
}
