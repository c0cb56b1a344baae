// Composite stores: Store implementations that own a set of nested
// Stores and route every operation to the right one. DistributedStore
// spreads new objects over its backends by weighted random choice;
// HierarchicalStore is a strict ordered fallback chain.
package composite

import (
	"github.com/scidata/dstore/pkg/dstore"
)

// Backend is one nested store inside a composite, with the placement
// attributes the composite needs.
type Backend struct {
	ID    string
	Store dstore.Store

	// Weight is the backend's share of the selection pool. 0 keeps the
	// backend readable but excludes it from new placements, which is how
	// a backend is drained before decommissioning. Only DistributedStore
	// consults it.
	Weight int

	// MaxPercentFull removes the backend from the selection pool while
	// its usage is at or above this threshold. 0 means no limit.
	MaxPercentFull float64
}

// firstExisting returns the first of stores where obj exists. A nil
// store with a nil error means no backend holds the object. This is the
// shared resolution rule behind every read-style composite operation:
// probe in order, first match wins, absence falls through to the
// operation's own default. Exists only fails on structurally invalid
// input, and that failure propagates instead of reading as absence.
func firstExisting(stores []dstore.Store, obj dstore.Object, spec dstore.PathSpec) (dstore.Store, error) {
	for _, s := range stores {
		ok, err := s.Exists(obj, spec)
		if err != nil {
			return nil, err
		}
		if ok {
			return s, nil
		}
	}
	return nil, nil
}
