// Package counter implements the fast-path auction counter: one integer per
// auction id, mutated only through a single atomic compare-and-increment.
// Concurrent conflicting bids are linearized here; this is the pipeline's
// sole synchronization point.
package counter

import "context"

// Store is the atomic counter contract.
type Store interface {
	// CompareAndIncrement atomically checks that the value at key equals
	// expected and, if so, increments it by delta. It returns the value
	// observed before the increment. A missing key fails with
	// common.ErrNotFound, a mismatched value with common.ErrConflict.
	CompareAndIncrement(ctx context.Context, key string, expected, delta int64) (int64, error)

	// Provision creates the counter at zero. It fails with
	// common.ErrConflict when the key already exists, guarding against id
	// collisions at auction creation.
	Provision(ctx context.Context, key string) error
}
