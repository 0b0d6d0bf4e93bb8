package identity

import (
	"context"

	"stablegate/pkg/domain"
)

// Store persists identity records. Implementations must apply Execute
// atomically: validate and mutate run under the same lock (mutex or FOR
// UPDATE) so no other transition can interleave.
type Store interface {
	// Create inserts a new record; sentinel.ErrAlreadyExists if the user is
	// already registered.
	Create(ctx context.Context, record *Record) error

	// Get returns the record for a user; sentinel.ErrNotFound if absent.
	Get(ctx context.Context, user domain.Address) (*Record, error)

	// Execute atomically validates and mutates one record, returning the
	// updated copy. The store adjusts the verified-user counter when the
	// mutation moves the record into or out of StatusVerified.
	Execute(ctx context.Context, user domain.Address, validate func(*Record) error, mutate func(*Record)) (*Record, error)

	// VerifiedCount returns the global verified-user counter.
	VerifiedCount(ctx context.Context) (int64, error)
}
