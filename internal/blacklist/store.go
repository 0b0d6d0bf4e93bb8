package blacklist

import (
	"context"

	"stablegate/pkg/domain"
)

// Store persists blacklist entries, one per address. Re-listing a cleared
// address reuses its entry.
type Store interface {
	// Create inserts a new entry; sentinel.ErrAlreadyExists if the address
	// already has one.
	Create(ctx context.Context, entry *Entry) error

	// Get returns the entry for an address; sentinel.ErrNotFound if absent.
	Get(ctx context.Context, addr domain.Address) (*Entry, error)

	// Execute atomically validates and mutates one entry, returning the
	// updated copy.
	Execute(ctx context.Context, addr domain.Address, validate func(*Entry) error, mutate func(*Entry)) (*Entry, error)

	// List returns all entries, active and cleared.
	List(ctx context.Context) ([]*Entry, error)
}
